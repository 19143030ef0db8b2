package clock

import (
	"strconv"
	"strings"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// abbreviationOffsets is the fixed timezone abbreviation table. Offsets are
// seconds from UTC.
var abbreviationOffsets = map[string]int{
	"UTC": 0,
	"GMT": 0,

	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,

	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,

	"IST": 5*3600 + 30*60,
	"JST": 9 * 3600,
	"KST": 9 * 3600,
	"SGT": 8 * 3600,
	"HKT": 8 * 3600,

	"AEST": 10 * 3600,
	"ACST": 9*3600 + 30*60,
	"AWST": 8 * 3600,
	"AEDT": 11 * 3600,
	"ACDT": 10*3600 + 30*60,
}

// ParseTimezone resolves a timezone abbreviation (from the fixed table
// above) or a signed numeric offset of the form "+HH:MM", "-HH:MM", "+H",
// or "-H" into a seconds-from-UTC offset.
func ParseTimezone(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidTimezone,
			"clock.parse_timezone", "empty timezone")
	}

	if s == "Z" {
		return 0, nil
	}

	if offset, ok := abbreviationOffsets[strings.ToUpper(s)]; ok {
		return offset, nil
	}

	if s[0] == '+' || s[0] == '-' {
		return parseNumericOffset(s)
	}

	return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidTimezone,
		"clock.parse_timezone", "unknown timezone: "+s)
}

func parseNumericOffset(s string) (int, error) {
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := s[1:]

	if hh, mm, ok := strings.Cut(body, ":"); ok {
		h, err := strconv.Atoi(hh)
		if err != nil {
			return 0, invalidTZ(s)
		}
		m, err := strconv.Atoi(mm)
		if err != nil {
			return 0, invalidTZ(s)
		}
		return sign * (h*3600 + m*60), nil
	}

	h, err := strconv.Atoi(body)
	if err != nil {
		return 0, invalidTZ(s)
	}
	return sign * h * 3600, nil
}

func invalidTZ(s string) error {
	return stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidTimezone,
		"clock.parse_timezone", "invalid numeric timezone offset: "+s)
}
