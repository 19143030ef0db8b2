package clock

import (
	"strconv"
	"strings"
	"time"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// ParseDuration parses the engine's duration grammar: a concatenation of
// <number><unit> tokens where unit is one of d, h, m, s, plus an optional
// trailing bare number interpreted as seconds. `m` always means minutes;
// `ms` is rejected outright rather than silently coerced to
// minutes-then-unknown-unit, per the open question this resolves.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidDurationFormat,
			"clock.parse_duration", "empty duration string")
	}

	var total time.Duration
	var numBuf strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c >= '0' && c <= '9' || c == '-' || c == '+' {
			numBuf.WriteByte(c)
			i++
			continue
		}

		if numBuf.Len() == 0 {
			return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidDurationFormat,
				"clock.parse_duration", "unit with no preceding number at position "+strconv.Itoa(i))
		}

		// Reject "ms" explicitly: an `m` immediately followed by `s` is not
		// milliseconds in this grammar.
		if c == 'm' && i+1 < len(s) && s[i+1] == 's' {
			return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidDurationFormat,
				"clock.parse_duration", `unit "ms" is not supported; "m" means minutes`)
		}

		n, err := strconv.ParseInt(numBuf.String(), 10, 64)
		if err != nil {
			return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidDurationFormat,
				"clock.parse_duration", "invalid number: "+numBuf.String())
		}
		numBuf.Reset()

		unit, err := unitDuration(c)
		if err != nil {
			return 0, err
		}
		total += time.Duration(n) * unit
		i++
	}

	// Trailing unit-less number is seconds.
	if numBuf.Len() > 0 {
		n, err := strconv.ParseInt(numBuf.String(), 10, 64)
		if err != nil {
			return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidDurationFormat,
				"clock.parse_duration", "invalid number: "+numBuf.String())
		}
		total += time.Duration(n) * time.Second
	}

	return total, nil
}

func unitDuration(c byte) (time.Duration, error) {
	switch c {
	case 'd':
		return 24 * time.Hour, nil
	case 'h':
		return time.Hour, nil
	case 'm':
		return time.Minute, nil
	case 's':
		return time.Second, nil
	default:
		return 0, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidDurationFormat,
			"clock.parse_duration", "unknown duration unit: "+string(c))
	}
}
