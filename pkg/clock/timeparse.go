package clock

import (
	"strconv"
	"strings"
	"time"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// msThreshold is the magnitude above which a signed integer time value is
// interpreted as milliseconds-since-epoch rather than seconds.
const msThreshold = int64(1_000_000_000_000)

// ParseTime accepts an RFC 3339 string, or a signed integer interpreted as
// seconds since epoch (or milliseconds, when its magnitude exceeds 10^12).
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidTimeFormat,
			"clock.parse_time", "empty time string")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidTimeFormat,
			"clock.parse_time", "not RFC3339 and not an integer: "+s)
	}

	abs := n
	if abs < 0 {
		abs = -abs
	}
	if abs > msThreshold {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
