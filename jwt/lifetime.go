package jwt

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidLifetime is returned by ParseLifetime for anything other than
// a positive integer followed by m, h or d.
var ErrInvalidLifetime = errors.New(`invalid lifetime: use forms like "15m", "1h" or "30d"`)

var lifetimePattern = regexp.MustCompile(`^(\d+)([mhd])$`)

// ParseLifetime converts a duration string such as "15m", "12h" or "30d"
// into a time.Duration.
func ParseLifetime(value string) (time.Duration, error) {
	match := lifetimePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, ErrInvalidLifetime
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidLifetime
	}

	var unit time.Duration
	switch match[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	if n > int64(math.MaxInt64/unit) {
		return 0, ErrInvalidLifetime
	}

	return time.Duration(n) * unit, nil
}
