package subtitle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidTimestamp is returned when a string is not an SRT timestamp.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

const (
	millisPerSecond = 1000
	millisPerMinute = 60 * millisPerSecond
	millisPerHour   = 60 * millisPerMinute
)

// Parse converts an SRT timestamp (HH:MM:SS,mmm) into seconds.
// The millisecond part may be omitted, in which case it defaults to 0.
func Parse(s string) (float64, error) {
	millis, err := ParseMillis(s)
	if err != nil {
		return 0, err
	}
	return float64(millis) / millisPerSecond, nil
}

// ParseMillis converts an SRT timestamp into whole milliseconds.
func ParseMillis(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	secParts := strings.SplitN(parts[2], ",", 2)
	ms := "0"
	if len(secParts) == 2 {
		ms = secParts[1]
	}

	fields := [4]string{parts[0], parts[1], secParts[0], ms}
	var values [4]int64
	for i, field := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		values[i] = v
	}

	return values[0]*millisPerHour +
		values[1]*millisPerMinute +
		values[2]*millisPerSecond +
		values[3], nil
}

// Format converts seconds into a zero-padded HH:MM:SS,mmm timestamp.
// Negative, NaN and infinite inputs format as 00:00:00,000.
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	return FormatMillis(int64(math.Round(seconds * millisPerSecond)))
}

// FormatMillis converts whole milliseconds into an SRT timestamp.
func FormatMillis(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	hours := millis / millisPerHour
	minutes := (millis % millisPerHour) / millisPerMinute
	secs := (millis % millisPerMinute) / millisPerSecond
	ms := millis % millisPerSecond

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

// FormatClock renders a player clock label such as 3:07.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	whole := int64(seconds)
	return fmt.Sprintf("%d:%02d", whole/60, whole%60)
}
