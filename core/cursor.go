package core

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for every stored source
// timestamp. Values in this layout order lexicographically as they do in time.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NormalizeTimestamp parses an RFC 3339 value and re-formats it in
// TimestampLayout. Empty input stays empty.
func NormalizeTimestamp(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return "", fmt.Errorf("core: invalid timestamp %q: %w", value, err)
	}
	return FormatTimestamp(parsed), nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(TimestampLayout)
}

func ParseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

// MergeCursor returns the later of two cursors. An empty cursor is absent.
func MergeCursor(previous string, next string) string {
	switch {
	case previous == "":
		return next
	case next == "":
		return previous
	case next > previous:
		return next
	default:
		return previous
	}
}

// MaxISO returns the greatest timestamp in values, or "" when there is none.
func MaxISO(values []string) string {
	out := ""
	for _, value := range values {
		out = MergeCursor(out, value)
	}
	return out
}
