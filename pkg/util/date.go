package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// unixMillisThreshold separates unix seconds from unix milliseconds (year 5138 in seconds).
const unixMillisThreshold = 1e11

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime tries RFC3339 variants, plain dates, and unix seconds or milliseconds.
// Results are in UTC. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromUnix(f)
	}
	return time.Time{}, false
}

// FromUnix interprets a numeric epoch as seconds, or milliseconds when it is too large to be seconds.
func FromUnix(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if v > unixMillisThreshold {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseTimePtr parses s into a UTC time pointer; empty input yields nil.
func ParseTimePtr(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, ok := ParseTime(s)
	if !ok {
		return nil, false
	}
	return &t, true
}
