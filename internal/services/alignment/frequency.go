package alignment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is an explicit, fixed-width sampling interval.
type Frequency struct {
	d    time.Duration
	text string
}

var frequencyUnits = map[string]time.Duration{
	"s":   time.Second,
	"S":   time.Second,
	"min": time.Minute,
	"T":   time.Minute,
	"h":   time.Hour,
	"H":   time.Hour,
	"D":   24 * time.Hour,
	"d":   24 * time.Hour,
	"W":   7 * 24 * time.Hour,
	"w":   7 * 24 * time.Hour,
}

// ParseFrequency accepts "<n><unit>" with units s, min (or T), h, D and W; n defaults to 1.
// Frequencies are never inferred from data.
func ParseFrequency(s string) (Frequency, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Frequency{}, fmt.Errorf("invalid frequency: empty")
	}

	i := 0
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	n := 1
	if i > 0 {
		v, err := strconv.Atoi(raw[:i])
		if err != nil || v <= 0 {
			return Frequency{}, fmt.Errorf("invalid frequency %q", s)
		}
		n = v
	}
	unit, ok := frequencyUnits[raw[i:]]
	if !ok {
		return Frequency{}, fmt.Errorf("invalid frequency %q: unknown unit %q", s, raw[i:])
	}
	return Frequency{d: time.Duration(n) * unit, text: raw}, nil
}

// MustFrequency is ParseFrequency for constants.
func MustFrequency(s string) Frequency {
	f, err := ParseFrequency(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Frequency) Duration() time.Duration { return f.d }

func (f Frequency) String() string { return f.text }

// ErrTooManyBins is returned when a grid would exceed MaxBins buckets.
var ErrTooManyBins = errors.New("too many buckets")

// MaxBins caps the number of grid buckets a single resample or alignment may produce.
const MaxBins = 1_000_000

const week = 7 * 24 * time.Hour

// 1970-01-05 was the first Monday after the Unix epoch.
const mondayOrigin = int64(4 * 24 * time.Hour)

// Floor returns the start of the bucket holding t, in UTC. Buckets are counted from the
// Unix epoch; whole-week frequencies start on Monday instead.
func (f Frequency) Floor(t time.Time) time.Time {
	step := int64(f.d)
	if step <= 0 {
		return t.UTC()
	}
	var origin int64
	if f.d%week == 0 {
		origin = mondayOrigin
	}
	ns := t.UnixNano()
	m := (ns - origin) % step
	if m < 0 {
		m += step
	}
	return time.Unix(0, ns-m).UTC()
}

// checkBins rejects grids larger than MaxBins.
func (f Frequency) checkBins(n int) error {
	if n > MaxBins {
		return fmt.Errorf("frequency %s over this window: %w (limit %d)", f.text, ErrTooManyBins, MaxBins)
	}
	return nil
}

// periodsBetween counts grid ticks from start through end inclusive.
func (f Frequency) periodsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	span := end.Sub(start) / f.d
	if span >= MaxBins {
		return MaxBins + 1
	}
	return int(span) + 1
}
