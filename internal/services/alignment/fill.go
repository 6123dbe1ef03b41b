package alignment

import (
	"fmt"
	"math"
	"strings"
)

// FillMethod names how gaps are filled after resampling.
type FillMethod string

const (
	FillNone    FillMethod = ""
	FillForward FillMethod = "ffill"
	FillBack    FillMethod = "bfill"
	FillNearest FillMethod = "nearest"
)

// ParseFillMethod accepts "", "none", "ffill", "bfill" and "nearest".
func ParseFillMethod(s string) (FillMethod, error) {
	switch m := strings.ToLower(strings.TrimSpace(s)); m {
	case "", "none":
		return FillNone, nil
	default:
		f := FillMethod(m)
		if err := f.validate(); err != nil {
			return "", err
		}
		return f, nil
	}
}

func (m FillMethod) validate() error {
	switch m {
	case FillNone, FillForward, FillBack, FillNearest:
		return nil
	default:
		return fmt.Errorf("unknown fill method %q", string(m))
	}
}

// apply fills every column of f in place. A gap longer than limit keeps its tail missing.
func (m FillMethod) apply(f *Frame, limit int) {
	for c := range f.Columns {
		switch m {
		case FillForward:
			forwardFill(f.Columns[c], limit)
		case FillBack:
			backFill(f.Columns[c], limit)
		case FillNearest:
			nearestFill(f, f.Columns[c], limit)
		}
	}
}

// ForwardFill returns a time-sorted copy of frame with gaps forward-filled up to limit
// consecutive rows (limit <= 0 means unlimited).
func ForwardFill(frame *Frame, limit int) *Frame {
	if frame.Empty() {
		return frame.Clone()
	}
	out := frame.sorted()
	FillForward.apply(out, limit)
	return out
}

func forwardFill(col []float64, limit int) {
	last := math.NaN()
	run := 0
	for i, v := range col {
		if !math.IsNaN(v) {
			last, run = v, 0
			continue
		}
		if math.IsNaN(last) || (limit > 0 && run >= limit) {
			continue
		}
		col[i] = last
		run++
	}
}

func backFill(col []float64, limit int) {
	next := math.NaN()
	run := 0
	for i := len(col) - 1; i >= 0; i-- {
		v := col[i]
		if !math.IsNaN(v) {
			next, run = v, 0
			continue
		}
		if math.IsNaN(next) || (limit > 0 && run >= limit) {
			continue
		}
		col[i] = next
		run++
	}
}

// nearestFill fills interior gaps only, taking the value of the closer neighbour in time
// (the earlier one on ties). limit counts from the start of each gap.
func nearestFill(f *Frame, col []float64, limit int) {
	prev := -1
	for i := 0; i < len(col); i++ {
		if !math.IsNaN(col[i]) {
			prev = i
			continue
		}
		if prev < 0 {
			continue
		}
		next := i
		for next < len(col) && math.IsNaN(col[next]) {
			next++
		}
		if next == len(col) {
			return
		}
		for k := i; k < next; k++ {
			if limit > 0 && k-i >= limit {
				break
			}
			if f.Index[k].Sub(f.Index[prev]) <= f.Index[next].Sub(f.Index[k]) {
				col[k] = col[prev]
			} else {
				col[k] = col[next]
			}
		}
		prev = next
		i = next
	}
}
