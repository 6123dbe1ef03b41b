package alignment

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// JoinMode selects how time points from different sources are combined.
type JoinMode string

const (
	JoinInner JoinMode = "inner"
	JoinOuter JoinMode = "outer"
)

// ParseJoin accepts "inner" or "outer" only.
func ParseJoin(s string) (JoinMode, error) {
	switch j := JoinMode(strings.ToLower(strings.TrimSpace(s))); j {
	case JoinInner, JoinOuter:
		return j, nil
	default:
		return "", fmt.Errorf("invalid join %q: want inner or outer", s)
	}
}

// NamedFrame is one aligned input; Name prefixes its columns as "{name}__".
type NamedFrame struct {
	Name  string
	Frame *Frame
}

// AlignOptions configures AlignFrames. Aggregation has no default.
type AlignOptions struct {
	Frequency   string
	Join        JoinMode
	Aggregation Aggregation
	Fill        FillMethod
	FillLimit   int
}

// AlignFrames resamples every input onto one grid and merges them column-wise.
//
// The grid starts at the earliest timestamp floored to the frequency and holds
// max(natural periods to the latest timestamp, longest resampled input) ticks.
// Sources are resampled without fill, joined, reindexed onto the grid for outer joins,
// filled across the combined frame, and finally de-duplicated keeping the last row.
func AlignFrames(frames []NamedFrame, opts AlignOptions) (*Frame, error) {
	freq, err := ParseFrequency(opts.Frequency)
	if err != nil {
		return nil, err
	}
	join, err := ParseJoin(string(opts.Join))
	if err != nil {
		return nil, err
	}
	agg, err := ParseAggregation(string(opts.Aggregation))
	if err != nil {
		return nil, err
	}
	if err := opts.Fill.validate(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return NewFrame(), nil
	}

	resampled := make([]*Frame, len(frames))
	var (
		anchor, horizon time.Time
		longest         int
		haveData        bool
	)
	for i, nf := range frames {
		if nf.Frame == nil {
			return nil, fmt.Errorf("frame %q is nil", nf.Name)
		}
		r, err := ResampleFrame(nf.Frame, freq, agg, FillNone, 0)
		if err != nil {
			return nil, fmt.Errorf("resample %s: %w", nf.Name, err)
		}
		resampled[i] = r.WithPrefix(nf.Name + "__")

		if nf.Frame.Empty() {
			continue
		}
		src := nf.Frame.sorted()
		first, last := freq.Floor(src.Index[0]), src.Index[src.Len()-1]
		if !haveData || first.Before(anchor) {
			anchor = first
		}
		if !haveData || last.After(horizon) {
			horizon = last
		}
		if r.Len() > longest {
			longest = r.Len()
		}
		haveData = true
	}

	combined := combine(resampled, join)
	if !haveData {
		return combined, nil
	}

	if join == JoinOuter {
		periods := freq.periodsBetween(anchor, horizon)
		if longest > periods {
			periods = longest
		}
		if err := freq.checkBins(periods); err != nil {
			return nil, err
		}
		target := make([]time.Time, periods)
		for i := range target {
			target[i] = anchor.Add(time.Duration(i) * freq.d)
		}
		combined = reindex(combined, target)
	}

	opts.Fill.apply(combined, opts.FillLimit)
	return combined.dedupeLast(), nil
}

// combine concatenates frames column-wise over the union (outer) or intersection (inner)
// of their timestamps, sorted ascending.
func combine(frames []*Frame, join JoinMode) *Frame {
	counts := make(map[int64]int)
	stamps := make(map[int64]time.Time)
	for _, f := range frames {
		seen := make(map[int64]bool, f.Len())
		for _, ts := range f.Index {
			k := ts.UnixNano()
			if seen[k] {
				continue
			}
			seen[k] = true
			counts[k]++
			stamps[k] = ts
		}
	}

	index := make([]time.Time, 0, len(stamps))
	for k, ts := range stamps {
		if join == JoinInner && counts[k] < len(frames) {
			continue
		}
		index = append(index, ts)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	out := &Frame{Index: index}
	for _, f := range frames {
		aligned := reindex(f, index)
		out.Names = append(out.Names, aligned.Names...)
		out.Columns = append(out.Columns, aligned.Columns...)
	}
	return out
}

// reindex places f's rows onto index; rows absent from f are NaN. Later duplicates win.
func reindex(f *Frame, index []time.Time) *Frame {
	pos := make(map[int64]int, f.Len())
	for r, ts := range f.Index {
		pos[ts.UnixNano()] = r
	}
	out := &Frame{
		Index:   append([]time.Time(nil), index...),
		Names:   append([]string(nil), f.Names...),
		Columns: make([][]float64, len(f.Columns)),
	}
	for c, col := range f.Columns {
		dst := nanColumn(len(index))
		for i, ts := range index {
			if r, ok := pos[ts.UnixNano()]; ok {
				dst[i] = col[r]
			}
		}
		out.Columns[c] = dst
	}
	return out
}
