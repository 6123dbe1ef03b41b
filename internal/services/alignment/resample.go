package alignment

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Aggregation reduces the values that fall into one bucket.
type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggMean  Aggregation = "mean"
	AggFirst Aggregation = "first"
	AggLast  Aggregation = "last"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
)

// ParseAggregation validates an aggregation name.
func ParseAggregation(s string) (Aggregation, error) {
	a := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case AggSum, AggMean, AggFirst, AggLast, AggMin, AggMax, AggCount:
		return a, nil
	case "":
		return "", fmt.Errorf("aggregation is required")
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// reduce skips NaN. A bucket with no values is NaN, except for count which is 0.
func (a Aggregation) reduce(values []float64) float64 {
	n := 0
	var acc float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case n == 0:
			acc = v
		case a == AggSum || a == AggMean:
			acc += v
		case a == AggLast:
			acc = v
		case a == AggMin:
			acc = math.Min(acc, v)
		case a == AggMax:
			acc = math.Max(acc, v)
		}
		n++
	}
	if a == AggCount {
		return float64(n)
	}
	if n == 0 {
		return math.NaN()
	}
	if a == AggMean {
		return acc / float64(n)
	}
	return acc
}

// ResampleFrame buckets frame into fixed-width bins of freq, reduces each bin with agg
// and then applies fill. Bins are labelled by their left edge and run from the bin of the
// first row through the bin of the last row, empty bins included. An empty frame is
// returned unchanged. fillLimit <= 0 means unlimited.
func ResampleFrame(frame *Frame, freq Frequency, agg Aggregation, fill FillMethod, fillLimit int) (*Frame, error) {
	if _, err := ParseAggregation(string(agg)); err != nil {
		return nil, err
	}
	if err := fill.validate(); err != nil {
		return nil, err
	}
	if freq.d <= 0 {
		return nil, fmt.Errorf("invalid frequency: zero width")
	}
	if frame.Empty() {
		return frame.Clone(), nil
	}

	src := frame.sorted()
	first := freq.Floor(src.Index[0])
	bins := freq.periodsBetween(first, freq.Floor(src.Index[src.Len()-1]))
	if err := freq.checkBins(bins); err != nil {
		return nil, err
	}

	members := make([][]int, bins)
	for r, ts := range src.Index {
		b := int(freq.Floor(ts).Sub(first) / freq.d)
		members[b] = append(members[b], r)
	}

	out := &Frame{
		Index:   make([]time.Time, bins),
		Names:   append([]string(nil), src.Names...),
		Columns: make([][]float64, len(src.Columns)),
	}
	for b := range out.Index {
		out.Index[b] = first.Add(time.Duration(b) * freq.d)
	}
	buf := make([]float64, 0, 8)
	for c, col := range src.Columns {
		reduced := make([]float64, bins)
		for b, rows := range members {
			buf = buf[:0]
			for _, r := range rows {
				buf = append(buf, col[r])
			}
			reduced[b] = agg.reduce(buf)
		}
		out.Columns[c] = reduced
	}

	fill.apply(out, fillLimit)
	return out, nil
}
