package alignment

import (
	"fmt"
	"math"
	"sort"
	"time"

	"AltPull/internal/domain/models"
)

// Frame is a time index plus named float64 columns. NaN marks a missing value.
// Columns[c][r] is the value of column Names[c] at Index[r].
type Frame struct {
	Index   []time.Time
	Names   []string
	Columns [][]float64
}

// NewFrame returns an empty frame with the given columns.
func NewFrame(names ...string) *Frame {
	f := &Frame{Names: append([]string(nil), names...)}
	f.Columns = make([][]float64, len(names))
	return f
}

// FrameFromSlice converts canonical records into numeric columns.
func FrameFromSlice(slice *models.DataSlice) *Frame {
	kind := slice.Meta.Kind
	if kind == "" && slice.Len() > 0 {
		kind = slice.Records[0].Kind()
	}
	f := NewFrame(kind.Columns()...)
	for _, r := range slice.Records {
		f.appendRow(r.Time().UTC(), r.Values())
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Index)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool { return f.Len() == 0 }

// AppendRow adds a row; values must match Names in order.
func (f *Frame) AppendRow(t time.Time, values ...float64) error {
	if len(values) != len(f.Names) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.Names))
	}
	f.appendRow(t, values)
	return nil
}

func (f *Frame) appendRow(t time.Time, values []float64) {
	f.Index = append(f.Index, t)
	for c := range f.Columns {
		f.Columns[c] = append(f.Columns[c], values[c])
	}
}

// Column returns the values of name.
func (f *Frame) Column(name string) ([]float64, bool) {
	for i, n := range f.Names {
		if n == name {
			return f.Columns[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Index:   append([]time.Time(nil), f.Index...),
		Names:   append([]string(nil), f.Names...),
		Columns: make([][]float64, len(f.Columns)),
	}
	for i, col := range f.Columns {
		out.Columns[i] = append([]float64(nil), col...)
	}
	return out
}

// WithPrefix returns a copy whose column names are prefixed.
func (f *Frame) WithPrefix(prefix string) *Frame {
	out := f.Clone()
	for i, n := range out.Names {
		out.Names[i] = prefix + n
	}
	return out
}

// sorted returns a time-ascending copy; equal timestamps keep their input order.
func (f *Frame) sorted() *Frame {
	order := make([]int, f.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return f.Index[order[a]].Before(f.Index[order[b]]) })
	return f.take(order)
}

// dedupeLast drops rows whose timestamp repeats later in the frame. Input must be sorted.
func (f *Frame) dedupeLast() *Frame {
	keep := make([]int, 0, f.Len())
	for i := range f.Index {
		if i+1 < len(f.Index) && f.Index[i+1].Equal(f.Index[i]) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == f.Len() {
		return f
	}
	return f.take(keep)
}

func (f *Frame) take(rows []int) *Frame {
	out := &Frame{
		Index:   make([]time.Time, len(rows)),
		Names:   append([]string(nil), f.Names...),
		Columns: make([][]float64, len(f.Columns)),
	}
	for i, r := range rows {
		out.Index[i] = f.Index[r]
	}
	for c, col := range f.Columns {
		out.Columns[c] = make([]float64, len(rows))
		for i, r := range rows {
			out.Columns[c][i] = col[r]
		}
	}
	return out
}

// Records renders rows as maps keyed by column name plus "timestamp"; NaN becomes nil.
func (f *Frame) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, f.Len())
	for r, ts := range f.Index {
		row := make(map[string]interface{}, len(f.Names)+1)
		row["timestamp"] = ts.UTC().Format(time.RFC3339)
		for c, name := range f.Names {
			v := f.Columns[c][r]
			if math.IsNaN(v) {
				row[name] = nil
				continue
			}
			row[name] = v
		}
		out[r] = row
	}
	return out
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
