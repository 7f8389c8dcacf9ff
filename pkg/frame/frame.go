// Package frame provides the column table used for evaluated samples. A
// frame is a set of equal-length float64 columns keyed by name, one of which
// is conventionally "timestamp". It serializes to the parallel-array form
// used by the data block of archived runs.
package frame

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// TimestampColumn is the column that records evaluation times as unix
// seconds.
const TimestampColumn = "timestamp"

// Frame is an ordered collection of named float64 columns.
type Frame struct {
	columns []string
	data    map[string][]float64
}

// New creates an empty frame. When no columns are given, the column set is
// fixed by the first appended row.
func New(columns ...string) *Frame {
	f := &Frame{data: make(map[string][]float64)}
	for _, c := range columns {
		f.columns = append(f.columns, c)
		f.data[c] = nil
	}
	return f
}

// FromColumns builds a frame from parallel arrays. All columns must have the
// same length.
func FromColumns(columns map[string][]float64) (*Frame, error) {
	f := New()
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	length := -1
	for _, name := range names {
		col := columns[name]
		if length < 0 {
			length = len(col)
		} else if len(col) != length {
			return nil, fmt.Errorf("column %s has length %d, want %d", name, len(col), length)
		}
		f.columns = append(f.columns, name)
		f.data[name] = append([]float64(nil), col...)
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.columns) == 0 {
		return 0
	}
	return len(f.data[f.columns[0]])
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Column returns the values of the named column, or nil if absent.
func (f *Frame) Column(name string) []float64 {
	col, ok := f.data[name]
	if !ok {
		return nil
	}
	return append([]float64(nil), col...)
}

// AppendRow adds one sample. On an empty frame with no declared columns the
// row fixes the column set (sorted by name); afterwards the row must cover
// exactly the existing columns.
func (f *Frame) AppendRow(row map[string]float64) error {
	if len(f.columns) == 0 {
		names := make([]string, 0, len(row))
		for name := range row {
			names = append(names, name)
		}
		sort.Strings(names)
		f.columns = names
		for _, name := range names {
			f.data[name] = nil
		}
	}
	if len(row) != len(f.columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(row), len(f.columns))
	}
	for _, name := range f.columns {
		val, ok := row[name]
		if !ok {
			return fmt.Errorf("row is missing column %s", name)
		}
		f.data[name] = append(f.data[name], val)
	}
	return nil
}

// Row returns the i-th sample as a map.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.columns))
	for _, name := range f.columns {
		row[name] = f.data[name][i]
	}
	return row
}

// Last returns the final row, or nil for an empty frame.
func (f *Frame) Last() map[string]float64 {
	n := f.Len()
	if n == 0 {
		return nil
	}
	return f.Row(n - 1)
}

// SortByTimestamp stably reorders the rows by the timestamp column. Frames
// without a timestamp column are left untouched.
func (f *Frame) SortByTimestamp() {
	ts, ok := f.data[TimestampColumn]
	if !ok {
		return
	}
	order := make([]int, len(ts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ts[order[a]] < ts[order[b]] })

	for _, name := range f.columns {
		col := f.data[name]
		sorted := make([]float64, len(col))
		for i, idx := range order {
			sorted[i] = col[idx]
		}
		f.data[name] = sorted
	}
}

// Tail returns a copy of the last n rows (all rows when n exceeds the
// length).
func (f *Frame) Tail(n int) *Frame {
	total := f.Len()
	if n > total {
		n = total
	}
	out := New(f.columns...)
	for _, name := range f.columns {
		out.data[name] = append([]float64(nil), f.data[name][total-n:]...)
	}
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := New(f.columns...)
	for _, name := range f.columns {
		out.data[name] = append([]float64(nil), f.data[name]...)
	}
	return out
}

// Clear removes all rows but keeps the column set.
func (f *Frame) Clear() {
	for _, name := range f.columns {
		f.data[name] = nil
	}
}

// ToColumns exports the frame as parallel arrays keyed by column name.
func (f *Frame) ToColumns() map[string][]float64 {
	out := make(map[string][]float64, len(f.columns))
	for _, name := range f.columns {
		out[name] = append([]float64(nil), f.data[name]...)
	}
	return out
}

// Mean returns the arithmetic mean of a column.
func (f *Frame) Mean(name string) (float64, error) {
	col, ok := f.data[name]
	if !ok {
		return 0, fmt.Errorf("no column %s", name)
	}
	if len(col) == 0 {
		return math.NaN(), nil
	}
	var sum float64
	for _, v := range col {
		sum += v
	}
	return sum / float64(len(col)), nil
}

// MarshalYAML renders the frame as the parallel-array data block.
func (f *Frame) MarshalYAML() (any, error) {
	out := make(map[string][]float64, len(f.columns))
	for _, name := range f.columns {
		out[name] = f.data[name]
	}
	return out, nil
}

// UnmarshalYAML parses the parallel-array data block.
func (f *Frame) UnmarshalYAML(node *yaml.Node) error {
	var columns map[string][]float64
	if err := node.Decode(&columns); err != nil {
		return err
	}
	parsed, err := FromColumns(columns)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}
