// Package frame provides a small in-memory table: rows of nullable values
// under ordered, named columns. Frames are value snapshots of database
// tables; once loaded they are only read, projected, or joined.
package frame

import (
	"fmt"
	"time"
)

// Row is one table row. A cell holds nil (SQL NULL) or one of: string,
// bool, int64, float64, time.Time. Normalize coerces driver values into
// this set.
type Row []any

// Frame is a table of rows under named columns.
type Frame struct {
	cols  []string
	index map[string]int
	rows  []Row
}

// New creates an empty frame with the given column names.
func New(columns []string) (*Frame, error) {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if _, ok := index[name]; ok {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	return &Frame{
		cols:  append([]string(nil), columns...),
		index: index,
	}, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.cols...)
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return len(f.rows) }

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int { return len(f.cols) }

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// AppendRow adds a row. The row length must match the column count.
func (f *Frame) AppendRow(row Row) error {
	if len(row) != len(f.cols) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(row), len(f.cols))
	}
	f.rows = append(f.rows, row)
	return nil
}

// Row returns the i-th row. The returned slice is shared, not copied.
func (f *Frame) Row(i int) Row { return f.rows[i] }

// Value returns the value at row i in the named column.
func (f *Frame) Value(i int, column string) (any, error) {
	j, ok := f.index[column]
	if !ok {
		return nil, fmt.Errorf("no such column %q", column)
	}
	return f.rows[i][j], nil
}

// Column returns all values of the named column, in row order.
func (f *Frame) Column(name string) ([]any, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("no such column %q", name)
	}
	values := make([]any, len(f.rows))
	for i, row := range f.rows {
		values[i] = row[j]
	}
	return values, nil
}

// Select returns a new frame containing only the named columns, in the
// given order. Row values are shared with the source frame.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	out, err := New(columns)
	if err != nil {
		return nil, err
	}
	indices := make([]int, len(columns))
	for i, name := range columns {
		j, ok := f.index[name]
		if !ok {
			return nil, fmt.Errorf("no such column %q", name)
		}
		indices[i] = j
	}
	out.rows = make([]Row, len(f.rows))
	for i, row := range f.rows {
		projected := make(Row, len(indices))
		for k, j := range indices {
			projected[k] = row[j]
		}
		out.rows[i] = projected
	}
	return out, nil
}

// Copy returns a deep copy of the frame.
func (f *Frame) Copy() *Frame {
	out, _ := New(f.cols)
	out.rows = make([]Row, len(f.rows))
	for i, row := range f.rows {
		out.rows[i] = append(Row(nil), row...)
	}
	return out
}

// Normalize coerces a database driver value into the frame value set.
// []byte becomes string; integer widths collapse to int64; nil stays nil.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case string, bool, int64, float64, time.Time:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
