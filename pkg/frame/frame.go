// Package frame holds a small labeled row/column structure and maps roster
// codes across it.
package frame

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// Frame is a rectangular table of values with named columns.
// Rows shorter than the column list read as Null in the missing positions.
type Frame struct {
	Columns []string
	Rows    [][]roster.Value
}

// New creates an empty frame with the given column names.
func New(columns ...string) *Frame {
	return &Frame{Columns: slices.Clone(columns)}
}

// FromStrings builds a frame from a header row and string records.
// Empty strings become Null.
func FromStrings(columns []string, records [][]string) *Frame {
	f := New(columns...)
	for _, rec := range records {
		row := make([]roster.Value, len(columns))
		for i := range row {
			if i < len(rec) && rec[i] != "" {
				row[i] = roster.String(rec[i])
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// AppendRow adds a row. Values beyond the column count are an error.
func (f *Frame) AppendRow(values ...roster.Value) error {
	if len(values) > len(f.Columns) {
		return fmt.Errorf("row has %d values but frame has %d columns", len(values), len(f.Columns))
	}
	row := make([]roster.Value, len(f.Columns))
	copy(row, values)
	f.Rows = append(f.Rows, row)
	return nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	return slices.Index(f.Columns, name)
}

// At returns the value at row and column name.
func (f *Frame) At(row int, column string) roster.Value {
	col := f.ColumnIndex(column)
	if col < 0 || row < 0 || row >= len(f.Rows) || col >= len(f.Rows[row]) {
		return roster.Null()
	}
	return f.Rows[row][col]
}

// Set stores v at row and column name.
func (f *Frame) Set(row int, column string, v roster.Value) error {
	col := f.ColumnIndex(column)
	if col < 0 {
		return fmt.Errorf("unknown column %q", column)
	}
	if row < 0 || row >= len(f.Rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	f.set(row, col, v)
	return nil
}

func (f *Frame) set(row, col int, v roster.Value) {
	if col >= len(f.Rows[row]) {
		grown := make([]roster.Value, len(f.Columns))
		copy(grown, f.Rows[row])
		f.Rows[row] = grown
	}
	f.Rows[row][col] = v
}

func (f *Frame) cell(row, col int) roster.Value {
	if col >= len(f.Rows[row]) {
		return roster.Null()
	}
	return f.Rows[row][col]
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Columns: slices.Clone(f.Columns),
		Rows:    make([][]roster.Value, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	return out
}

// Strings renders every row as text, Null as "".
func (f *Frame) Strings() [][]string {
	out := make([][]string, len(f.Rows))
	for i := range f.Rows {
		rec := make([]string, len(f.Columns))
		for j := range rec {
			rec[j] = f.cell(i, j).String()
		}
		out[i] = rec
	}
	return out
}
