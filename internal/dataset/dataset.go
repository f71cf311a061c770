// Package dataset defines the canonical tabular form every extractor
// produces and every scoring stage consumes.
package dataset

import (
	"fmt"
	"sort"
	"time"
)

// Kind identifies the value type of a column or cell.
type Kind string

const (
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindText   Kind = "text"
)

// Column describes one named, typed column.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Cell holds one value. Missing cells are explicit, never zero-filled.
type Cell struct {
	Kind    Kind      `json:"kind"`
	Number  float64   `json:"number,omitempty"`
	Date    time.Time `json:"date,omitempty"`
	Text    string    `json:"text,omitempty"`
	Missing bool      `json:"missing,omitempty"`
}

// Missing returns the explicit missing cell.
func Missing() Cell { return Cell{Missing: true} }

// Number returns a numeric cell.
func Number(v float64) Cell { return Cell{Kind: KindNumber, Number: v} }

// Date returns a date cell.
func Date(t time.Time) Cell { return Cell{Kind: KindDate, Date: t} }

// Text returns a text cell.
func Text(s string) Cell { return Cell{Kind: KindText, Text: s} }

// Dataset is an ordered sequence of named columns with aligned rows.
// It is treated as immutable once handed to the pipeline.
type Dataset struct {
	cols []Column
	rows [][]Cell
}

// New creates a dataset with the given columns. Duplicate column names are
// rejected because every downstream lookup is by name.
func New(cols []Column) (*Dataset, error) {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("dataset: empty column name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("dataset: duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	return &Dataset{cols: append([]Column(nil), cols...)}, nil
}

// AppendRow adds one row. The row must cover every column.
func (d *Dataset) AppendRow(row []Cell) error {
	if len(row) != len(d.cols) {
		return fmt.Errorf("dataset: row has %d cells, want %d", len(row), len(d.cols))
	}
	d.rows = append(d.rows, append([]Cell(nil), row...))
	return nil
}

// Columns returns a copy of the column descriptors in order.
func (d *Dataset) Columns() []Column {
	if d == nil {
		return nil
	}
	return append([]Column(nil), d.cols...)
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = c.Name
	}
	return names
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// ColumnCount returns the number of columns.
func (d *Dataset) ColumnCount() int {
	if d == nil {
		return 0
	}
	return len(d.cols)
}

// Empty reports whether the dataset holds no rows or no columns.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.cols) == 0 || len(d.rows) == 0
}

// HasColumn reports whether a column exists.
func (d *Dataset) HasColumn(name string) bool {
	return d.columnIndex(name) >= 0
}

func (d *Dataset) columnIndex(name string) int {
	if d == nil {
		return -1
	}
	for i, c := range d.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Cell returns the cell at (row, column name). Unknown columns and
// out-of-range rows read as missing.
func (d *Dataset) Cell(row int, name string) Cell {
	idx := d.columnIndex(name)
	if idx < 0 || row < 0 || row >= len(d.rows) {
		return Missing()
	}
	return d.rows[row][idx]
}

// NumericSeries returns the non-missing numeric values of a column in row
// order. The second return is false when the column does not exist or holds
// no numeric values.
func (d *Dataset) NumericSeries(name string) ([]float64, bool) {
	idx := d.columnIndex(name)
	if idx < 0 {
		return nil, false
	}
	var out []float64
	for _, row := range d.rows {
		cell := row[idx]
		if cell.Missing || cell.Kind != KindNumber {
			continue
		}
		out = append(out, cell.Number)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Latest returns the last non-missing numeric value of a column.
func (d *Dataset) Latest(name string) (float64, bool) {
	series, ok := d.NumericSeries(name)
	if !ok {
		return 0, false
	}
	return series[len(series)-1], true
}

// DateRange returns the min and max of the first date-typed column, if any.
func (d *Dataset) DateRange() (min, max time.Time, ok bool) {
	idx := -1
	for i, c := range d.cols {
		if c.Kind == KindDate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return time.Time{}, time.Time{}, false
	}
	for _, row := range d.rows {
		cell := row[idx]
		if cell.Missing || cell.Kind != KindDate {
			continue
		}
		if !ok || cell.Date.Before(min) {
			min = cell.Date
		}
		if !ok || cell.Date.After(max) {
			max = cell.Date
		}
		ok = true
	}
	return min, max, ok
}

// Concat concatenates datasets row-wise in the order given. Columns are the
// union across inputs, first-seen order; cells absent from a source dataset
// are padded as missing. Nil and empty inputs are skipped.
func Concat(datasets ...*Dataset) *Dataset {
	var cols []Column
	seen := make(map[string]bool)
	for _, d := range datasets {
		if d == nil {
			continue
		}
		for _, c := range d.cols {
			if !seen[c.Name] {
				seen[c.Name] = true
				cols = append(cols, c)
			}
		}
	}

	out := &Dataset{cols: cols}
	for _, d := range datasets {
		if d == nil {
			continue
		}
		for r := range d.rows {
			row := make([]Cell, len(cols))
			for i, c := range cols {
				row[i] = d.Cell(r, c.Name)
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// NumericColumns returns the names of number-typed columns, sorted, so that
// per-column iteration in the stages is deterministic.
func (d *Dataset) NumericColumns() []string {
	if d == nil {
		return nil
	}
	var names []string
	for _, c := range d.cols {
		if c.Kind == KindNumber {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}
