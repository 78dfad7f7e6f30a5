// Package tabular holds the in-memory table exchanged by the warehouse and
// remote file clients, and its delimited-text encoding.
package tabular

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Table is an ordered set of named columns and the rows under them.
// Cell values are plain Go values: nil, string, int64, float64, bool,
// time.Time, or whatever a warehouse driver returned.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// AppendRow adds a row. The number of values must match the number of columns.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, append([]any(nil), values...))
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of the named column.
func (t *Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Value returns the cell at row i under the named column.
func (t *Table) Value(i int, column string) (any, bool) {
	j, ok := t.Column(column)
	if !ok || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i][j], true
}

// Equal reports whether both tables have the same columns and the same rows
// in the same order. Integer cells compare by value whatever their Go kind,
// as do float32 and float64 cells, so a table equals its CSV round trip.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Columns) != len(other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		if len(t.Rows[i]) != len(other.Rows[i]) {
			return false
		}
		for j := range t.Rows[i] {
			if !reflect.DeepEqual(normalize(t.Rows[i][j]), normalize(other.Rows[i][j])) {
				return false
			}
		}
	}
	return true
}

// normalize widens numeric cells to int64 or float64.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x)
		}
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
	case float32:
		// shortest float32 text, as WriteCSV renders it
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(x), 'g', -1, 32), 64)
		return f
	}
	return v
}
