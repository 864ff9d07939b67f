package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"ghg-data-pipeline/pkg/utils"
)

// ColumnType is the declared type of a table column.
type ColumnType string

const (
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeString ColumnType = "string"
	TypeDate   ColumnType = "date"
	TypeBool   ColumnType = "bool"
)

func (c ColumnType) Valid() bool {
	switch c {
	case TypeInt, TypeFloat, TypeString, TypeDate, TypeBool:
		return true
	}
	return false
}

func (c ColumnType) Numeric() bool { return c == TypeInt || c == TypeFloat }

// Temporal reports whether a column of this type can carry a year.
func (c ColumnType) Temporal() bool { return c == TypeInt || c == TypeDate }

// Accepts reports whether a column declared as actual satisfies an expectation of c.
// Floats accept ints; dates accept integer years.
func (c ColumnType) Accepts(actual ColumnType) bool {
	switch c {
	case TypeFloat:
		return actual.Numeric()
	case TypeDate:
		return actual.Temporal()
	default:
		return c == actual
	}
}

// Column is a named, typed column declaration.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Record is one row keyed by column name, the form collaborators hand rows in.
type Record map[string]interface{}

// Table is an immutable, column-typed, ordered sequence of rows.
// Values are int64, float64, string, time.Time, bool, or nil for null.
type Table struct {
	columns []Column
	index   map[string]int
	rows    [][]interface{}
}

// NewTable builds a table from records, normalizing every value to its column type.
// Keys missing from a record are null; keys not declared as columns are an error.
func NewTable(columns []Column, records []Record) (*Table, error) {
	t, err := newShell(columns)
	if err != nil {
		return nil, err
	}
	t.rows = make([][]interface{}, len(records))
	for i, rec := range records {
		for key := range rec {
			if _, ok := t.index[key]; !ok {
				return nil, ColumnConfigErrorf("new_table", key, "row %d has undeclared column", i)
			}
		}
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			v, err := normalize(col, rec[col.Name])
			if err != nil {
				return nil, ColumnConfigErrorf("new_table", col.Name, "row %d: %v", i, err)
			}
			row[j] = v
		}
		t.rows[i] = row
	}
	return t, nil
}

// NewTableFromRows builds a table from positional rows.
func NewTableFromRows(columns []Column, rows [][]interface{}) (*Table, error) {
	t, err := newShell(columns)
	if err != nil {
		return nil, err
	}
	t.rows = make([][]interface{}, len(rows))
	for i, raw := range rows {
		if len(raw) != len(columns) {
			return nil, ConfigErrorf("new_table", "row %d has %d values, want %d", i, len(raw), len(columns))
		}
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			v, err := normalize(col, raw[j])
			if err != nil {
				return nil, ColumnConfigErrorf("new_table", col.Name, "row %d: %v", i, err)
			}
			row[j] = v
		}
		t.rows[i] = row
	}
	return t, nil
}

// EmptyTable returns a zero-row table with the given columns.
func EmptyTable(columns []Column) (*Table, error) {
	return newShell(columns)
}

func newShell(columns []Column) (*Table, error) {
	t := &Table{
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if col.Name == "" {
			return nil, ConfigErrorf("new_table", "column %d has no name", i)
		}
		if !col.Type.Valid() {
			return nil, ColumnConfigErrorf("new_table", col.Name, "unknown type %q", col.Type)
		}
		if _, dup := t.index[col.Name]; dup {
			return nil, ColumnConfigErrorf("new_table", col.Name, "declared twice")
		}
		t.index[col.Name] = i
	}
	return t, nil
}

func normalize(col Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && s == "" && col.Type != TypeString {
		return nil, nil
	}
	switch col.Type {
	case TypeInt:
		if i, ok := utils.ToInt(v); ok {
			return i, nil
		}
	case TypeFloat:
		if f, ok := utils.ToFloat(v); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, nil
			}
			return f, nil
		}
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case TypeDate:
		if d, ok := utils.ToDate(v); ok {
			return d, nil
		}
	case TypeBool:
		if b, ok := utils.ToBool(v); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) is not a valid %s", v, v, col.Type)
}

// Columns returns a copy of the column declarations.
func (t *Table) Columns() []Column { return append([]Column(nil), t.columns...) }

// Column looks up a column declaration by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Value returns the cell at (row, column), or nil when the column does not exist.
func (t *Table) Value(row int, column string) interface{} {
	i, ok := t.index[column]
	if !ok {
		return nil
	}
	return t.rows[row][i]
}

// IsNull reports whether the cell is null (or the column is absent).
func (t *Table) IsNull(row int, column string) bool { return t.Value(row, column) == nil }

// Float returns a numeric cell as float64.
func (t *Table) Float(row int, column string) (float64, bool) {
	switch v := t.Value(row, column).(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// String returns a string cell.
func (t *Table) String(row int, column string) (string, bool) {
	s, ok := t.Value(row, column).(string)
	return s, ok
}

// Year returns the year carried by an int or date cell.
func (t *Table) Year(row int, column string) (int, bool) {
	switch v := t.Value(row, column).(type) {
	case int64:
		return int(v), true
	case time.Time:
		return v.Year(), true
	}
	return 0, false
}

// Record returns a copy of a row keyed by column name.
func (t *Table) Record(row int) Record {
	rec := make(Record, len(t.columns))
	for i, col := range t.columns {
		rec[col.Name] = t.rows[row][i]
	}
	return rec
}

// Select returns a new table holding the given rows, in the given order.
func (t *Table) Select(rows []int) *Table {
	out := &Table{columns: t.columns, index: t.index, rows: make([][]interface{}, len(rows))}
	for i, r := range rows {
		out.rows[i] = t.rows[r]
	}
	return out
}

// WithColumn returns a new table with col appended, or replaced when a column of the
// same name exists. values must have one entry per row.
func (t *Table) WithColumn(col Column, values []interface{}) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, ColumnConfigErrorf("with_column", col.Name, "%d values for %d rows", len(values), len(t.rows))
	}
	columns := t.Columns()
	pos, exists := t.index[col.Name]
	if exists {
		columns[pos] = col
	} else {
		pos = len(columns)
		columns = append(columns, col)
	}
	out, err := newShell(columns)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]interface{}, len(t.rows))
	for i, src := range t.rows {
		row := make([]interface{}, len(columns))
		copy(row, src)
		v, err := normalize(col, values[i])
		if err != nil {
			return nil, ColumnConfigErrorf("with_column", col.Name, "row %d: %v", i, err)
		}
		row[pos] = v
		out.rows[i] = row
	}
	return out, nil
}

type tableJSON struct {
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// MarshalJSON encodes the table as ordered columns plus positional rows; dates use YYYY-MM-DD.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{Columns: t.columns, Rows: make([][]interface{}, len(t.rows))}
	if out.Columns == nil {
		out.Columns = []Column{}
	}
	for i, row := range t.rows {
		enc := make([]interface{}, len(row))
		for j, v := range row {
			if d, ok := v.(time.Time); ok {
				enc[j] = d.Format(utils.DateLayout)
				continue
			}
			enc[j] = v
		}
		out.Rows[i] = enc
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form, re-normalizing values to their declared types.
func (t *Table) UnmarshalJSON(data []byte) error {
	var in tableJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return WrapConfig("decode_table", err)
	}
	decoded, err := NewTableFromRows(in.Columns, in.Rows)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
