// Package dataset holds the in-memory tabular model shared by the codec,
// validator and sync pipeline.
package dataset

import (
	"fmt"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the error class for malformed datasets.
var Error = errs.Class("dataset")

// Kind is the scalar type of every cell in a column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column is a named sequence of cells. A nil cell is null; every non-nil cell
// holds the Go type of the column kind: string, int64, float64 or bool.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Dataset is an ordered set of equally long columns.
type Dataset struct {
	Columns []Column
}

// New builds a dataset and checks that column names are unique, columns are
// equally long and cells match their column kind.
func New(columns ...Column) (*Dataset, error) {
	d := &Dataset{Columns: columns}
	if err := d.check(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustNew is New for literals in tests and fixtures.
func MustNew(columns ...Column) *Dataset {
	d, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return d
}

// Strings is shorthand for a string column.
func Strings(name string, values ...string) Column {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return Column{Name: name, Kind: KindString, Values: cells}
}

// Ints is shorthand for an int column.
func Ints(name string, values ...int64) Column {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return Column{Name: name, Kind: KindInt, Values: cells}
}

func (d *Dataset) check() error {
	seen := make(map[string]struct{}, len(d.Columns))
	for i, col := range d.Columns {
		if _, dup := seen[col.Name]; dup {
			return Error.New("duplicate column name %q", col.Name)
		}
		seen[col.Name] = struct{}{}
		if len(col.Values) != len(d.Columns[0].Values) {
			return Error.New("column %q has %d cells, expected %d", col.Name, len(col.Values), len(d.Columns[0].Values))
		}
		for row, v := range col.Values {
			if v != nil && !kindMatches(col.Kind, v) {
				return Error.New("column %d (%q) row %d: %T is not a %s cell", i, col.Name, row, v, col.Kind)
			}
		}
	}
	return nil
}

func kindMatches(k Kind, v any) bool {
	switch v.(type) {
	case string:
		return k == KindString
	case int64:
		return k == KindInt
	case float64:
		return k == KindFloat
	case bool:
		return k == KindBool
	}
	return false
}

// NumRows returns the common column length.
func (d *Dataset) NumRows() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// NumColumns returns the number of columns.
func (d *Dataset) NumColumns() int {
	if d == nil {
		return 0
	}
	return len(d.Columns)
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, col := range d.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Row returns the cells of row i in column order.
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.Columns))
	for c, col := range d.Columns {
		row[c] = col.Values[i]
	}
	return row
}

// Clone returns a deep copy; cells are immutable scalars so only the slices
// are copied.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Columns: make([]Column, len(d.Columns))}
	for i, col := range d.Columns {
		out.Columns[i] = Column{
			Name:   col.Name,
			Kind:   col.Kind,
			Values: append([]any(nil), col.Values...),
		}
	}
	return out
}

// Concat appends the rows of each part in order. All parts must share the
// same column names and kinds in the same order.
func Concat(parts ...*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, Error.New("nothing to concatenate")
	}
	first := parts[0]
	out := &Dataset{Columns: make([]Column, len(first.Columns))}
	total := 0
	for _, p := range parts {
		total += p.NumRows()
	}
	for i, col := range first.Columns {
		out.Columns[i] = Column{Name: col.Name, Kind: col.Kind, Values: make([]any, 0, total)}
	}

	for n, p := range parts {
		if err := sameShape(first, p); err != nil {
			return nil, Error.New("part %d: %v", n, err)
		}
		for i, col := range p.Columns {
			out.Columns[i].Values = append(out.Columns[i].Values, col.Values...)
		}
	}
	return out, nil
}

func sameShape(a, b *Dataset) error {
	if len(a.Columns) != len(b.Columns) {
		return fmt.Errorf("has columns [%s], expected [%s]",
			strings.Join(b.ColumnNames(), ","), strings.Join(a.ColumnNames(), ","))
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name || a.Columns[i].Kind != b.Columns[i].Kind {
			return fmt.Errorf("column %d is %s %s, expected %s %s", i,
				b.Columns[i].Name, b.Columns[i].Kind, a.Columns[i].Name, a.Columns[i].Kind)
		}
	}
	return nil
}
