package dataset

import (
	"fmt"
	"strings"
)

const (
	CodeEmptyDataset  = "E_EMPTY_DATASET"
	CodeDuplicateKeys = "E_DUPLICATE_KEYS"
)

// DefaultKeyColumns is the uniqueness constraint used when none is configured.
var DefaultKeyColumns = []string{"tow", "net"}

// ValidationError reports a structural invariant the dataset violates.
type ValidationError struct {
	Code       string
	Duplicates int
	KeyColumns []string
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeEmptyDataset:
		return fmt.Sprintf("%s: dataset is empty; nothing to edit", e.Code)
	case CodeDuplicateKeys:
		return fmt.Sprintf("%s: dataset has %d rows sharing a %s combination; resolve before saving",
			e.Code, e.Duplicates, strings.Join(e.KeyColumns, "+"))
	}
	return e.Code
}

// Validate fails when d is malformed (see New), when it has no rows, or when
// every key column is present and some rows share the same key tuple. When
// any key column is missing the uniqueness check is skipped.
func Validate(d *Dataset, keyColumns []string) error {
	if d != nil {
		if err := d.check(); err != nil {
			return err
		}
	}
	if d.NumRows() == 0 {
		return &ValidationError{Code: CodeEmptyDataset}
	}
	if len(keyColumns) == 0 {
		return nil
	}

	idx := make([]int, len(keyColumns))
	for i, name := range keyColumns {
		idx[i] = d.ColumnIndex(name)
		if idx[i] < 0 {
			return nil
		}
	}

	if n := DuplicateRows(d, idx); n > 0 {
		return &ValidationError{
			Code:       CodeDuplicateKeys,
			Duplicates: n,
			KeyColumns: append([]string(nil), keyColumns...),
		}
	}
	return nil
}

// DuplicateRows counts the rows whose key tuple over the given column
// positions appears in at least one other row.
func DuplicateRows(d *Dataset, columns []int) int {
	groups := make(map[string]int, d.NumRows())
	keys := make([]string, d.NumRows())
	var b strings.Builder
	for row := range keys {
		b.Reset()
		for _, c := range columns {
			writeKeyCell(&b, d.Columns[c].Values[row])
		}
		keys[row] = b.String()
		groups[keys[row]]++
	}

	dupes := 0
	for _, n := range groups {
		if n > 1 {
			dupes += n
		}
	}
	return dupes
}

// writeKeyCell appends a type-tagged, length-prefixed encoding so that
// distinct tuples never collide.
func writeKeyCell(b *strings.Builder, v any) {
	var s string
	switch t := v.(type) {
	case nil:
		b.WriteString("n;")
		return
	case string:
		s = "s" + t
	default:
		s = fmt.Sprintf("%T%v", t, t)
	}
	fmt.Fprintf(b, "%d:%s;", len(s), s)
}
