package dataset

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateEmptyDataset(t *testing.T) {
	for _, d := range []*Dataset{
		MustNew(),
		MustNew(Strings("tow"), Strings("net")),
	} {
		err := Validate(d, DefaultKeyColumns)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Code != CodeEmptyDataset {
			t.Fatalf("expected %s, got %v", CodeEmptyDataset, err)
		}
	}
}

func TestValidateDuplicateKeysCountsRows(t *testing.T) {
	cases := []struct {
		name string
		tow  []int64
		net  []int64
		want int
	}{
		{"unique", []int64{1, 2, 3}, []int64{1, 1, 1}, 0},
		{"one pair", []int64{3, 3, 4}, []int64{1, 1, 1}, 2},
		{"triple", []int64{3, 3, 3, 4}, []int64{1, 1, 1, 2}, 3},
		{"two pairs", []int64{1, 1, 2, 2, 5}, []int64{9, 9, 8, 8, 7}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := MustNew(Ints("tow", tc.tow...), Ints("net", tc.net...))
			err := Validate(d, []string{"tow", "net"})
			if tc.want == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Code != CodeDuplicateKeys {
				t.Fatalf("expected %s, got %v", CodeDuplicateKeys, err)
			}
			if verr.Duplicates != tc.want {
				t.Fatalf("expected %d duplicate rows, got %d", tc.want, verr.Duplicates)
			}
		})
	}
}

func TestValidateSkipsWhenKeyColumnsMissing(t *testing.T) {
	d := MustNew(Ints("tow", 1, 1), Strings("depth", "a", "a"))
	if err := Validate(d, []string{"tow", "net"}); err != nil {
		t.Fatalf("expected partial key set to skip the check, got %v", err)
	}
	if err := Validate(d, nil); err != nil {
		t.Fatalf("expected no key columns to skip the check, got %v", err)
	}
}

func TestValidateKeyEncodingDoesNotCollide(t *testing.T) {
	// "a;" + "b" and "a" + ";b" must stay distinct tuples.
	d := MustNew(Strings("tow", "a;", "a"), Strings("net", "b", ";b"))
	if err := Validate(d, []string{"tow", "net"}); err != nil {
		t.Fatalf("expected distinct tuples, got %v", err)
	}
	// int 1 and string "1" are different keys.
	d = MustNew(Column{Name: "tow", Kind: KindString, Values: []any{"1", nil}}, Strings("net", "x", "x"))
	if err := Validate(d, []string{"tow", "net"}); err != nil {
		t.Fatalf("expected null and string to differ, got %v", err)
	}
}

func TestNewRejectsMalformedColumns(t *testing.T) {
	if _, err := New(Strings("a", "x"), Strings("a", "y")); err == nil {
		t.Fatalf("expected duplicate column names to fail")
	}
	if _, err := New(Strings("a", "x", "y"), Strings("b", "z")); err == nil {
		t.Fatalf("expected ragged columns to fail")
	}
	if _, err := New(Column{Name: "a", Kind: KindInt, Values: []any{"1"}}); err == nil {
		t.Fatalf("expected kind mismatch to fail")
	}
}

func TestValidateRejectsHandBuiltMalformedDatasets(t *testing.T) {
	for name, d := range map[string]*Dataset{
		"ragged": {Columns: []Column{
			{Name: "tow", Kind: KindInt, Values: []any{int64(1), int64(2)}},
			{Name: "net", Kind: KindInt, Values: []any{int64(1)}},
		}},
		"short first column": {Columns: []Column{
			{Name: "tow", Kind: KindInt, Values: []any{}},
			{Name: "net", Kind: KindInt, Values: []any{int64(1)}},
		}},
		"duplicate names": {Columns: []Column{
			{Name: "tow", Kind: KindInt, Values: []any{int64(1)}},
			{Name: "tow", Kind: KindInt, Values: []any{int64(2)}},
		}},
		"kind mismatch": {Columns: []Column{
			{Name: "tow", Kind: KindInt, Values: []any{"1"}},
		}},
	} {
		err := Validate(d, DefaultKeyColumns)
		if !Error.Has(err) {
			t.Fatalf("%s: expected a dataset error, got %v", name, err)
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			t.Fatalf("%s: shape errors are not validation errors, got %v", name, err)
		}
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	a := MustNew(Ints("tow", 1, 2), Strings("site", "x", "y"))
	b := MustNew(Ints("tow", 3), Strings("site", "z"))

	got, err := Concat(a, b)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	want := MustNew(Ints("tow", 1, 2, 3), Strings("site", "x", "y", "z"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected concat result (-want +got):\n%s", diff)
	}

	if _, err := Concat(a, MustNew(Strings("tow", "3"), Strings("site", "z"))); err == nil {
		t.Fatalf("expected mismatched kinds to fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := MustNew(Ints("tow", 1, 2))
	b := a.Clone()
	b.Columns[0].Values[0] = int64(9)
	if a.Columns[0].Values[0] != int64(1) {
		t.Fatalf("clone shares cell storage with the original")
	}
}
