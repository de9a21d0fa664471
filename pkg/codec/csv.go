package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/nucleus/master-sync/pkg/dataset"
)

// encodeCSV writes a header row followed by one record per row. Null cells
// become empty fields.
func encodeCSV(d *dataset.Dataset) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if err := writeRecord(w, buf, d.ColumnNames()); err != nil {
		return nil, err
	}
	record := make([]string, d.NumColumns())
	for row := 0; row < d.NumRows(); row++ {
		for c, col := range d.Columns {
			record[c] = formatCell(col.Values[row])
		}
		if err := writeRecord(w, buf, record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeRecord writes a lone empty field as "" because encoding/csv would
// emit a blank line, which readers skip.
func writeRecord(w *csv.Writer, buf *bytes.Buffer, record []string) error {
	if len(record) != 1 || record[0] != "" {
		return w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	buf.WriteString("\"\"\n")
	return nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// decodeCSV reads the header as column names; every column is a string
// column since CSV carries no type information.
func decodeCSV(data []byte) (*dataset.Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("no columns to parse from input")
	}
	if err != nil {
		return nil, err
	}

	columns := make([]dataset.Column, len(header))
	for i, name := range header {
		columns[i] = dataset.Column{Name: name, Kind: dataset.KindString, Values: []any{}}
	}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, field := range record {
			columns[i].Values = append(columns[i].Values, field)
		}
	}
	return dataset.New(columns...)
}
