package codec

import (
	"bytes"
	"fmt"
	"strings"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/zeebo/errs"

	"github.com/nucleus/master-sync/pkg/dataset"
)

const parquetParallelism = 4

// encodeParquet writes every column as an OPTIONAL leaf so null cells
// survive the round trip.
func encodeParquet(d *dataset.Dataset) (_ []byte, err error) {
	md, err := buildParquetSchema(d)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	defer func() { err = errs.Combine(err, pfw.Close()) }()

	pw, err := writer.NewCSVWriter(md, pfw, parquetParallelism)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for row := 0; row < d.NumRows(); row++ {
		if err := pw.Write(d.Row(row)); err != nil {
			return nil, errs.Combine(err, pw.WriteStop())
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildParquetSchema(d *dataset.Dataset) ([]string, error) {
	md := make([]string, 0, d.NumColumns())
	internal := make(map[string]string, d.NumColumns())
	for _, col := range d.Columns {
		if col.Name == "" || strings.ContainsAny(col.Name, ",=") {
			return nil, fmt.Errorf("column name %q cannot be stored in a parquet schema", col.Name)
		}
		// parquet-go addresses columns by a derived identifier, so names
		// like "tow" and "Tow" would share one column.
		in := common.StringToVariableName(col.Name)
		if other, ok := internal[in]; ok {
			return nil, fmt.Errorf("column names %q and %q collide in a parquet schema", other, col.Name)
		}
		internal[in] = col.Name
		md = append(md, fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", col.Name, parquetPhysicalType(col.Kind)))
	}
	return md, nil
}

func parquetPhysicalType(kind dataset.Kind) string {
	switch kind {
	case dataset.KindBool:
		return "type=BOOLEAN"
	case dataset.KindInt:
		return "type=INT64"
	case dataset.KindFloat:
		return "type=DOUBLE"
	default:
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

// decodeParquet reads a flat parquet file column by column. parquet-go
// panics on some corrupt footers, which is reported as a decode error.
func decodeParquet(data []byte) (_ *dataset.Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt parquet payload: %v", r)
		}
	}()

	pr, err := reader.NewParquetColumnReader(newBytesFile(data), parquetParallelism)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	numRows := pr.GetNumRows()
	leaves := leafIndexes(pr.Footer.Schema)
	columns := make([]dataset.Column, len(leaves))
	for i, idx := range leaves {
		// The reader renames footer elements to Go identifiers; the schema
		// handler keeps the name the file was written with.
		name := pr.SchemaHandler.GetExName(idx)
		kind := kindOf(pr.Footer.Schema[idx])
		values, _, _, err := pr.ReadColumnByIndex(int64(i), numRows)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		if int64(len(values)) != numRows {
			return nil, fmt.Errorf("column %q: read %d of %d values", name, len(values), numRows)
		}
		cells := make([]any, len(values))
		for row, v := range values {
			cells[row], err = normalizeCell(kind, v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, row, err)
			}
		}
		columns[i] = dataset.Column{Name: name, Kind: kind, Values: cells}
	}
	return dataset.New(columns...)
}

// leafIndexes returns the schema positions of the value columns of a flat
// schema; element 0 is the root.
func leafIndexes(schema []*parquet.SchemaElement) []int {
	var leaves []int
	for i, el := range schema {
		if i == 0 || el.GetNumChildren() > 0 {
			continue
		}
		leaves = append(leaves, i)
	}
	return leaves
}

func kindOf(el *parquet.SchemaElement) dataset.Kind {
	switch el.GetType() {
	case parquet.Type_BOOLEAN:
		return dataset.KindBool
	case parquet.Type_INT32, parquet.Type_INT64:
		return dataset.KindInt
	case parquet.Type_FLOAT, parquet.Type_DOUBLE:
		return dataset.KindFloat
	default:
		return dataset.KindString
	}
}

func normalizeCell(kind dataset.Kind, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		return t, nil
	}
	return nil, fmt.Errorf("unsupported %s cell %T", kind, v)
}
