// Package codec serializes datasets to and from the two supported master
// object encodings: comma-delimited text and Parquet.
package codec

import (
	"fmt"
	"path"
	"strings"

	"github.com/nucleus/master-sync/pkg/dataset"
)

// Format names an encoding of the master object.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported file format %q (want csv or parquet)", raw)
}

// FormatFromKey infers the format from an object key's extension.
func FormatFromKey(key string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(path.Ext(key), "."))
}

// Extension is the file extension used for snapshot keys.
func (f Format) Extension() string { return string(f) }

// ContentType is the MIME type written alongside encoded objects.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	}
	return "application/octet-stream"
}

// FormatError reports a payload that does not decode (or a dataset that
// cannot be encoded) under a format.
type FormatError struct {
	Format Format
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("E_FORMAT: %s codec: %v", e.Format, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Encode serializes d. Row and column order are preserved.
func Encode(d *dataset.Dataset, format Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = encodeCSV(d)
	case FormatParquet:
		data, err = encodeParquet(d)
	default:
		err = fmt.Errorf("unsupported format")
	}
	if err != nil {
		return nil, &FormatError{Format: format, Err: err}
	}
	return data, nil
}

// Decode parses data. It never returns a partial dataset.
func Decode(data []byte, format Format) (*dataset.Dataset, error) {
	var (
		d   *dataset.Dataset
		err error
	)
	switch format {
	case FormatCSV:
		d, err = decodeCSV(data)
	case FormatParquet:
		d, err = decodeParquet(data)
	default:
		err = fmt.Errorf("unsupported format")
	}
	if err != nil {
		return nil, &FormatError{Format: format, Err: err}
	}
	return d, nil
}
