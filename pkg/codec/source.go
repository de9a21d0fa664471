package codec

import (
	"bytes"
	"errors"

	"github.com/xitongsys/parquet-go/source"
)

// bytesFile is a read-only source.ParquetFile over an in-memory payload.
// The column reader opens one handle per column, so Open hands out
// independent readers over the same bytes.
type bytesFile struct {
	*bytes.Reader
	data []byte
}

var _ source.ParquetFile = (*bytesFile)(nil)

func newBytesFile(data []byte) *bytesFile {
	return &bytesFile{Reader: bytes.NewReader(data), data: data}
}

func (f *bytesFile) Open(string) (source.ParquetFile, error) {
	return newBytesFile(f.data), nil
}

func (f *bytesFile) Create(string) (source.ParquetFile, error) {
	return nil, errors.New("parquet payload is read-only")
}

func (f *bytesFile) Write([]byte) (int, error) {
	return 0, errors.New("parquet payload is read-only")
}

func (f *bytesFile) Close() error { return nil }
