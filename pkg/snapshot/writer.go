// Package snapshot keeps an immutable, uniquely keyed copy of every payload
// written to the master object.
package snapshot

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/internal/objkey"
	"github.com/nucleus/master-sync/pkg/codec"
)

const keyPrefix = "master_"

// Record is one written snapshot. Payload is byte-identical to the master
// write it mirrors.
type Record struct {
	Key     string
	Payload []byte
}

// Writer writes snapshots under a prefix. Snapshots are never overwritten or
// deleted: every key carries a fresh random suffix.
type Writer struct {
	store  minio.ObjectStore
	now    func() time.Time
	suffix func() string
}

// NewWriter returns a Writer using the wall clock and objkey.Suffix.
func NewWriter(store minio.ObjectStore) *Writer {
	return &Writer{store: store, now: time.Now, suffix: objkey.Suffix}
}

// WithClock overrides the timestamp and suffix sources.
func (w *Writer) WithClock(now func() time.Time, suffix func() string) *Writer {
	clone := *w
	if now != nil {
		clone.now = now
	}
	if suffix != nil {
		clone.suffix = suffix
	}
	return &clone
}

// Key builds prefix/master_{stamp}_{hex128}.{ext}.
func Key(prefix string, at time.Time, suffix string, format codec.Format) string {
	return objkey.Join(prefix, keyPrefix+objkey.Stamp(at)+"_"+suffix+"."+format.Extension())
}

// Write stores payload as a new snapshot.
func (w *Writer) Write(ctx context.Context, bucket, prefix string, format codec.Format, payload []byte) (*Record, error) {
	key := Key(prefix, w.now(), w.suffix(), format)
	if _, err := w.store.PutObject(ctx, bucket, key, payload, format.ContentType()); err != nil {
		return nil, err
	}
	return &Record{Key: key, Payload: payload}, nil
}

// List returns snapshot keys under prefix, oldest first. The timestamp in the
// key sorts lexically.
func (w *Writer) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	keys, err := w.store.ListPrefix(ctx, bucket, listPrefix(prefix))
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(path.Base(k), keyPrefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Read fetches a snapshot by key.
func (w *Writer) Read(ctx context.Context, bucket, key string) (*Record, error) {
	obj, err := w.store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return &Record{Key: key, Payload: obj.Data}, nil
}

func listPrefix(prefix string) string {
	if p := objkey.Join(prefix); p != "" {
		return p + "/"
	}
	return ""
}
