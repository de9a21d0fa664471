// Package audit appends one structured record per successful save, each as
// its own dated object so the trail never needs a read-modify-write.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/internal/objkey"
)

const (
	keyPrefix   = "user_"
	keySuffix   = ".log"
	contentType = "application/jsonl"
)

// Entry records who saved what and why. Version fields are null when the
// store issued no version id.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	User        string    `json:"user"`
	Note        string    `json:"note"`
	PrevVersion *string   `json:"prev_version"`
	NewVersion  *string   `json:"new_version"`
	SnapshotKey string    `json:"snapshot_key"`
	RowCount    int       `json:"row_count"`
	ColumnCount int       `json:"column_count"`
}

// Record is an entry read back together with the object key it lives at.
type Record struct {
	Key   string
	Entry Entry
}

// Logger writes audit entries under a prefix.
type Logger struct {
	store  minio.ObjectStore
	now    func() time.Time
	suffix func() string
}

// NewLogger returns a Logger using the wall clock and objkey.Suffix.
func NewLogger(store minio.ObjectStore) *Logger {
	return &Logger{store: store, now: time.Now, suffix: objkey.Suffix}
}

// WithClock overrides the timestamp and suffix sources.
func (l *Logger) WithClock(now func() time.Time, suffix func() string) *Logger {
	clone := *l
	if now != nil {
		clone.now = now
	}
	if suffix != nil {
		clone.suffix = suffix
	}
	return &clone
}

// Key builds prefix/{day}/user_{stamp}_{hex128}.log.
func Key(prefix string, at time.Time, suffix string) string {
	return objkey.Join(prefix, objkey.Day(at), keyPrefix+objkey.Stamp(at)+"_"+suffix+keySuffix)
}

// Append writes entry as a new object and returns its key. A zero Timestamp
// is filled from the logger clock; the key is dated from the same instant.
func (l *Logger) Append(ctx context.Context, bucket, prefix string, entry Entry) (string, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	var buf bytes.Buffer
	line, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	key := Key(prefix, entry.Timestamp, l.suffix())
	if _, err := l.store.PutObject(ctx, bucket, key, buf.Bytes(), contentType); err != nil {
		return "", err
	}
	return key, nil
}

// List reads back the entries under prefix, oldest first. A non-empty day
// (YYYY-MM-DD) restricts the listing to that date's folder.
func (l *Logger) List(ctx context.Context, bucket, prefix, day string) ([]Record, error) {
	listAt := objkey.Join(prefix, day)
	if listAt != "" {
		listAt += "/"
	}
	keys, err := l.store.ListPrefix(ctx, bucket, listAt)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, key := range keys {
		base := path.Base(key)
		if !strings.HasPrefix(base, keyPrefix) || !strings.HasSuffix(base, keySuffix) {
			continue
		}
		obj, err := l.store.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		var entry Entry
		if err := json.Unmarshal(bytes.TrimSpace(obj.Data), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", key, err)
		}
		records = append(records, Record{Key: key, Entry: entry})
	}
	return records, nil
}
