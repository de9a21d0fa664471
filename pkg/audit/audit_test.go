package audit

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/nucleus/master-sync/internal/connector/minio"
)

func strPtr(s string) *string { return &s }

func TestAppendWritesOneJSONLinePerObject(t *testing.T) {
	ctx := context.Background()
	store := minio.NewVersionedLocalStore(t.TempDir())
	at := time.Date(2024, 7, 4, 3, 15, 9, 0, time.UTC)
	logger := NewLogger(store).WithClock(func() time.Time { return at }, nil)

	key, err := logger.Append(ctx, "bucket", "audit", Entry{
		User:        "alice",
		Note:        "corrected depths for SR2407 tow 3",
		PrevVersion: strPtr("v1"),
		NewVersion:  strPtr("v2"),
		SnapshotKey: "snapshots/master_x.csv",
		RowCount:    3,
		ColumnCount: 4,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	re := regexp.MustCompile(`^audit/2024-07-04/user_20240704T031509_[0-9a-f]{32}\.log$`)
	if !re.MatchString(key) {
		t.Fatalf("unexpected audit key %q", key)
	}

	obj, err := store.GetObject(ctx, "bucket", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := string(obj.Data)
	if strings.Count(body, "\n") != 1 || !strings.HasSuffix(body, "\n") {
		t.Fatalf("expected a single newline-terminated record, got %q", body)
	}
	var fields map[string]any
	if err := json.Unmarshal(obj.Data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, name := range []string{"timestamp", "user", "note", "prev_version", "new_version", "snapshot_key", "row_count", "column_count"} {
		if _, ok := fields[name]; !ok {
			t.Fatalf("audit record missing %q: %s", name, body)
		}
	}
	if fields["timestamp"] != "2024-07-04T03:15:09Z" {
		t.Fatalf("unexpected timestamp %v", fields["timestamp"])
	}
}

func TestAppendSerializesAbsentVersionsAsNull(t *testing.T) {
	ctx := context.Background()
	store := minio.NewLocalStore(t.TempDir())
	key, err := NewLogger(store).Append(ctx, "bucket", "audit", Entry{User: "bob", RowCount: 1, ColumnCount: 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	obj, err := store.GetObject(ctx, "bucket", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(string(obj.Data), `"prev_version":null`) || !strings.Contains(string(obj.Data), `"new_version":null`) {
		t.Fatalf("expected null versions, got %s", obj.Data)
	}
}

func TestListReadsEntriesBack(t *testing.T) {
	ctx := context.Background()
	store := minio.NewVersionedLocalStore(t.TempDir())
	logger := NewLogger(store)

	day1 := time.Date(2024, 7, 4, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 7, 5, 9, 0, 0, 0, time.UTC)
	for _, e := range []Entry{
		{Timestamp: day2, User: "b", Note: "second"},
		{Timestamp: day1, User: "a", Note: "first"},
	} {
		if _, err := logger.Append(ctx, "bucket", "audit", e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := store.PutObject(ctx, "bucket", "audit/README", []byte("not an entry"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	all, err := logger.List(ctx, "bucket", "audit", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Entry.Note != "first" || all[1].Entry.Note != "second" {
		t.Fatalf("unexpected entries %+v", all)
	}

	one, err := logger.List(ctx, "bucket", "audit", "2024-07-05")
	if err != nil {
		t.Fatalf("list day: %v", err)
	}
	if len(one) != 1 || one[0].Entry.User != "b" {
		t.Fatalf("unexpected day listing %+v", one)
	}
}
