package flatten

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/pkg/codec"
	"github.com/nucleus/master-sync/pkg/dataset"
)

const bucket = "hypoxia24"

func putPart(t *testing.T, store minio.ObjectStore, key string, d *dataset.Dataset) {
	t.Helper()
	data, err := codec.Encode(d, codec.FormatParquet)
	if err != nil {
		t.Fatalf("encode %s: %v", key, err)
	}
	if _, err := store.PutObject(context.Background(), bucket, key, data, codec.FormatParquet.ContentType()); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func TestFlattenMergesPartsInListingOrder(t *testing.T) {
	ctx := context.Background()
	store := minio.NewVersionedLocalStore(t.TempDir())
	putPart(t, store, "data/master.parquet/part-00000", dataset.MustNew(
		dataset.Ints("tow", 1, 2),
		dataset.Strings("station", "A", "B"),
	))
	putPart(t, store, "data/master.parquet/part-00001.parquet", dataset.MustNew(
		dataset.Ints("tow", 3),
		dataset.Strings("station", "C"),
	))
	if _, err := store.PutObject(ctx, bucket, "data/master.parquet/_SUCCESS", nil, "application/octet-stream"); err != nil {
		t.Fatalf("put marker: %v", err)
	}

	f := New(store, Options{Logger: zaptest.NewLogger(t), RequestsPerSecond: 1000, Burst: 2})
	res, err := f.Flatten(ctx, Request{
		Bucket:    bucket,
		Prefix:    "data/master.parquet/",
		OutputKey: "data/master_flat.parquet",
	})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if diff := cmp.Diff([]string{"data/master.parquet/part-00000", "data/master.parquet/part-00001.parquet"}, res.Parts); diff != "" {
		t.Fatalf("parts mismatch (-want +got):\n%s", diff)
	}
	if res.Rows != 3 || res.Columns != 2 || res.Version != "v1" {
		t.Fatalf("unexpected result %+v", res)
	}

	obj, err := store.GetObject(ctx, bucket, "data/master_flat.parquet")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	got, err := codec.Decode(obj.Data, codec.FormatParquet)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := dataset.MustNew(
		dataset.Ints("tow", 1, 2, 3),
		dataset.Strings("station", "A", "B", "C"),
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenCSVParts(t *testing.T) {
	ctx := context.Background()
	store := minio.NewLocalStore(t.TempDir())
	for key, body := range map[string]string{
		"exports/run1/a.csv": "tow,net\n1,1\n",
		"exports/run1/b.csv": "tow,net\n2,1\n",
	} {
		if _, err := store.PutObject(ctx, bucket, key, []byte(body), "text/csv"); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	f := New(store, Options{})
	res, err := f.Flatten(ctx, Request{Bucket: bucket, Prefix: "exports/run1/", OutputKey: "exports/run1/merged.csv", Format: codec.FormatCSV})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	obj, err := store.GetObject(ctx, bucket, "exports/run1/merged.csv")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got, want := string(obj.Data), "tow,net\n1,1\n2,1\n"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	// A second run skips its own previous output.
	again, err := f.Flatten(ctx, Request{Bucket: bucket, Prefix: "exports/run1/", OutputKey: "exports/run1/merged.csv", Format: codec.FormatCSV})
	if err != nil {
		t.Fatalf("second flatten: %v", err)
	}
	if again.Rows != res.Rows {
		t.Fatalf("output was merged into itself: %d rows vs %d", again.Rows, res.Rows)
	}
}

func TestFlattenWithoutParts(t *testing.T) {
	ctx := context.Background()
	store := minio.NewLocalStore(t.TempDir())
	if _, err := store.PutObject(ctx, bucket, "data/master.parquet/_SUCCESS", nil, ""); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	_, err := New(store, Options{}).Flatten(ctx, Request{Bucket: bucket, Prefix: "data/master.parquet/", OutputKey: "data/out.parquet"})
	if !errors.Is(err, ErrNoParts) {
		t.Fatalf("expected no parts, got %v", err)
	}
	if _, err := store.GetObject(ctx, bucket, "data/out.parquet"); !minio.IsNotFound(err) {
		t.Fatalf("no output should be written, got %v", err)
	}
}

func TestFlattenRejectsMismatchedParts(t *testing.T) {
	ctx := context.Background()
	store := minio.NewLocalStore(t.TempDir())
	putPart(t, store, "parts/0", dataset.MustNew(dataset.Ints("tow", 1)))
	putPart(t, store, "parts/1", dataset.MustNew(dataset.Strings("station", "A")))

	_, err := New(store, Options{}).Flatten(ctx, Request{Bucket: bucket, Prefix: "parts/", OutputKey: "out.parquet"})
	if !Error.Has(err) {
		t.Fatalf("expected flatten error, got %v", err)
	}
}

func TestFlattenValidatesRequest(t *testing.T) {
	f := New(minio.NewLocalStore(t.TempDir()), Options{})
	if _, err := f.Flatten(context.Background(), Request{Bucket: bucket, Prefix: "p/"}); !Error.Has(err) {
		t.Fatalf("expected missing output key to fail, got %v", err)
	}
	if _, err := f.Flatten(context.Background(), Request{Bucket: bucket, Prefix: "p/", OutputKey: "o", Format: "xlsx"}); !Error.Has(err) {
		t.Fatalf("expected unknown format to fail, got %v", err)
	}
}
