package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/pkg/codec"
)

var envKeys = []string{
	"S3_BUCKET", "S3_MASTER_KEY", "S3_SNAPSHOT_PREFIX", "S3_AUDIT_PREFIX",
	"AWS_PROFILE", "S3_FILE_FORMAT", "S3_ENDPOINT_URL", "AWS_REGION",
	"S3_USE_SSL", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MASTERSYNC_ROOT",
	"MASTERSYNC_KEY_COLUMNS", "MASTERSYNC_ACTOR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("USER", "")
	t.Setenv("USERNAME", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bucket != "my-bucket" || cfg.MasterKey != "data/master.csv" {
		t.Fatalf("unexpected location defaults %+v", cfg)
	}
	if cfg.SnapshotPrefix != "snapshots" || cfg.AuditPrefix != "audit" || cfg.Format != "csv" {
		t.Fatalf("unexpected prefix defaults %+v", cfg)
	}
	if diff := cmp.Diff([]string{"tow", "net"}, cfg.KeyColumns); diff != "" {
		t.Fatalf("key columns mismatch (-want +got):\n%s", diff)
	}
	if cfg.Actor != "unknown" {
		t.Fatalf("expected unknown actor, got %q", cfg.Actor)
	}
}

func TestActorFallsBackToUsername(t *testing.T) {
	clearEnv(t)
	t.Setenv("USER", "")
	t.Setenv("USERNAME", "deckhand")
	if got := Default().Actor; got != "deckhand" {
		t.Fatalf("expected USERNAME actor, got %q", got)
	}
	t.Setenv("USER", "chief")
	if got := Default().Actor; got != "chief" {
		t.Fatalf("expected USER actor, got %q", got)
	}
}

func TestFileThenEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mastersync.yaml")
	body := `bucket: cruise-data
master_key: tows/master.parquet
format: parquet
key_columns: [cruise, tow]
strict_head: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("S3_BUCKET", "override-bucket")
	t.Setenv("MASTERSYNC_KEY_COLUMNS", " tow , net,, station ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bucket != "override-bucket" {
		t.Fatalf("environment should override file, got %q", cfg.Bucket)
	}
	if cfg.MasterKey != "tows/master.parquet" || !cfg.StrictHead {
		t.Fatalf("file settings lost: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"tow", "net", "station"}, cfg.KeyColumns); diff != "" {
		t.Fatalf("key columns mismatch (-want +got):\n%s", diff)
	}
	loc := cfg.Location()
	if loc.Format != codec.FormatParquet || loc.Bucket != "override-bucket" {
		t.Fatalf("unexpected location %+v", loc)
	}
	if !cfg.Options().StrictHead {
		t.Fatalf("strict head not carried into options")
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("bucket: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if !Error.Has(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing bucket", func(c *Config) { c.Bucket = " " }, false},
		{"missing master key", func(c *Config) { c.MasterKey = "" }, false},
		{"unknown format", func(c *Config) { c.Format = "xlsx" }, false},
		{"bad endpoint scheme", func(c *Config) { c.EndpointURL = "ftp://example.com" }, false},
		{"half credentials", func(c *Config) { c.AccessKeyID = "AKIA" }, false},
		{"local root", func(c *Config) { c.RootPath = "/tmp/objects"; c.EndpointURL = "ftp://ignored" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestStoreOpensLocalRoot(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.RootPath = t.TempDir()
	store, err := minio.Open(cfg.Store())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*minio.LocalStore); !ok {
		t.Fatalf("expected LocalStore, got %T", store)
	}
}
