package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nucleus/master-sync/pkg/versioning"
)

const sidecarSuffix = ".mastersync.json"

// sidecar records which master version a local file was derived from. It is
// the CLI's stand-in for an editing session.
type sidecar struct {
	Bucket    string    `json:"bucket"`
	MasterKey string    `json:"master_key"`
	Version   *string   `json:"version"`
	SyncedAt  time.Time `json:"synced_at"`
}

func sidecarPath(file string) string { return file + sidecarSuffix }

func (s *sidecar) token() versioning.Token {
	if s == nil || s.Version == nil {
		return ""
	}
	return versioning.Token(*s.Version)
}

// readSidecar returns nil without error when file has never been pulled.
func readSidecar(file string) (*sidecar, error) {
	data, err := os.ReadFile(sidecarPath(file))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", sidecarPath(file), err)
	}
	return &s, nil
}

func writeSidecar(file string, s *sidecar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(file), append(data, '\n'), 0o644)
}

// checkSidecar rejects pushing a file pulled from a different master.
func checkSidecar(s *sidecar, bucket, masterKey string) error {
	if s == nil {
		return nil
	}
	if s.Bucket != bucket || s.MasterKey != masterKey {
		return fmt.Errorf("file was pulled from %s/%s, not %s/%s", s.Bucket, s.MasterKey, bucket, masterKey)
	}
	return nil
}
