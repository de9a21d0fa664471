package minio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Object is a fetched object body together with the revision it belongs to.
// VersionID is empty when the store does not version the bucket.
type Object struct {
	Key       string
	Data      []byte
	VersionID string
}

// ObjectStore abstracts the MinIO/S3 operations needed by the sync pipeline.
// Version ids are opaque; an empty id means the store assigned none.
type ObjectStore interface {
	Ping(ctx context.Context) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
	HeadObject(ctx context.Context, bucket, key string) (string, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ConditionalPutter is implemented by stores that can reject a write when the
// object's current version differs from expected, in a single operation.
type ConditionalPutter interface {
	PutObjectIfVersion(ctx context.Context, bucket, key string, data []byte, contentType, expected string) (string, error)
}

const versionsDir = ".versions"

// LocalStore persists objects on disk to mimic MinIO behaviour for dev and tests.
// A versioned LocalStore assigns per-key ids v1, v2, ... on every write.
type LocalStore struct {
	root      string
	versioned bool
	mu        sync.Mutex
}

// NewLocalStore creates an unversioned local object store rooted at dir.
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "minio-store")
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalStore{root: root}
}

// NewVersionedLocalStore creates a local store that behaves like a bucket
// with object versioning enabled.
func NewVersionedLocalStore(root string) *LocalStore {
	s := NewLocalStore(root)
	s.versioned = true
	return s
}

func (s *LocalStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0o755)
}

func (s *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.bucketPath(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, fmt.Errorf("%s/%s: %w", bucket, key, err))
		}
		return nil, wrapError(CodeReadFailed, true, err)
	}
	version, err := s.currentVersion(bucket, key)
	if err != nil {
		return nil, err
	}
	return &Object{Key: key, Data: data, VersionID: version}, nil
}

func (s *LocalStore) HeadObject(ctx context.Context, bucket, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if bucket == "" {
		return "", wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.objectPath(bucket, key)); err != nil {
		if os.IsNotExist(err) {
			return "", wrapError(CodeObjectNotFound, false, fmt.Errorf("%s/%s: %w", bucket, key, err))
		}
		return "", wrapError(CodeReadFailed, true, err)
	}
	return s.currentVersion(bucket, key)
}

func (s *LocalStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(bucket, key, data)
}

// PutObjectIfVersion rejects the write only when the object has a current
// version and it differs from expected. An empty expected version or a
// missing object lets the write through.
func (s *LocalStore) PutObjectIfVersion(ctx context.Context, bucket, key string, data []byte, contentType, expected string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if _, err := os.Stat(s.objectPath(bucket, key)); err == nil {
		v, verr := s.currentVersion(bucket, key)
		if verr != nil {
			return "", verr
		}
		current = v
	} else if !os.IsNotExist(err) {
		return "", wrapError(CodeReadFailed, true, err)
	}
	if current != "" && expected != "" && current != expected {
		return "", wrapError(CodePreconditionFailed, false,
			fmt.Errorf("%s/%s is at version %q, expected %q", bucket, key, current, expected))
	}
	return s.putLocked(bucket, key, data)
}

func (s *LocalStore) putLocked(bucket, key string, data []byte) (string, error) {
	if bucket == "" {
		return "", wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	if key == "" {
		return "", wrapError(CodeWriteFailed, false, fmt.Errorf("object key is required"))
	}
	if err := os.MkdirAll(s.bucketPath(bucket), 0o755); err != nil {
		return "", wrapError(CodePermissionDenied, false, err)
	}

	fullPath := s.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", wrapError(CodePermissionDenied, false, err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", wrapError(CodeWriteFailed, true, err)
	}
	if !s.versioned {
		return "", nil
	}
	return s.bumpVersion(bucket, key)
}

func (s *LocalStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.bucketPath(bucket)
	var keys []string
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, wrapError(CodeReadFailed, true, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// currentVersion reads the sidecar revision counter of an existing object.
func (s *LocalStore) currentVersion(bucket, key string) (string, error) {
	if !s.versioned {
		return "", nil
	}
	n, err := s.readCounter(bucket, key)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return "v" + strconv.FormatInt(n, 10), nil
}

func (s *LocalStore) bumpVersion(bucket, key string) (string, error) {
	n, err := s.readCounter(bucket, key)
	if err != nil {
		return "", err
	}
	n++
	path := s.counterPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", wrapError(CodePermissionDenied, false, err)
	}
	if err := os.WriteFile(path, []byte(strconv.FormatInt(n, 10)), 0o644); err != nil {
		return "", wrapError(CodeWriteFailed, true, err)
	}
	return "v" + strconv.FormatInt(n, 10), nil
}

func (s *LocalStore) readCounter(bucket, key string) (int64, error) {
	raw, err := os.ReadFile(s.counterPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, wrapError(CodeReadFailed, true, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, wrapError(CodeReadFailed, false, fmt.Errorf("corrupt version counter for %s/%s: %w", bucket, key, err))
	}
	return n, nil
}

func (s *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, sanitizePath(bucket))
}

func (s *LocalStore) objectPath(bucket, key string) string {
	return filepath.Join(s.bucketPath(bucket), filepath.FromSlash(key))
}

func (s *LocalStore) counterPath(bucket, key string) string {
	return filepath.Join(s.root, versionsDir, sanitizePath(bucket), filepath.FromSlash(key)+".version")
}
