package minio

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const defaultEndpoint = "https://s3.amazonaws.com"

// Config captures how to reach the object store.
type Config struct {
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Profile selects a named profile from the AWS shared credentials file.
	Profile string
	// RootPath forces a LocalStore rooted at this directory.
	RootPath string
	// Unversioned disables version ids on the LocalStore fallback.
	Unversioned bool
}

// ParseConfig builds a Config from loose parameters.
func ParseConfig(params map[string]any) *Config {
	cfg := &Config{
		EndpointURL:     firstString(params, "endpointUrl", "endpoint_url", "url"),
		Region:          firstString(params, "region"),
		UseSSL:          firstBool(params, false, "useSSL", "use_ssl"),
		AccessKeyID:     firstString(params, "accessKeyId", "access_key_id", "accessKeyID"),
		SecretAccessKey: firstString(params, "secretAccessKey", "secret_access_key", "secretKey"),
		SessionToken:    firstString(params, "sessionToken", "session_token"),
		Profile:         firstString(params, "profile"),
		RootPath:        firstString(params, "rootPath", "root_path", "devRoot", "dev_root"),
		Unversioned:     firstBool(params, false, "unversioned"),
	}
	cfg.normalizeDefaults()
	return cfg
}

// Validate enforces basic shape rules before any connection attempt.
func (c *Config) Validate() error {
	if c.local() {
		return nil
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil {
		return wrapError(CodeEndpointUnreachable, true, fmt.Errorf("invalid endpoint URL: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return wrapError(CodeEndpointUnreachable, false, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme))
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return wrapError(CodeAuthInvalid, false, fmt.Errorf("accessKeyId and secretAccessKey must be set together"))
	}
	return nil
}

// Open returns the store described by the config: a LocalStore for file://
// endpoints or an explicit root path, an S3Client otherwise.
func Open(cfg *Config) (ObjectStore, error) {
	if cfg == nil {
		return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("config is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.local() {
		if cfg.Unversioned {
			return NewLocalStore(cfg.objectRoot()), nil
		}
		return NewVersionedLocalStore(cfg.objectRoot()), nil
	}
	return NewS3Client(cfg)
}

func (c *Config) normalizeDefaults() {
	if c.EndpointURL == "" && c.RootPath == "" {
		c.EndpointURL = defaultEndpoint
	}
}

func (c *Config) local() bool {
	return c.RootPath != "" || strings.HasPrefix(c.EndpointURL, "file://")
}

func (c *Config) objectRoot() string {
	if c.RootPath != "" {
		return c.RootPath
	}
	if u, err := url.Parse(c.EndpointURL); err == nil && u.Path != "" {
		return u.Path
	}
	return filepath.Join(os.TempDir(), "minio-"+sanitizePath(c.EndpointURL))
}

func firstString(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch t := v.(type) {
			case string:
				return strings.TrimSpace(t)
			case fmt.Stringer:
				return strings.TrimSpace(t.String())
			}
		}
	}
	return ""
}

func firstBool(params map[string]any, defaultVal bool, keys ...string) bool {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch t := v.(type) {
			case bool:
				return t
			case string:
				lowered := strings.ToLower(strings.TrimSpace(t))
				if lowered == "true" {
					return true
				}
				if lowered == "false" {
					return false
				}
			}
		}
	}
	return defaultVal
}

func sanitizePath(raw string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return replacer.Replace(raw)
}
