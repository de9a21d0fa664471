// Package config loads master-sync settings from defaults, an optional YAML
// file and the environment. Command-line flags are applied last by the CLI.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/pkg/codec"
	"github.com/nucleus/master-sync/pkg/dataset"
	"github.com/nucleus/master-sync/pkg/pipeline"
)

// Error is the class of configuration failures.
var Error = errs.Class("config")

// Config holds everything needed to open the store and address the master.
type Config struct {
	Bucket         string `yaml:"bucket"`
	MasterKey      string `yaml:"master_key"`
	SnapshotPrefix string `yaml:"snapshot_prefix"`
	AuditPrefix    string `yaml:"audit_prefix"`
	Profile        string `yaml:"profile"`
	Format         string `yaml:"format"`

	// Store settings
	EndpointURL     string `yaml:"endpoint_url"`
	Region          string `yaml:"region"`
	UseSSL          bool   `yaml:"use_ssl"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	RootPath        string `yaml:"root_path"`
	Unversioned     bool   `yaml:"unversioned"`

	// Pipeline settings
	KeyColumns []string `yaml:"key_columns"`
	Actor      string   `yaml:"actor"`
	StrictHead bool     `yaml:"strict_head"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Bucket:         "my-bucket",
		MasterKey:      "data/master.csv",
		SnapshotPrefix: "snapshots",
		AuditPrefix:    "audit",
		Format:         string(codec.FormatCSV),
		KeyColumns:     append([]string(nil), dataset.DefaultKeyColumns...),
		Actor:          defaultActor(),
	}
}

// Load layers the YAML file at path (skipped when empty) and then the
// environment over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, Error.New("parse %s: %v", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Bucket = getEnv("S3_BUCKET", c.Bucket)
	c.MasterKey = getEnv("S3_MASTER_KEY", c.MasterKey)
	c.SnapshotPrefix = getEnv("S3_SNAPSHOT_PREFIX", c.SnapshotPrefix)
	c.AuditPrefix = getEnv("S3_AUDIT_PREFIX", c.AuditPrefix)
	c.Profile = getEnv("AWS_PROFILE", c.Profile)
	c.Format = strings.ToLower(getEnv("S3_FILE_FORMAT", c.Format))
	c.EndpointURL = getEnv("S3_ENDPOINT_URL", c.EndpointURL)
	c.Region = getEnv("AWS_REGION", c.Region)
	c.UseSSL = getEnvBool("S3_USE_SSL", c.UseSSL)
	c.AccessKeyID = getEnv("MINIO_ACCESS_KEY", c.AccessKeyID)
	c.SecretAccessKey = getEnv("MINIO_SECRET_KEY", c.SecretAccessKey)
	c.RootPath = getEnv("MASTERSYNC_ROOT", c.RootPath)
	if cols := getEnv("MASTERSYNC_KEY_COLUMNS", ""); cols != "" {
		c.KeyColumns = splitList(cols)
	}
	c.Actor = getEnv("MASTERSYNC_ACTOR", c.Actor)
}

// Validate rejects settings that cannot address a master object.
func (c *Config) Validate() error {
	var group errs.Group
	if strings.TrimSpace(c.Bucket) == "" {
		group.Add(Error.New("bucket is required"))
	}
	if strings.TrimSpace(c.MasterKey) == "" {
		group.Add(Error.New("master key is required"))
	}
	if _, err := codec.ParseFormat(c.Format); err != nil {
		group.Add(Error.Wrap(err))
	}
	if len(c.Actor) > pipeline.MaxActorLength {
		group.Add(Error.New("actor identity exceeds %d bytes", pipeline.MaxActorLength))
	}
	if err := c.Store().Validate(); err != nil {
		group.Add(Error.Wrap(err))
	}
	return group.Err()
}

// Store returns the object store settings.
func (c *Config) Store() *minio.Config {
	return minio.ParseConfig(map[string]any{
		"endpointUrl":     c.EndpointURL,
		"region":          c.Region,
		"useSSL":          c.UseSSL,
		"accessKeyId":     c.AccessKeyID,
		"secretAccessKey": c.SecretAccessKey,
		"profile":         c.Profile,
		"rootPath":        c.RootPath,
		"unversioned":     c.Unversioned,
	})
}

// Location returns the pipeline location. Call after Validate.
func (c *Config) Location() pipeline.Location {
	format, _ := codec.ParseFormat(c.Format)
	return pipeline.Location{
		Bucket:         strings.TrimSpace(c.Bucket),
		MasterKey:      strings.TrimSpace(c.MasterKey),
		SnapshotPrefix: c.SnapshotPrefix,
		AuditPrefix:    c.AuditPrefix,
		Profile:        c.Profile,
		Format:         format,
	}
}

// Options returns the pipeline options without logger or clock.
func (c *Config) Options() pipeline.Options {
	return pipeline.Options{
		KeyColumns: append([]string(nil), c.KeyColumns...),
		Actor:      c.Actor,
		StrictHead: c.StrictHead,
	}
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return getEnv("USERNAME", "unknown")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
