// Command mastersync pulls the master table from object storage into a local
// file and pushes edits back through the guarded save pipeline.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nucleus/master-sync/internal/config"
	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/pkg/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries settings resolved in PersistentPreRunE to the subcommands.
type app struct {
	cfgFile string
	verbose bool

	bucket         string
	masterKey      string
	snapshotPrefix string
	auditPrefix    string
	profile        string
	format         string
	endpoint       string
	root           string
	actor          string
	keyColumns     []string
	strictHead     bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	return (&app{}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mastersync",
		Short: "Versioned master table sync with snapshots and audit trail",
		Long: `mastersync keeps a tabular master object in S3-compatible storage.
Every push is checked against the version that was pulled, snapshotted
and recorded in an append-only audit trail.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable development logging")
	flags.StringVar(&a.bucket, "bucket", "", "bucket holding the master object (env S3_BUCKET)")
	flags.StringVar(&a.masterKey, "master-key", "", "object key of the master table (env S3_MASTER_KEY)")
	flags.StringVar(&a.snapshotPrefix, "snapshot-prefix", "", "key prefix for snapshots (env S3_SNAPSHOT_PREFIX)")
	flags.StringVar(&a.auditPrefix, "audit-prefix", "", "key prefix for audit entries (env S3_AUDIT_PREFIX)")
	flags.StringVar(&a.profile, "profile", "", "AWS shared credentials profile (env AWS_PROFILE)")
	flags.StringVar(&a.format, "format", "", "master format, csv or parquet (env S3_FILE_FORMAT)")
	flags.StringVar(&a.endpoint, "endpoint", "", "S3 endpoint URL (env S3_ENDPOINT_URL)")
	flags.StringVar(&a.root, "root", "", "use a local directory as the object store (env MASTERSYNC_ROOT)")
	flags.StringVar(&a.actor, "actor", "", "identity recorded in audit entries (env MASTERSYNC_ACTOR)")
	flags.StringSliceVar(&a.keyColumns, "key-columns", nil, "columns that must be unique together (env MASTERSYNC_KEY_COLUMNS)")
	flags.BoolVar(&a.strictHead, "strict-head", false, "fail a push when the version lookup errors")

	root.AddCommand(
		a.pullCmd(),
		a.pushCmd(),
		a.statusCmd(),
		a.historyCmd(),
		a.restoreCmd(),
		a.flattenCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.log == nil {
		log, err := newLogger(a.verbose)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		a.log = log
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("bucket") {
		cfg.Bucket = a.bucket
	}
	if changed("master-key") {
		cfg.MasterKey = a.masterKey
	}
	if changed("snapshot-prefix") {
		cfg.SnapshotPrefix = a.snapshotPrefix
	}
	if changed("audit-prefix") {
		cfg.AuditPrefix = a.auditPrefix
	}
	if changed("profile") {
		cfg.Profile = a.profile
	}
	if changed("format") {
		cfg.Format = strings.ToLower(a.format)
	}
	if changed("endpoint") {
		cfg.EndpointURL = a.endpoint
	}
	if changed("root") {
		cfg.RootPath = a.root
	}
	if changed("actor") {
		cfg.Actor = a.actor
	}
	if changed("key-columns") {
		cfg.KeyColumns = a.keyColumns
	}
	if changed("strict-head") {
		cfg.StrictHead = a.strictHead
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (a *app) openStore() (minio.ObjectStore, error) {
	return minio.Open(a.cfg.Store())
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	opts := a.cfg.Options()
	opts.Logger = a.log
	return pipeline.New(store, a.cfg.Location(), opts)
}
