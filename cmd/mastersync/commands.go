package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nucleus/master-sync/pkg/codec"
	"github.com/nucleus/master-sync/pkg/flatten"
	"github.com/nucleus/master-sync/pkg/pipeline"
	"github.com/nucleus/master-sync/pkg/versioning"
)

// localFile is the working copy path: the argument, or the master key's base
// name in the current directory.
func (a *app) localFile(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return path.Base(a.cfg.MasterKey)
}

func (a *app) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [file]",
		Short: "Download the master table into a local working copy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			loc := p.Location()
			file := a.localFile(args)

			d, version, err := p.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			payload, err := codec.Encode(d, loc.Format)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, payload, 0o644); err != nil {
				return err
			}
			if err := writeSidecar(file, &sidecar{
				Bucket:    loc.Bucket,
				MasterKey: loc.MasterKey,
				Version:   version.Ptr(),
				SyncedAt:  time.Now().UTC(),
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pulled %s/%s at version %s (%d rows, %d columns) into %s\n",
				loc.Bucket, loc.MasterKey, version, d.NumRows(), d.NumColumns(), file)
			return nil
		},
	}
}

// errNotPulled rejects pushing a file with no sidecar over an existing master.
var errNotPulled = errors.New("working copy was never pulled")

func (a *app) pushCmd() *cobra.Command {
	var (
		note  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "push [file]",
		Short: "Save a local working copy as the new master",
		Long: `Push validates the working copy, checks that the master has not changed
since it was pulled, then writes the master, a snapshot and an audit entry.
A file that was never pulled may only replace an existing master with --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			loc := p.Location()
			file := a.localFile(args)

			sc, err := readSidecar(file)
			if err != nil {
				return err
			}
			if err := checkSidecar(sc, loc.Bucket, loc.MasterKey); err != nil {
				return err
			}
			if sc == nil {
				if err := a.checkUnpulled(cmd, p, file, force); err != nil {
					return err
				}
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			format, err := codec.FormatFromKey(file)
			if err != nil {
				format = loc.Format
			}
			draft, err := codec.Decode(data, format)
			if err != nil {
				return err
			}

			res, err := p.SaveDataset(cmd.Context(), draft, note, sc.token())
			if err != nil {
				var perr *pipeline.Error
				if errors.As(err, &perr) && perr.Code == pipeline.CodePartialSave {
					a.log.Warn("master was written but the save did not complete; pull before editing again",
						zap.Stringer("new_version", perr.NewVersion),
						zap.String("snapshot", perr.SnapshotKey))
				}
				return err
			}
			if err := writeSidecar(file, &sidecar{
				Bucket:    loc.Bucket,
				MasterKey: loc.MasterKey,
				Version:   res.NewVersion.Ptr(),
				SyncedAt:  time.Now().UTC(),
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved version %s (was %s, %d rows)\nsnapshot %s\naudit    %s\n",
				res.NewVersion, res.PrevVersion, res.Rows, res.SnapshotKey, res.AuditKey)
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "m", "", "note recorded in the audit entry")
	cmd.Flags().BoolVar(&force, "force", false, "replace the master from a file that was never pulled")
	return cmd
}

// checkUnpulled lets a never-pulled file create the master, and replace an
// existing one only when forced.
func (a *app) checkUnpulled(cmd *cobra.Command, p *pipeline.Pipeline, file string, force bool) error {
	current, _, err := p.Status(cmd.Context(), pipeline.NewSession())
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	loc := p.Location()
	if !force {
		return fmt.Errorf("%w: %s would replace %s/%s at version %s; pull first or pass --force",
			errNotPulled, file, loc.Bucket, loc.MasterKey, current)
	}
	a.log.Warn("replacing master from a file that was never pulled",
		zap.String("file", file),
		zap.Stringer("current", current))
	return nil
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [file]",
		Short: "Compare a working copy's version with the store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			if err := p.Reachable(cmd.Context()); err != nil {
				return err
			}
			file := a.localFile(args)
			sc, err := readSidecar(file)
			if err != nil {
				return err
			}

			current, stale, err := p.Status(cmd.Context(), pipeline.ResumeSession(nil, sc.token()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "master:  %s/%s\n", p.Location().Bucket, p.Location().MasterKey)
			fmt.Fprintf(out, "current: %s\n", current)
			switch {
			case sc == nil:
				fmt.Fprintf(out, "local:   %s has not been pulled\n", file)
			case stale:
				fmt.Fprintf(out, "local:   %s (stale, pull before pushing)\n", sc.token())
			default:
				fmt.Fprintf(out, "local:   %s (up to date)\n", sc.token())
			}
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var (
		day       string
		snapshots bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List audit entries or snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if snapshots {
				keys, err := p.Snapshots(cmd.Context())
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(out, key)
				}
				return nil
			}

			records, err := p.History(cmd.Context(), day)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No audit entries.")
				return nil
			}
			for _, rec := range records {
				e := rec.Entry
				fmt.Fprintf(out, "%s  %-12s %s -> %s  %dx%d  %s\n",
					e.Timestamp.Format(time.RFC3339), e.User,
					optionalVersion(e.PrevVersion), optionalVersion(e.NewVersion),
					e.RowCount, e.ColumnCount, e.SnapshotKey)
				if e.Note != "" {
					fmt.Fprintf(out, "    %s\n", e.Note)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "only entries from this UTC day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "list snapshot keys instead of audit entries")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	var (
		note string
		file string
	)
	cmd := &cobra.Command{
		Use:   "restore <snapshot-key>",
		Short: "Save a snapshot as the new master",
		Long: `Restore writes a snapshot's contents through the same guarded save as push.
With --file the working copy's pulled version is the expected version;
otherwise the store's current version is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var expected versioning.Token
			if file != "" {
				sc, err := readSidecar(file)
				if err != nil {
					return err
				}
				expected = sc.token()
			} else {
				current, _, err := p.Status(ctx, pipeline.NewSession())
				if err != nil && !errors.Is(err, pipeline.ErrNotFound) {
					return err
				}
				expected = current
			}
			if note == "" {
				note = "restore " + args[0]
			}

			res, err := p.Restore(ctx, pipeline.ResumeSession(nil, expected), args[0], note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s as version %s (was %s)\n", args[0], res.NewVersion, res.PrevVersion)
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "m", "", "note recorded in the audit entry")
	cmd.Flags().StringVar(&file, "file", "", "working copy whose pulled version guards the restore")
	return cmd
}

func (a *app) flattenCmd() *cobra.Command {
	var (
		prefix string
		output string
		format string
		rps    float64
	)
	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Merge part files under a prefix into one object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			partsFormat, err := codec.ParseFormat(format)
			if err != nil {
				return err
			}
			f := flatten.New(store, flatten.Options{Logger: a.log, RequestsPerSecond: rps})
			res, err := f.Flatten(cmd.Context(), flatten.Request{
				Bucket:    a.cfg.Location().Bucket,
				Prefix:    prefix,
				OutputKey: output,
				Format:    partsFormat,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s from %d part file(s); rows=%d\n", res.OutputKey, len(res.Parts), res.Rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix holding the part files, e.g. data/master.parquet/")
	cmd.Flags().StringVar(&output, "output-key", "", "key of the merged object")
	cmd.Flags().StringVar(&format, "parts-format", string(codec.FormatParquet), "format of the parts and the output")
	cmd.Flags().Float64Var(&rps, "rps", 0, "max part downloads per second, 0 for no limit")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("output-key")
	return cmd
}

func optionalVersion(v *string) string {
	if v == nil {
		return "<none>"
	}
	return *v
}
