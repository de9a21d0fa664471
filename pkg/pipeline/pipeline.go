// Package pipeline drives load (fetch, decode, validate) and save (validate,
// guard, encode, write master, write snapshot, write audit) of the master
// object as single operations with a classified outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/internal/objkey"
	"github.com/nucleus/master-sync/pkg/audit"
	"github.com/nucleus/master-sync/pkg/codec"
	"github.com/nucleus/master-sync/pkg/dataset"
	"github.com/nucleus/master-sync/pkg/snapshot"
	"github.com/nucleus/master-sync/pkg/versioning"
)

var mon = monkit.Package()

const (
	MaxNoteLength  = 4096
	MaxActorLength = 256
)

// Location addresses the master object and its snapshot and audit trails.
type Location struct {
	Bucket         string
	MasterKey      string
	SnapshotPrefix string
	AuditPrefix    string
	// Profile is the credential selector the store was opened with.
	Profile string
	Format  codec.Format
}

// Validate checks that the location can address a master object.
func (l Location) Validate() error {
	if l.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if l.MasterKey == "" {
		return fmt.Errorf("master key is required")
	}
	if _, err := codec.ParseFormat(string(l.Format)); err != nil {
		return err
	}
	return nil
}

// Options tune a Pipeline. The zero value checks no key columns, records the
// actor as "unknown" and logs nothing.
type Options struct {
	// KeyColumns is the uniqueness constraint checked on load and save.
	KeyColumns []string
	Actor      string
	// StrictHead fails a save when the pre-write version lookup hits a
	// transport error, instead of treating the version as absent.
	StrictHead bool
	Logger     *zap.Logger
	Now        func() time.Time
	Suffix     func() string
}

// SaveResult describes a completed save.
type SaveResult struct {
	PrevVersion versioning.Token
	NewVersion  versioning.Token
	SnapshotKey string
	AuditKey    string
	Rows        int
	Columns     int
}

// Pipeline is stateless apart from its configuration; sessions carry the
// per-editor state.
type Pipeline struct {
	store      minio.ObjectStore
	loc        Location
	keyColumns []string
	actor      string
	strictHead bool
	log        *zap.Logger
	now        func() time.Time
	snapshots  *snapshot.Writer
	audit      *audit.Logger
}

// New builds a pipeline over store for loc.
func New(store minio.ObjectStore, loc Location, opts Options) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	actor := opts.Actor
	if actor == "" {
		actor = "unknown"
	}
	if len(actor) > MaxActorLength {
		return nil, fmt.Errorf("actor identity is %d bytes, limit is %d", len(actor), MaxActorLength)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	suffix := opts.Suffix
	if suffix == nil {
		suffix = objkey.Suffix
	}

	return &Pipeline{
		store:      store,
		loc:        loc,
		keyColumns: append([]string(nil), opts.KeyColumns...),
		actor:      actor,
		strictHead: opts.StrictHead,
		log:        log.With(zap.String("bucket", loc.Bucket), zap.String("master", loc.MasterKey)),
		now:        now,
		snapshots:  snapshot.NewWriter(store).WithClock(now, suffix),
		audit:      audit.NewLogger(store).WithClock(now, suffix),
	}, nil
}

// Location returns the configured location.
func (p *Pipeline) Location() Location { return p.loc }

// Reachable checks that the store answers and that the bucket exists.
func (p *Pipeline) Reachable(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := p.store.Ping(ctx); err != nil {
		return &Error{Code: CodeTransport, Stage: StateIdle, Err: err}
	}
	exists, err := p.store.BucketExists(ctx, p.loc.Bucket)
	if err != nil {
		return &Error{Code: CodeTransport, Stage: StateIdle, Err: err}
	}
	if !exists {
		return &Error{Code: CodeNotFound, Stage: StateIdle, Err: fmt.Errorf("bucket %q does not exist", p.loc.Bucket)}
	}
	return nil
}

// Load fetches, decodes and validates the master object into sess. On failure
// the session keeps whatever it held before.
func (p *Pipeline) Load(ctx context.Context, sess *Session) (err error) {
	defer mon.Task()(&ctx)(&err)
	sess.op.Lock()
	defer sess.op.Unlock()

	d, version, err := p.fetch(ctx, sess.transition)
	sess.settle(d, version, err)
	if err != nil {
		return err
	}
	p.log.Info("loaded master",
		zap.Stringer("version", version),
		zap.Int("rows", d.NumRows()),
		zap.Int("columns", d.NumColumns()))
	return nil
}

// Fetch is the session-free form of Load.
func (p *Pipeline) Fetch(ctx context.Context) (_ *dataset.Dataset, _ versioning.Token, err error) {
	defer mon.Task()(&ctx)(&err)
	return p.fetch(ctx, func(State) {})
}

func (p *Pipeline) fetch(ctx context.Context, track func(State)) (*dataset.Dataset, versioning.Token, error) {
	track(StateLoading)
	obj, err := p.store.GetObject(ctx, p.loc.Bucket, p.loc.MasterKey)
	if err != nil {
		code := CodeTransport
		if minio.IsNotFound(err) {
			code = CodeNotFound
		}
		return nil, "", &Error{Code: code, Stage: StateLoading, Err: err}
	}
	d, err := codec.Decode(obj.Data, p.loc.Format)
	if err != nil {
		return nil, "", &Error{Code: CodeFormat, Stage: StateLoading, Err: err}
	}
	if err := dataset.Validate(d, p.keyColumns); err != nil {
		return nil, "", validationError(StateLoading, err)
	}
	return d, versioning.Token(obj.VersionID), nil
}

// Save writes draft over the master object, checked against the version the
// session holds. On success the session holds draft at the new version.
func (p *Pipeline) Save(ctx context.Context, sess *Session, draft *dataset.Dataset, note string) (_ *SaveResult, err error) {
	defer mon.Task()(&ctx)(&err)
	sess.op.Lock()
	defer sess.op.Unlock()

	_, expected := sess.snapshot()
	res, err := p.save(ctx, draft, note, expected, sess.transition)
	if err != nil {
		sess.settle(nil, "", err)
		return nil, err
	}
	sess.settle(draft, res.NewVersion, nil)
	return res, nil
}

// SaveDataset is the session-free form of Save: expected is the version the
// draft was derived from, absent for a first write.
func (p *Pipeline) SaveDataset(ctx context.Context, draft *dataset.Dataset, note string, expected versioning.Token) (_ *SaveResult, err error) {
	defer mon.Task()(&ctx)(&err)
	return p.save(ctx, draft, note, expected, func(State) {})
}

func (p *Pipeline) save(ctx context.Context, draft *dataset.Dataset, note string, expected versioning.Token, track func(State)) (*SaveResult, error) {
	log := p.log.With(zap.Stringer("expected", expected))

	// Nothing below touches the store until validation and the guard pass.
	track(StateValidating)
	if len(note) > MaxNoteLength {
		return nil, &Error{Code: CodeInvalidInput, Stage: StateValidating,
			Err: fmt.Errorf("note is %d bytes, limit is %d", len(note), MaxNoteLength)}
	}
	if draft == nil {
		return nil, &Error{Code: CodeInvalidInput, Stage: StateValidating, Err: errors.New("draft dataset is required")}
	}
	if err := dataset.Validate(draft, p.keyColumns); err != nil {
		return nil, validationError(StateValidating, err)
	}
	payload, err := codec.Encode(draft, p.loc.Format)
	if err != nil {
		return nil, &Error{Code: CodeFormat, Stage: StateValidating, Err: err}
	}

	track(StateGuardChecking)
	cas, fused := p.store.(minio.ConditionalPutter)
	fused = fused && expected.Present()
	if !fused {
		current, err := p.currentVersion(ctx)
		if err != nil {
			return nil, err
		}
		if err := versioning.Check(expected, current); err != nil {
			log.Warn("save blocked by concurrent change", zap.Stringer("current", current))
			return nil, &Error{Code: CodeConflict, Stage: StateGuardChecking, Err: err}
		}
	}

	track(StateWritingMaster)
	var newVersionID string
	if fused {
		newVersionID, err = cas.PutObjectIfVersion(ctx, p.loc.Bucket, p.loc.MasterKey, payload, p.loc.Format.ContentType(), string(expected))
	} else {
		newVersionID, err = p.store.PutObject(ctx, p.loc.Bucket, p.loc.MasterKey, payload, p.loc.Format.ContentType())
	}
	if err != nil {
		if minio.IsPreconditionFailed(err) {
			log.Warn("conditional master write rejected", zap.Error(err))
			return nil, &Error{Code: CodeConflict, Stage: StateWritingMaster,
				Err: &versioning.ConflictError{Expected: expected}}
		}
		return nil, &Error{Code: CodeTransport, Stage: StateWritingMaster, Err: fmt.Errorf("failed to save master file: %w", err)}
	}
	newVersion := versioning.Token(newVersionID)
	log = log.With(zap.Stringer("new_version", newVersion))

	// From here on the master is updated; failures are partial saves.
	track(StateWritingSnapshot)
	snap, err := p.snapshots.Write(ctx, p.loc.Bucket, p.loc.SnapshotPrefix, p.loc.Format, payload)
	if err != nil {
		log.Error("snapshot write failed after master write", zap.Error(err))
		return nil, &Error{Code: CodePartialSave, Stage: StateWritingSnapshot, NewVersion: newVersion,
			Err: fmt.Errorf("failed to write snapshot: %w", err)}
	}

	track(StateWritingAudit)
	auditKey, err := p.audit.Append(ctx, p.loc.Bucket, p.loc.AuditPrefix, audit.Entry{
		Timestamp:   p.now(),
		User:        p.actor,
		Note:        note,
		PrevVersion: expected.Ptr(),
		NewVersion:  newVersion.Ptr(),
		SnapshotKey: snap.Key,
		RowCount:    draft.NumRows(),
		ColumnCount: draft.NumColumns(),
	})
	if err != nil {
		log.Error("audit write failed after master write", zap.String("snapshot", snap.Key), zap.Error(err))
		return nil, &Error{Code: CodePartialSave, Stage: StateWritingAudit, NewVersion: newVersion,
			SnapshotKey: snap.Key, Err: fmt.Errorf("failed to write audit log: %w", err)}
	}

	track(StateSaved)
	log.Info("saved master",
		zap.String("snapshot", snap.Key),
		zap.String("audit", auditKey),
		zap.Int("rows", draft.NumRows()),
		zap.Int("columns", draft.NumColumns()))

	return &SaveResult{
		PrevVersion: expected,
		NewVersion:  newVersion,
		SnapshotKey: snap.Key,
		AuditKey:    auditKey,
		Rows:        draft.NumRows(),
		Columns:     draft.NumColumns(),
	}, nil
}

// currentVersion looks up the master's version right before the write. A
// missing object is absent; other lookup failures are absent too unless
// StrictHead is set.
func (p *Pipeline) currentVersion(ctx context.Context) (versioning.Token, error) {
	v, err := p.store.HeadObject(ctx, p.loc.Bucket, p.loc.MasterKey)
	if err == nil {
		return versioning.Token(v), nil
	}
	if minio.IsNotFound(err) {
		return "", nil
	}
	if p.strictHead {
		return "", &Error{Code: CodeTransport, Stage: StateGuardChecking, Err: err}
	}
	p.log.Warn("version lookup failed; treating current version as absent", zap.Error(err))
	return "", nil
}

func validationError(stage State, err error) error {
	var verr *dataset.ValidationError
	if errors.As(err, &verr) {
		code := CodeEmptyDataset
		if verr.Code == dataset.CodeDuplicateKeys {
			code = CodeDuplicateKeys
		}
		return &Error{Code: code, Stage: stage, Err: err}
	}
	return &Error{Code: CodeInvalidInput, Stage: stage, Err: err}
}
