package pipeline

import (
	"context"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/pkg/audit"
	"github.com/nucleus/master-sync/pkg/codec"
	"github.com/nucleus/master-sync/pkg/versioning"
)

// Snapshots lists the snapshot keys of the master, oldest first.
func (p *Pipeline) Snapshots(ctx context.Context) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)
	keys, err := p.snapshots.List(ctx, p.loc.Bucket, p.loc.SnapshotPrefix)
	if err != nil {
		return nil, &Error{Code: CodeTransport, Stage: StateLoading, Err: err}
	}
	return keys, nil
}

// History reads the audit trail, optionally restricted to one UTC day
// (YYYY-MM-DD).
func (p *Pipeline) History(ctx context.Context, day string) (_ []audit.Record, err error) {
	defer mon.Task()(&ctx)(&err)
	records, err := p.audit.List(ctx, p.loc.Bucket, p.loc.AuditPrefix, day)
	if err != nil {
		return nil, &Error{Code: CodeTransport, Stage: StateLoading, Err: err}
	}
	return records, nil
}

// Restore saves the contents of a snapshot as the new master, through the
// same guarded path as any edit. The snapshot's own format is read from its
// key; the master keeps the configured format.
func (p *Pipeline) Restore(ctx context.Context, sess *Session, snapshotKey, note string) (_ *SaveResult, err error) {
	defer mon.Task()(&ctx)(&err)

	format, err := codec.FormatFromKey(snapshotKey)
	if err != nil {
		return nil, &Error{Code: CodeInvalidInput, Stage: StateLoading, Err: err}
	}
	rec, err := p.snapshots.Read(ctx, p.loc.Bucket, snapshotKey)
	if err != nil {
		code := CodeTransport
		if minio.IsNotFound(err) {
			code = CodeNotFound
		}
		return nil, &Error{Code: code, Stage: StateLoading, Err: err}
	}
	d, err := codec.Decode(rec.Payload, format)
	if err != nil {
		return nil, &Error{Code: CodeFormat, Stage: StateLoading, Err: err}
	}
	return p.Save(ctx, sess, d, note)
}

// Status reports the store's current master version and whether it moved
// past the version sess holds.
func (p *Pipeline) Status(ctx context.Context, sess *Session) (current versioning.Token, stale bool, err error) {
	defer mon.Task()(&ctx)(&err)
	v, err := p.store.HeadObject(ctx, p.loc.Bucket, p.loc.MasterKey)
	if err != nil {
		if minio.IsNotFound(err) {
			return "", false, &Error{Code: CodeNotFound, Stage: StateGuardChecking, Err: err}
		}
		return "", false, &Error{Code: CodeTransport, Stage: StateGuardChecking, Err: err}
	}
	current = versioning.Token(v)
	return current, versioning.Check(sess.Version(), current) != nil, nil
}
