// Package flatten merges the part files a batch engine leaves under a prefix
// into one object.
package flatten

import (
	"context"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nucleus/master-sync/internal/connector/minio"
	"github.com/nucleus/master-sync/pkg/codec"
	"github.com/nucleus/master-sync/pkg/dataset"
)

var (
	mon = monkit.Package()

	// Error is the class of flatten failures.
	Error = errs.Class("flatten")
	// ErrNoParts is returned when the prefix holds nothing to merge.
	ErrNoParts = Error.New("no parts found to flatten")
)

// Request names the parts and the merged output.
type Request struct {
	Bucket    string
	Prefix    string
	OutputKey string
	// Format of the parts and the output; parquet when empty.
	Format codec.Format
}

// Result describes a written output object.
type Result struct {
	Parts     []string
	OutputKey string
	Version   string
	Rows      int
	Columns   int
}

// Options tune a Flattener.
type Options struct {
	Logger *zap.Logger
	// RequestsPerSecond throttles part downloads; zero means unthrottled.
	RequestsPerSecond float64
	Burst             int
}

// Flattener merges part files through an object store.
type Flattener struct {
	store   minio.ObjectStore
	log     *zap.Logger
	limiter *rate.Limiter
}

// New returns a Flattener over store.
func New(store minio.ObjectStore, opts Options) *Flattener {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	f := &Flattener{store: store, log: log}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return f
}

// Parts lists the part keys under prefix: everything except directory
// markers, _SUCCESS markers and outputKey itself, in listing order.
func (f *Flattener) Parts(ctx context.Context, bucket, prefix, outputKey string) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)
	keys, err := f.store.ListPrefix(ctx, bucket, prefix)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	parts := keys[:0]
	for _, key := range keys {
		if strings.HasSuffix(key, "/") || strings.Contains(key, "_SUCCESS") || key == outputKey {
			continue
		}
		parts = append(parts, key)
	}
	return parts, nil
}

// Flatten decodes every part, concatenates the rows in listing order and
// writes the result to req.OutputKey.
func (f *Flattener) Flatten(ctx context.Context, req Request) (_ *Result, err error) {
	defer mon.Task()(&ctx)(&err)

	if req.Bucket == "" || req.Prefix == "" || req.OutputKey == "" {
		return nil, Error.New("bucket, prefix and output key are required")
	}
	format := req.Format
	if format == "" {
		format = codec.FormatParquet
	}
	if _, err := codec.ParseFormat(string(format)); err != nil {
		return nil, Error.Wrap(err)
	}
	log := f.log.With(zap.String("bucket", req.Bucket), zap.String("prefix", req.Prefix))

	parts, err := f.Parts(ctx, req.Bucket, req.Prefix, req.OutputKey)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, ErrNoParts
	}

	frames := make([]*dataset.Dataset, 0, len(parts))
	for _, key := range parts {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, Error.Wrap(err)
			}
		}
		obj, err := f.store.GetObject(ctx, req.Bucket, key)
		if err != nil {
			return nil, Error.New("read part %s: %w", key, err)
		}
		d, err := codec.Decode(obj.Data, format)
		if err != nil {
			return nil, Error.New("decode part %s: %w", key, err)
		}
		log.Debug("read part", zap.String("key", key), zap.Int("rows", d.NumRows()))
		frames = append(frames, d)
	}

	combined, err := dataset.Concat(frames...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	payload, err := codec.Encode(combined, format)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	version, err := f.store.PutObject(ctx, req.Bucket, req.OutputKey, payload, format.ContentType())
	if err != nil {
		return nil, Error.New("write %s: %w", req.OutputKey, err)
	}

	log.Info("flattened parts",
		zap.String("output", req.OutputKey),
		zap.Int("parts", len(parts)),
		zap.Int("rows", combined.NumRows()))
	return &Result{
		Parts:     parts,
		OutputKey: req.OutputKey,
		Version:   version,
		Rows:      combined.NumRows(),
		Columns:   combined.NumColumns(),
	}, nil
}
