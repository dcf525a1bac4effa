// Package index provides a portable way to durably record and retrieve
// the mapping from an opaque token to its blob reference, absolute
// expiry, and content type. To construct an Index, use a
// provider-specific subpackage (redisindex, memindex).
package index

import (
	"context"
	"sync"

	"github.com/fleetpx/ephimg/index/driver"
	"github.com/fleetpx/ephimg/internal/trace"
	"github.com/fleetpx/ephimg/verr"
)

const pkgName = "github.com/fleetpx/ephimg/index"

var (
	latencyMeasure = trace.LatencyMeasure(pkgName)

	// OpenCensusViews are predefined views for OpenCensus metrics: call
	// counts and latency distributions, tagged by provider.
	OpenCensusViews = trace.Views(pkgName, latencyMeasure)
)

var errClosed = verr.New(verr.FailedPrecondition, nil, 1, "index: Index has been closed")

// Record is re-exported from driver so callers of this package never need
// to import index/driver directly.
type Record = driver.Record

// Index provides put/get operations on token records via a
// provider-specific driver.Storage.
type Index struct {
	s      driver.Storage
	tracer *trace.Tracer

	mu     sync.RWMutex
	closed bool
}

// NewIndex is intended for use by provider implementations (redisindex,
// memindex); end users should use those subpackages instead.
func NewIndex(s driver.Storage) *Index {
	return &Index{
		s: s,
		tracer: &trace.Tracer{
			Package:        pkgName,
			Provider:       trace.ProviderName(s),
			LatencyMeasure: latencyMeasure,
		},
	}
}

// Put durably upserts rec, keyed by rec.Token.
func (x *Index) Put(ctx context.Context, rec Record) (err error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return errClosed
	}
	ctx = x.tracer.Start(ctx, "Put")
	defer func() { x.tracer.End(ctx, err) }()

	err = x.s.Put(ctx, rec)
	return wrapError(x.s, err)
}

// Get returns the record for token, or (nil, nil) if no such token was
// ever minted or its adapter has since forgotten it (e.g. Redis TTL
// eviction). A non-nil error means the index itself could not answer.
func (x *Index) Get(ctx context.Context, token string) (rec *Record, err error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, errClosed
	}
	ctx = x.tracer.Start(ctx, "Get")
	defer func() { x.tracer.End(ctx, err) }()

	rec, err = x.s.Get(ctx, token)
	return rec, wrapError(x.s, err)
}

// Close releases resources held by the Index's adapter. No further calls
// should be made to the Index after Close returns.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return wrapError(x.s, x.s.Close())
}

// ProviderName implements trace.Provider so callers composing an Index
// into another traced component can tag metrics with its adapter name.
func (x *Index) ProviderName() string {
	return trace.ProviderName(x.s)
}

// wrapError wraps err (if non-nil) in a *verr.Error carrying the code the
// driver reports for it, unless err is already a *verr.Error or one of
// the errors verr.DoNotWrap recognizes.
func wrapError(s driver.Storage, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*verr.Error); ok {
		return err
	}
	if verr.DoNotWrap(err) {
		return err
	}
	return verr.New(verr.Unavailable, err, 2, "")
}
