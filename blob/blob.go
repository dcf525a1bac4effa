// Package blob provides a portable way to save and retrieve opaque byte
// content. To construct a Bucket, use a provider-specific subpackage
// (fileblob, minioblob, dualblob).
package blob

import (
	"context"
	"sync"

	"github.com/fleetpx/ephimg/blob/driver"
	"github.com/fleetpx/ephimg/internal/trace"
	"github.com/fleetpx/ephimg/token"
	"github.com/fleetpx/ephimg/verr"
)

const pkgName = "github.com/fleetpx/ephimg/blob"

var (
	latencyMeasure = trace.LatencyMeasure(pkgName)

	// OpenCensusViews are predefined views for OpenCensus metrics: call
	// counts and latency distributions, tagged by provider.
	OpenCensusViews = trace.Views(pkgName, latencyMeasure)
)

var errClosed = verr.New(verr.FailedPrecondition, nil, 1, "blob: Bucket has been closed")

// Bucket provides save/get/content-type operations on blobs via a
// provider-specific driver.Bucket.
type Bucket struct {
	b      driver.Bucket
	tracer *trace.Tracer

	mu     sync.RWMutex
	closed bool
}

// NewBucket is intended for use by provider implementations (fileblob,
// minioblob, dualblob); end users should use those subpackages instead.
func NewBucket(b driver.Bucket) *Bucket {
	return &Bucket{
		b: b,
		tracer: &trace.Tracer{
			Package:        pkgName,
			Provider:       trace.ProviderName(b),
			LatencyMeasure: latencyMeasure,
		},
	}
}

// Save persists p under a freshly minted key and returns an opaque
// reference that Get and ContentType accept. The reference is meaningful
// only to this Bucket's adapter.
func (bk *Bucket) Save(ctx context.Context, p []byte, contentType string) (ref string, err error) {
	key, err := token.Mint()
	if err != nil {
		return "", err
	}
	return bk.SaveWithKey(ctx, key.String(), p, contentType)
}

// SaveWithKey persists p under the caller-supplied key and returns an
// opaque reference that Get and ContentType accept. Composite adapters
// (dualblob) use this to save the same bytes under the same key to more
// than one underlying Bucket, so the reference returned for one backend
// also resolves against the other.
func (bk *Bucket) SaveWithKey(ctx context.Context, key string, p []byte, contentType string) (ref string, err error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return "", errClosed
	}
	ctx = bk.tracer.Start(ctx, "Save")
	defer func() { bk.tracer.End(ctx, err) }()

	ref, err = bk.b.Save(ctx, key, p, contentType)
	return ref, wrapError(bk.b, err)
}

// Get returns the complete bytes previously saved under ref.
func (bk *Bucket) Get(ctx context.Context, ref string) (p []byte, err error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return nil, errClosed
	}
	ctx = bk.tracer.Start(ctx, "Get")
	defer func() { bk.tracer.End(ctx, err) }()

	p, err = bk.b.Get(ctx, ref)
	return p, wrapError(bk.b, err)
}

// ContentType returns the content type declared at Save time, if the
// adapter retained it.
func (bk *Bucket) ContentType(ctx context.Context, ref string) (contentType string, ok bool, err error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return "", false, errClosed
	}
	ctx = bk.tracer.Start(ctx, "ContentType")
	defer func() { bk.tracer.End(ctx, err) }()

	contentType, ok, err = bk.b.ContentType(ctx, ref)
	return contentType, ok, wrapError(bk.b, err)
}

// Close releases resources held by the Bucket's adapter. No further
// calls should be made to the Bucket after Close returns.
func (bk *Bucket) Close() error {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if bk.closed {
		return nil
	}
	bk.closed = true
	return wrapError(bk.b, bk.b.Close())
}

// ProviderName implements trace.Provider so callers composing a Bucket
// into another traced component can tag metrics with its adapter name.
func (bk *Bucket) ProviderName() string {
	return trace.ProviderName(bk.b)
}

// wrapError wraps err (if non-nil) in a *verr.Error carrying the code the
// driver reports for it, unless err is already a *verr.Error or one of
// the errors verr.DoNotWrap recognizes.
func wrapError(b driver.Bucket, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*verr.Error); ok {
		return err
	}
	if verr.DoNotWrap(err) {
		return err
	}
	return verr.New(b.ErrorCode(err), err, 2, "")
}
