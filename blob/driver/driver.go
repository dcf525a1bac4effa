// Package driver defines the interface that blob-store adapters
// implement: opaque content-addressed persistence with no caller-visible
// structure beyond a reference string.
package driver

import (
	"context"

	"github.com/fleetpx/ephimg/verr"
)

// Bucket is implemented by a concrete blob-store adapter (fileblob,
// minioblob, dualblob). The portable blob.Bucket type wraps one of these
// to add tracing and a uniform error boundary.
type Bucket interface {
	// ErrorCode classifies an error returned by one of this Bucket's other
	// methods.
	ErrorCode(error) verr.ErrorCode

	// Save persists p under key, a caller-supplied opaque identifier, and
	// returns the adapter's reference for it. The caller (blob.Bucket)
	// mints key so that composite adapters such as dualblob can save the
	// same bytes under the same key to more than one Bucket.
	Save(ctx context.Context, key string, p []byte, contentType string) (ref string, err error)

	// Get returns the complete bytes previously associated with ref, or an
	// error for which ErrorCode returns verr.NotFound if ref is unknown.
	// Get never returns a partial read: it is all-or-nothing.
	Get(ctx context.Context, ref string) ([]byte, error)

	// ContentType returns the content type declared when ref was saved, if
	// the adapter retains it. The second return is false if the adapter
	// has no opinion (the caller should fall back to a default).
	ContentType(ctx context.Context, ref string) (contentType string, ok bool, err error)

	// Close releases any resources held by the Bucket.
	Close() error
}
