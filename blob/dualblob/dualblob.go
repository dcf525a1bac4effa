// Package dualblob composes two blob.Bucket adapters into one: writes go
// to the primary synchronously and to the secondary best-effort in the
// background; reads prefer the primary and fall back to the secondary.
// The reference returned by Save is always the primary's — the
// composition is transparent to callers.
//
// Get's fallback to the secondary only resolves when both adapters use
// the same reference format, e.g. two fileblob roots or two s3 buckets.
// Pairing adapters with different formats (fileblob with minioblob)
// still replicates the bytes, but the secondary's reference for them
// won't parse against the other adapter's scheme.
package dualblob

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/blob/driver"
	"github.com/fleetpx/ephimg/verr"
)

// Scheme identifies this composition in log fields; dualblob has no
// reference format of its own, since every reference it returns is the
// primary adapter's.
const Scheme = "dual"

var _ driver.Bucket = (*bucket)(nil)

type bucket struct {
	primary   *blob.Bucket
	secondary *blob.Bucket
	log       logrus.FieldLogger
}

// OpenBucket composes primary and secondary into a single *blob.Bucket.
// A nil log discards the secondary-write failure events.
func OpenBucket(primary, secondary *blob.Bucket, log logrus.FieldLogger) *blob.Bucket {
	if log == nil {
		log = logrus.New()
	}
	return blob.NewBucket(&bucket{primary: primary, secondary: secondary, log: log})
}

func (b *bucket) ProviderName() string { return Scheme }

func (b *bucket) ErrorCode(err error) verr.ErrorCode {
	return verr.Code(err)
}

// Save writes to the primary synchronously and returns as soon as it
// succeeds; the secondary write runs in the background and its failure
// is logged, not returned. Secondary replication is best-effort and
// non-fatal by design. Both writes use the same key, the one the outer
// blob.Bucket minted for this call, so the reference Save returns also
// resolves against the secondary once replication catches up. That only
// holds when the two adapters share a reference scheme (two fileblob
// roots, say); pairing adapters with incompatible reference formats
// means the secondary write succeeds but Get's fallback can't parse it.
func (b *bucket) Save(ctx context.Context, key string, p []byte, contentType string) (string, error) {
	ref, err := b.primary.SaveWithKey(ctx, key, p, contentType)
	if err != nil {
		return "", err
	}
	go func() {
		bg := context.Background()
		if _, err := b.secondary.SaveWithKey(bg, key, p, contentType); err != nil {
			b.log.WithError(err).WithField("primary_ref", ref).Warn("dualblob: secondary save failed")
		}
	}()
	return ref, nil
}

// Get reads from the primary, falling back to the secondary only when
// the primary reports the reference unknown.
func (b *bucket) Get(ctx context.Context, ref string) ([]byte, error) {
	p, err := b.primary.Get(ctx, ref)
	if err == nil {
		return p, nil
	}
	if verr.Code(err) != verr.NotFound {
		return nil, err
	}
	return b.secondary.Get(ctx, ref)
}

func (b *bucket) ContentType(ctx context.Context, ref string) (string, bool, error) {
	ct, ok, err := b.primary.ContentType(ctx, ref)
	if err == nil {
		return ct, ok, nil
	}
	if verr.Code(err) != verr.NotFound {
		return "", false, err
	}
	return b.secondary.ContentType(ctx, ref)
}

func (b *bucket) Close() error {
	err1 := b.primary.Close()
	err2 := b.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
