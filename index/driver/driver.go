// Package driver defines the interface metadata-index adapters
// implement: a durable, shared map from opaque token to (blob
// reference, absolute expiry, content type).
package driver

import "context"

// Record is the durable tuple a metadata index stores, keyed by Token.
type Record struct {
	Token            string
	Ref              string
	ExpiresAtEpochMs int64
	ContentType      string
}

// Storage is implemented by a concrete metadata-index adapter
// (redisindex, memindex).
type Storage interface {
	// Put upserts rec, keyed by rec.Token. Put is atomic: the record is
	// either fully visible afterwards or not at all. Callers never reuse
	// a minted token, so in practice Put only overwrites during test
	// replay.
	Put(ctx context.Context, rec Record) error

	// Get returns the record for token, or (nil, nil) if no such token
	// exists. A non-nil error means the index itself could not answer,
	// which is distinct from "no such token".
	Get(ctx context.Context, token string) (*Record, error)

	// Close releases any resources held by the adapter.
	Close() error
}
