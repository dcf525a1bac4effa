// Package memindex implements a metadata index adapter as an
// in-process map. It is intended for tests and single-process demo
// deployments; records do not survive a process restart.
package memindex

import (
	"context"
	"sync"

	"github.com/fleetpx/ephimg/index"
	"github.com/fleetpx/ephimg/index/driver"
)

// Scheme identifies this adapter in config and log fields.
const Scheme = "mem"

var _ driver.Storage = (*storage)(nil)

// storage implements driver.Storage backed by a plain map. This is
// intended for testing and local development.
type storage struct {
	mu      sync.Mutex
	records map[string]driver.Record
}

// OpenIndex returns an *index.Index backed by an in-process map.
func OpenIndex() *index.Index {
	return index.NewIndex(&storage{records: map[string]driver.Record{}})
}

func (s *storage) ProviderName() string { return Scheme }

func (s *storage) Put(ctx context.Context, rec driver.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Token] = rec
	return nil
}

func (s *storage) Get(ctx context.Context, token string) (*driver.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[token]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *storage) Close() error {
	return nil
}
