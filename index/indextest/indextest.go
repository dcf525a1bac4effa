// Package indextest provides a conformance test suite that every
// index/driver.Storage implementation (redisindex, memindex) should pass.
package indextest

import (
	"context"
	"testing"
	"time"

	"github.com/fleetpx/ephimg/index/driver"
)

// RunConformanceTests runs all tests for the given storage.
func RunConformanceTests(t *testing.T, storage driver.Storage) {
	t.Run("Get of unknown token returns nil, nil", func(t *testing.T) {
		testGetUnknown(t, storage)
	})
	t.Run("Put then Get round-trips the record", func(t *testing.T) {
		testPutGet(t, storage)
	})
	t.Run("Put overwrites an existing token", func(t *testing.T) {
		testPutOverwrite(t, storage)
	})
}

func testGetUnknown(t *testing.T, storage driver.Storage) {
	ctx := context.Background()
	rec, err := storage.Get(ctx, "no-such-token")
	if err != nil {
		t.Fatalf("Get on unknown token returned error: %v", err)
	}
	if rec != nil {
		t.Fatalf("Get on unknown token returned non-nil record: %+v", rec)
	}
}

func testPutGet(t *testing.T, storage driver.Storage) {
	ctx := context.Background()
	rec := driver.Record{
		Token:            "conformance-token-1",
		Ref:              "fs:abc123",
		ExpiresAtEpochMs: time.Now().Add(time.Minute).UnixMilli(),
		ContentType:      "image/png",
	}

	if err := storage.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := storage.Get(ctx, rec.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for a record that was just Put")
	}
	if got.Token != rec.Token || got.Ref != rec.Ref || got.ContentType != rec.ContentType {
		t.Fatalf("Get returned %+v, want %+v", got, rec)
	}
	if got.ExpiresAtEpochMs != rec.ExpiresAtEpochMs {
		t.Fatalf("Get returned ExpiresAtEpochMs=%d, want %d", got.ExpiresAtEpochMs, rec.ExpiresAtEpochMs)
	}
}

func testPutOverwrite(t *testing.T, storage driver.Storage) {
	ctx := context.Background()
	token := "conformance-token-2"

	first := driver.Record{
		Token:            token,
		Ref:              "fs:first",
		ExpiresAtEpochMs: time.Now().Add(time.Minute).UnixMilli(),
		ContentType:      "image/png",
	}
	if err := storage.Put(ctx, first); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	second := first
	second.Ref = "fs:second"
	second.ContentType = "image/jpeg"
	if err := storage.Put(ctx, second); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := storage.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil after overwrite")
	}
	if got.Ref != second.Ref {
		t.Fatalf("Get after overwrite returned Ref=%q, want %q", got.Ref, second.Ref)
	}
}
