package upload

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/blob/driver"
	"github.com/fleetpx/ephimg/blob/fileblob"
	"github.com/fleetpx/ephimg/clock"
	"github.com/fleetpx/ephimg/index"
	idxdriver "github.com/fleetpx/ephimg/index/driver"
	"github.com/fleetpx/ephimg/index/memindex"
	"github.com/fleetpx/ephimg/verr"
)

// callLog records the order in which the blob store and metadata index
// are invoked, so tests can assert on ordering and fault isolation
// instead of only on the final returned value.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

type recordingBucket struct {
	log     *callLog
	saveErr error
}

func (b *recordingBucket) ProviderName() string { return "recording" }

func (b *recordingBucket) ErrorCode(err error) verr.ErrorCode { return verr.Unknown }

func (b *recordingBucket) Save(ctx context.Context, key string, p []byte, contentType string) (string, error) {
	b.log.record("blob.Save")
	if b.saveErr != nil {
		return "", b.saveErr
	}
	return "fake:" + key, nil
}

func (b *recordingBucket) Get(ctx context.Context, ref string) ([]byte, error) {
	return nil, errors.New("recordingBucket: Get not implemented")
}

func (b *recordingBucket) ContentType(ctx context.Context, ref string) (string, bool, error) {
	return "", false, nil
}

func (b *recordingBucket) Close() error { return nil }

var _ driver.Bucket = (*recordingBucket)(nil)

type recordingStorage struct {
	log    *callLog
	putErr error
	puts   []idxdriver.Record
}

func (s *recordingStorage) ProviderName() string { return "recording" }

func (s *recordingStorage) Put(ctx context.Context, rec idxdriver.Record) error {
	s.log.record("index.Put")
	if s.putErr != nil {
		return s.putErr
	}
	s.puts = append(s.puts, rec)
	return nil
}

func (s *recordingStorage) Get(ctx context.Context, token string) (*idxdriver.Record, error) {
	return nil, nil
}

func (s *recordingStorage) Close() error { return nil }

var _ idxdriver.Storage = (*recordingStorage)(nil)

func newTestCoordinator(t *testing.T, now time.Time) (*Coordinator, *blob.Bucket, *index.Index, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "upload-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	bucket, err := fileblob.OpenBucket(dir)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	idx := memindex.OpenIndex()

	c := NewCoordinator(bucket, idx, clock.Fixed(now), 0, 0, nil, nil)
	return c, bucket, idx, func() { os.RemoveAll(dir) }
}

func TestUploadHappyPath(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, bucket, idx, cleanup := newTestCoordinator(t, now)
	defer cleanup()

	ctx := context.Background()
	res, err := c.Upload(ctx, UploadInput{Bytes: []byte("fake image bytes"), ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if res.Token.Empty() {
		t.Fatal("Upload returned an empty token")
	}
	wantExpiry := now.Add(DefaultTTL).UnixMilli()
	if res.ExpiresAtEpochMs != wantExpiry {
		t.Fatalf("ExpiresAtEpochMs = %d, want %d", res.ExpiresAtEpochMs, wantExpiry)
	}

	rec, err := idx.Get(ctx, res.Token.String())
	if err != nil {
		t.Fatalf("index.Get failed: %v", err)
	}
	if rec == nil {
		t.Fatal("no record was written to the index")
	}
	if rec.ContentType != "image/png" {
		t.Fatalf("record.ContentType = %q, want %q", rec.ContentType, "image/png")
	}

	got, err := bucket.Get(ctx, rec.Ref)
	if err != nil {
		t.Fatalf("bucket.Get failed: %v", err)
	}
	if string(got) != "fake image bytes" {
		t.Fatalf("bucket.Get() = %q, want %q", got, "fake image bytes")
	}
}

func TestUploadRejectsEmptyPayload(t *testing.T) {
	now := time.Now()
	c, _, _, cleanup := newTestCoordinator(t, now)
	defer cleanup()

	_, err := c.Upload(context.Background(), UploadInput{Bytes: nil, ContentType: "image/png"})
	if verr.Code(err) != verr.InvalidArgument {
		t.Fatalf("Code(err) = %v, want InvalidArgument", verr.Code(err))
	}
}

func TestUploadRejectsUnacceptedType(t *testing.T) {
	now := time.Now()
	c, _, _, cleanup := newTestCoordinator(t, now)
	defer cleanup()

	_, err := c.Upload(context.Background(), UploadInput{Bytes: []byte("x"), ContentType: "text/plain"})
	if verr.Code(err) != verr.InvalidArgument {
		t.Fatalf("Code(err) = %v, want InvalidArgument", verr.Code(err))
	}
}

func TestUploadRejectsMissingContentType(t *testing.T) {
	now := time.Now()
	c, _, _, cleanup := newTestCoordinator(t, now)
	defer cleanup()

	_, err := c.Upload(context.Background(), UploadInput{Bytes: []byte("x"), ContentType: ""})
	if verr.Code(err) != verr.InvalidArgument {
		t.Fatalf("Code(err) = %v, want InvalidArgument", verr.Code(err))
	}
}

func TestUploadRejectsOversizedPayload(t *testing.T) {
	now := time.Now()
	dir, err := os.MkdirTemp("", "upload-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	bucket, err := fileblob.OpenBucket(dir)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	idx := memindex.OpenIndex()

	c := NewCoordinator(bucket, idx, clock.Fixed(now), 4, 0, nil, nil)
	_, err = c.Upload(context.Background(), UploadInput{Bytes: []byte("12345"), ContentType: "image/png"})
	if verr.Code(err) != verr.ResourceExhausted {
		t.Fatalf("Code(err) = %v, want ResourceExhausted", verr.Code(err))
	}
}

func TestUploadOrdersBlobSaveBeforeIndexPut(t *testing.T) {
	log := &callLog{}
	bucket := blob.NewBucket(&recordingBucket{log: log})
	store := &recordingStorage{log: log}
	idx := index.NewIndex(store)

	c := NewCoordinator(bucket, idx, clock.Fixed(time.Now()), 0, 0, nil, nil)
	res, err := c.Upload(context.Background(), UploadInput{Bytes: []byte("x"), ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if want := []string{"blob.Save", "index.Put"}; len(log.calls) != len(want) || log.calls[0] != want[0] || log.calls[1] != want[1] {
		t.Fatalf("call order = %v, want %v", log.calls, want)
	}
	if len(store.puts) != 1 {
		t.Fatalf("index.Put was called %d times, want 1", len(store.puts))
	}
	if store.puts[0].Token != res.Token.String() {
		t.Fatalf("Put record token = %q, want the token Upload returned (%q); the token must be minted before Put is called", store.puts[0].Token, res.Token.String())
	}
}

func TestUploadFailedBlobSaveSkipsIndexPut(t *testing.T) {
	log := &callLog{}
	bucket := blob.NewBucket(&recordingBucket{log: log, saveErr: errors.New("disk full")})
	store := &recordingStorage{log: log}
	idx := index.NewIndex(store)

	c := NewCoordinator(bucket, idx, clock.Fixed(time.Now()), 0, 0, nil, nil)
	_, err := c.Upload(context.Background(), UploadInput{Bytes: []byte("x"), ContentType: "image/png"})
	if err == nil {
		t.Fatal("Upload should have failed when the blob save fails")
	}
	if want := []string{"blob.Save"}; len(log.calls) != len(want) || log.calls[0] != want[0] {
		t.Fatalf("call order = %v, want %v (index.Put must never be reached)", log.calls, want)
	}
	if len(store.puts) != 0 {
		t.Fatal("index.Put was called despite the blob save failing")
	}
}

func TestUploadNeverReusesMintedTokens(t *testing.T) {
	now := time.Now()
	c, _, _, cleanup := newTestCoordinator(t, now)
	defer cleanup()

	seen := make(map[string]bool)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		res, err := c.Upload(ctx, UploadInput{Bytes: []byte("x"), ContentType: "image/png"})
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if seen[res.Token.String()] {
			t.Fatalf("Upload reused token %s", res.Token)
		}
		seen[res.Token.String()] = true
	}
}
