// Package upload implements the upload coordinator: given raw bytes
// and a declared content type, it validates the input, persists the blob,
// mints an opaque token, computes an absolute expiry, and records the
// binding in the metadata index.
package upload

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/clock"
	"github.com/fleetpx/ephimg/index"
	"github.com/fleetpx/ephimg/internal/trace"
	"github.com/fleetpx/ephimg/token"
	"github.com/fleetpx/ephimg/verr"
)

const pkgName = "github.com/fleetpx/ephimg/upload"

var (
	latencyMeasure = trace.LatencyMeasure(pkgName)

	// OpenCensusViews are predefined views for OpenCensus metrics.
	OpenCensusViews = trace.Views(pkgName, latencyMeasure)
)

// DefaultMaxUploadBytes is the coordinator's size cap absent explicit
// configuration: 5 MiB.
const DefaultMaxUploadBytes = 5 * 1024 * 1024

// DefaultTTL is the lifetime of a freshly minted token absent explicit
// configuration.
const DefaultTTL = 60 * time.Second

// DefaultAcceptedTypes is the accepted content-type enumeration absent
// explicit configuration.
var DefaultAcceptedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// UploadInput is the decoded request the coordinator validates and
// persists. Filename is informational only; it is not part of the
// access-control decision.
type UploadInput struct {
	Bytes       []byte
	ContentType string
	Filename    string
}

// UploadResult is what a successful Upload returns.
type UploadResult struct {
	Token            token.Token
	ExpiresAtEpochMs int64
}

// Coordinator is the upload coordinator. Construct with NewCoordinator; the zero
// value is not usable (its Bucket and Index fields are nil).
type Coordinator struct {
	Bucket *blob.Bucket
	Index  *index.Index
	Clock  clock.Clock

	MaxUploadBytes int
	TTL            time.Duration
	AcceptedTypes  map[string]bool

	Log logrus.FieldLogger

	tracer *trace.Tracer
}

// NewCoordinator constructs a Coordinator. acceptedTypes nil or empty
// falls back to DefaultAcceptedTypes; maxUploadBytes <= 0 falls back to
// DefaultMaxUploadBytes; ttl <= 0 falls back to DefaultTTL.
func NewCoordinator(bucket *blob.Bucket, idx *index.Index, c clock.Clock, maxUploadBytes int, ttl time.Duration, acceptedTypes []string, log logrus.FieldLogger) *Coordinator {
	if c == nil {
		c = clock.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if len(acceptedTypes) == 0 {
		acceptedTypes = DefaultAcceptedTypes
	}
	if log == nil {
		log = logrus.New()
	}
	accepted := make(map[string]bool, len(acceptedTypes))
	for _, t := range acceptedTypes {
		accepted[t] = true
	}
	return &Coordinator{
		Bucket:         bucket,
		Index:          idx,
		Clock:          c,
		MaxUploadBytes: maxUploadBytes,
		TTL:            ttl,
		AcceptedTypes:  accepted,
		Log:            log,
		tracer: &trace.Tracer{
			Package:        pkgName,
			Provider:       trace.ProviderName(bucket),
			LatencyMeasure: latencyMeasure,
		},
	}
}

// Upload validates in, persists its bytes to the blob store, mints a
// token, computes an absolute expiry, and records the binding in the
// metadata index, in that order. Any failure after step 2 leaves the
// blob just written in place; orphaned blobs are not cleaned up (see
// the design notes on retention).
func (c *Coordinator) Upload(ctx context.Context, in UploadInput) (res UploadResult, err error) {
	ctx = c.tracer.Start(ctx, "Upload")
	defer func() { c.tracer.End(ctx, err) }()

	if err := c.validate(in); err != nil {
		return UploadResult{}, err
	}

	ref, err := c.Bucket.Save(ctx, in.Bytes, in.ContentType)
	if err != nil {
		c.Log.WithError(err).Warn("upload: blob save failed")
		return UploadResult{}, err
	}

	tok, err := token.Mint()
	if err != nil {
		c.Log.WithError(err).Error("upload: token mint failed")
		return UploadResult{}, err
	}

	now := c.Clock()
	expiresAt := now.Add(c.TTL).UnixMilli()

	rec := index.Record{
		Token:            tok.String(),
		Ref:              ref,
		ExpiresAtEpochMs: expiresAt,
		ContentType:      in.ContentType,
	}
	if err := c.Index.Put(ctx, rec); err != nil {
		c.Log.WithError(err).WithField("token", tok.String()).Warn("upload: metadata put failed, blob left orphaned")
		return UploadResult{}, err
	}

	c.Log.WithFields(logrus.Fields{
		"token":      tok.String(),
		"expires_at": expiresAt,
	}).Info("upload: recorded")

	return UploadResult{Token: tok, ExpiresAtEpochMs: expiresAt}, nil
}

// validate runs the coordinator's first step: empty-payload, size-cap,
// and content-type checks, in that order, before anything touches the
// blob store.
func (c *Coordinator) validate(in UploadInput) error {
	if len(in.Bytes) == 0 {
		return verr.ErrInvalidInput("upload: empty payload")
	}
	if len(in.Bytes) > c.MaxUploadBytes {
		return verr.ErrTooLarge(len(in.Bytes), c.MaxUploadBytes)
	}
	if in.ContentType == "" || !c.AcceptedTypes[in.ContentType] {
		return verr.ErrUnsupportedType(in.ContentType)
	}
	return nil
}
