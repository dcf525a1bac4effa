// Package access implements the access arbiter: given a token, it
// decides whether to serve the underlying blob, deny-by-default on any
// ambiguity (missing record, expired record, malformed token, or an
// unreachable index).
package access

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/clock"
	"github.com/fleetpx/ephimg/index"
	"github.com/fleetpx/ephimg/internal/trace"
	"github.com/fleetpx/ephimg/verr"
)

const pkgName = "github.com/fleetpx/ephimg/access"

var (
	latencyMeasure = trace.LatencyMeasure(pkgName)

	// OpenCensusViews are predefined views for OpenCensus metrics.
	OpenCensusViews = trace.Views(pkgName, latencyMeasure)
)

// DefaultSkew is the grace window added to a record's expiry before the
// arbiter considers it expired, absorbing clock disagreement between the
// replica that minted the token and the one serving it.
const DefaultSkew = 5 * time.Second

// Reason distinguishes why a request was denied. It is carried on Denied
// for logging and metrics only; callers composing an outward-facing
// response must map every Reason to the same opaque signal. The arbiter
// itself never leaks which of {missing, expired, invalid} applied.
type Reason int

const (
	// Invalid means the token was syntactically empty or whitespace-only;
	// the index was never consulted.
	Invalid Reason = iota
	// Missing means no record exists for the token.
	Missing
	// Expired means a record exists but its expiry (plus skew) has passed.
	Expired
)

func (r Reason) String() string {
	switch r {
	case Invalid:
		return "invalid"
	case Missing:
		return "missing"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Outcome is the result of an access decision: exactly one of Allowed or
// Denied.
type Outcome interface {
	isOutcome()
}

// Allowed carries the blob bytes and the record that authorized access.
type Allowed struct {
	Bytes  []byte
	Record index.Record
}

func (Allowed) isOutcome() {}

// Denied carries the reason access was refused. Outward-facing adapters
// should treat every Reason identically.
type Denied struct {
	Reason Reason
}

func (Denied) isOutcome() {}

// Arbiter is the access arbiter. Construct with NewArbiter; the zero value is
// not usable (its Bucket and Index fields are nil).
type Arbiter struct {
	Bucket *blob.Bucket
	Index  *index.Index
	Clock  clock.Clock
	Skew   time.Duration

	Log logrus.FieldLogger

	tracer *trace.Tracer
}

// NewArbiter constructs an Arbiter. skew <= 0 falls back to DefaultSkew.
func NewArbiter(bucket *blob.Bucket, idx *index.Index, c clock.Clock, skew time.Duration, log logrus.FieldLogger) *Arbiter {
	if c == nil {
		c = clock.Default()
	}
	if skew <= 0 {
		skew = DefaultSkew
	}
	if log == nil {
		log = logrus.New()
	}
	return &Arbiter{
		Bucket: bucket,
		Index:  idx,
		Clock:  c,
		Skew:   skew,
		Log:    log,
		tracer: &trace.Tracer{
			Package:        pkgName,
			Provider:       trace.ProviderName(bucket),
			LatencyMeasure: latencyMeasure,
		},
	}
}

// Access runs the arbiter's algorithm: syntactic check, lookup, expiry
// policy, and — only for a valid record — a blob fetch. Blob retrieval
// never occurs for a denied decision.
func (a *Arbiter) Access(ctx context.Context, tok string) (out Outcome, err error) {
	ctx = a.tracer.Start(ctx, "Access")
	defer func() { a.tracer.End(ctx, err) }()

	if strings.TrimSpace(tok) == "" {
		return Denied{Reason: Invalid}, nil
	}

	rec, err := a.Index.Get(ctx, tok)
	if err != nil {
		return nil, verr.ErrIndexUnavailable(err)
	}
	if rec == nil {
		a.Log.WithField("token", tok).Debug("access: no such record")
		return Denied{Reason: Missing}, nil
	}

	now := a.Clock()
	if now.UnixMilli() > rec.ExpiresAtEpochMs+a.Skew.Milliseconds() {
		a.Log.WithField("token", tok).Debug("access: record expired")
		return Denied{Reason: Expired}, nil
	}

	p, err := a.Bucket.Get(ctx, rec.Ref)
	if err != nil {
		if verr.Code(err) == verr.NotFound {
			// Metadata pointed at a blob that no longer exists: an internal
			// invariant violation, not an ordinary denial.
			return nil, verr.ErrInternal("access: metadata referenced a missing blob")
		}
		return nil, err
	}

	return Allowed{Bytes: p, Record: *rec}, nil
}
