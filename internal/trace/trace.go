// Package trace provides the small OpenCensus wrapper that every traced
// package in this module (blob, index, upload, access) uses to time its
// operations and tag them by storage provider.
package trace

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	octrace "go.opencensus.io/trace"
)

// ProviderKey tags a metric with the name of the adapter that served the
// call (e.g. "fileblob", "minioblob", "redisindex").
var ProviderKey = tag.MustNewKey("ephimg_provider")

// Provider is implemented by adapters so Tracer can tag metrics with a
// human-readable provider name.
type Provider interface {
	// ProviderName returns a short, stable name for the adapter, used only
	// for metric tags and log fields.
	ProviderName() string
}

// ProviderName returns p's provider name if p implements Provider,
// otherwise "unknown".
func ProviderName(p interface{}) string {
	if np, ok := p.(Provider); ok {
		return np.ProviderName()
	}
	return "unknown"
}

// Tracer starts and ends spans and latency measurements for the methods
// of a single package.
type Tracer struct {
	Package        string
	Provider       string
	LatencyMeasure *stats.Float64Measure
}

// Start begins a span named Package.method and returns the context
// carrying it. Call End with the same context when the method returns.
func (t *Tracer) Start(ctx context.Context, method string) context.Context {
	ctx, _ = octrace.StartSpan(ctx, t.Package+"."+method)
	return ctx
}

// End closes the span started by Start and records the call's latency,
// tagged by provider and success/failure.
func (t *Tracer) End(ctx context.Context, err error) {
	if span := octrace.FromContext(ctx); span != nil {
		if err != nil {
			span.Annotate(nil, err.Error())
		}
		span.End()
	}
	if t.LatencyMeasure == nil {
		return
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(ProviderKey, t.Provider)}, t.LatencyMeasure.M(0))
}

// LatencyMeasure declares a float64 measure (in milliseconds) named
// "<pkgName>/latency", for use as a Tracer's LatencyMeasure field.
func LatencyMeasure(pkgName string) *stats.Float64Measure {
	return stats.Float64(pkgName+"/latency", "Latency of calls", stats.UnitMilliseconds)
}

// Views returns the standard count/latency distribution views for a
// package's latency measure, to be registered by callers via
// view.Register.
func Views(pkgName string, latencyMeasure *stats.Float64Measure) []*view.View {
	return []*view.View{
		{
			Name:        pkgName + "/completed_calls",
			Measure:     latencyMeasure,
			Description: "Count of calls by provider and method.",
			TagKeys:     []tag.Key{ProviderKey},
			Aggregation: view.Count(),
		},
		{
			Name:        pkgName + "/latency",
			Measure:     latencyMeasure,
			Description: "Latency distribution of calls.",
			TagKeys:     []tag.Key{ProviderKey},
			Aggregation: view.Distribution(0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
		},
	}
}
