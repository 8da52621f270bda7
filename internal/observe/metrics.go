// Package observe provides application-wide observability primitives for
// HansardFlow: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all HansardFlow metrics.
const meterName = "github.com/maplecivic/hansardflow"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage processing time. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("outcome", ...)
	// where outcome is "ok", "error", or "retry".
	StageDuration metric.Float64Histogram

	// SittingsPolled counts sittings returned by source polls. Use with attributes:
	//   attribute.String("legislature", ...), attribute.String("result", ...)
	// where result is "new" or "known".
	SittingsPolled metric.Int64Counter

	// StageRetries counts stage retries scheduled after a handler error. Use
	// with attribute: attribute.String("stage", ...)
	StageRetries metric.Int64Counter

	// DebatesPublished counts debates that reached the published status. Use
	// with attribute: attribute.String("legislature", ...)
	DebatesPublished metric.Int64Counter

	// ProviderErrors counts upstream provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	// where kind is one of "llm", "asr", "scrape", "media", "forum".
	ProviderErrors metric.Int64Counter

	// ActiveJobs tracks the number of in-flight queue handlers per queue. Use
	// with attribute: attribute.String("queue", ...)
	ActiveJobs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) sized for
// pipeline stages: a Hansard scrape finishes in seconds, transcribing a
// four-hour sitting can take the better part of an hour.
var stageBuckets = []float64{
	0.5, 1, 5, 15, 60, 300, 900, 1800, 3600, 7200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("hansardflow.stage.duration",
		metric.WithDescription("Processing time per pipeline stage by stage and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SittingsPolled, err = m.Int64Counter("hansardflow.poll.sittings",
		metric.WithDescription("Sittings returned by source polls by legislature and result."),
	); err != nil {
		return nil, err
	}
	if met.StageRetries, err = m.Int64Counter("hansardflow.stage.retries",
		metric.WithDescription("Stage retries scheduled after handler errors by stage."),
	); err != nil {
		return nil, err
	}
	if met.DebatesPublished, err = m.Int64Counter("hansardflow.debates.published",
		metric.WithDescription("Debates published to the forum by legislature."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("hansardflow.provider.errors",
		metric.WithDescription("Upstream provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveJobs, err = m.Int64UpDownCounter("hansardflow.active_jobs",
		metric.WithDescription("In-flight queue handlers per queue."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("hansardflow.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one stage execution with its duration and outcome.
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSittingPolled records one sitting found during a source poll.
func (m *Metrics) RecordSittingPolled(ctx context.Context, legislature, result string) {
	m.SittingsPolled.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("legislature", legislature),
			attribute.String("result", result),
		),
	)
}

// RecordStageRetry records a scheduled retry of a failed stage.
func (m *Metrics) RecordStageRetry(ctx context.Context, stage string) {
	m.StageRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordDebatePublished records a debate reaching the published status.
func (m *Metrics) RecordDebatePublished(ctx context.Context, legislature string) {
	m.DebatesPublished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("legislature", legislature)),
	)
}

// RecordProviderError records an upstream provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
