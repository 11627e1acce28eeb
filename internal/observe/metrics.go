// Package observe provides application-wide observability primitives for
// Overtone: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Overtone metrics.
const meterName = "github.com/overtone-ai/overtone"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognizeDuration tracks speech-recognition latency.
	RecognizeDuration metric.Float64Histogram

	// GenerateDuration tracks response-generation latency.
	GenerateDuration metric.Float64Histogram

	// SynthesizeDuration tracks speech-synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end latency from a completed utterance to
	// its terminal pipeline event.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// PipelineEvents counts emitted pipeline events. Use with attribute:
	//   attribute.String("kind", ...)
	PipelineEvents metric.Int64Counter

	// StageErrors counts pipeline stage failures. Use with attribute:
	//   attribute.String("stage", ...)
	StageErrors metric.Int64Counter

	// UtterancesDropped counts utterances skipped because the session
	// already had one in flight.
	UtterancesDropped metric.Int64Counter

	// SupervisorReconnects counts media-backend reconnect attempts. Use with
	// attribute:
	//   attribute.String("status", ...)
	SupervisorReconnects metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognizeDuration, err = m.Float64Histogram("overtone.recognize.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerateDuration, err = m.Float64Histogram("overtone.generate.duration",
		metric.WithDescription("Latency of response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("overtone.synthesize.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("overtone.turn.duration",
		metric.WithDescription("End-to-end latency of one conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PipelineEvents, err = m.Int64Counter("overtone.pipeline.events",
		metric.WithDescription("Total pipeline events emitted, by kind."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("overtone.pipeline.stage_errors",
		metric.WithDescription("Total pipeline stage failures, by stage."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("overtone.pipeline.utterances_dropped",
		metric.WithDescription("Utterances dropped because the session was busy."),
	); err != nil {
		return nil, err
	}
	if met.SupervisorReconnects, err = m.Int64Counter("overtone.supervisor.reconnects",
		metric.WithDescription("Media-backend reconnect attempts, by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("overtone.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("overtone.http.request.duration",
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

// RecordEvent records one emitted pipeline event of the given kind.
func (m *Metrics) RecordEvent(ctx context.Context, kind string) {
	m.PipelineEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordStageError records a pipeline stage failure.
func (m *Metrics) RecordStageError(ctx context.Context, stage string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordReconnect records a media-backend reconnect attempt with its outcome.
func (m *Metrics) RecordReconnect(ctx context.Context, status string) {
	m.SupervisorReconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
