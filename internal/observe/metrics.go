// Package observe provides application-wide observability primitives for
// Guardline: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers.
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

// meterName is the instrumentation scope name used for all Guardline metrics.
const meterName = "github.com/guardline/guardline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// RespondDuration tracks conversational-responder latency.
	RespondDuration metric.Float64Histogram

	// ClassifyDuration tracks threat-classification latency.
	ClassifyDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// CaptionDuration tracks video-frame captioning latency.
	CaptionDuration metric.Float64Histogram

	// --- Counters ---

	// PhrasesProcessed counts completed phrases handed to the
	// respond/classify cycle. Use with attribute:
	//   attribute.String("channel", ...)
	PhrasesProcessed metric.Int64Counter

	// TicketsRecorded counts appended incident tickets. Use with attribute:
	//   attribute.String("type", ...)
	TicketsRecorded metric.Int64Counter

	// StageErrors counts per-cycle stage failures. Use with attribute:
	//   attribute.String("stage", ...)
	StageErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live intake sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for intake-pipeline latencies.
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
	if met.STTDuration, err = m.Float64Histogram("guardline.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RespondDuration, err = m.Float64Histogram("guardline.respond.duration",
		metric.WithDescription("Latency of the conversational responder."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("guardline.classify.duration",
		metric.WithDescription("Latency of threat classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("guardline.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptionDuration, err = m.Float64Histogram("guardline.caption.duration",
		metric.WithDescription("Latency of video-frame captioning."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PhrasesProcessed, err = m.Int64Counter("guardline.phrases.processed",
		metric.WithDescription("Completed phrases handed to respond/classify, by channel."),
	); err != nil {
		return nil, err
	}
	if met.TicketsRecorded, err = m.Int64Counter("guardline.tickets.recorded",
		metric.WithDescription("Incident tickets appended to the ledger, by type."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("guardline.stage.errors",
		metric.WithDescription("Per-cycle pipeline stage failures, by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("guardline.active_sessions",
		metric.WithDescription("Number of live intake sessions."),
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

// RecordPhrase records one completed phrase for the given channel.
func (m *Metrics) RecordPhrase(ctx context.Context, channel string) {
	m.PhrasesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("channel", channel)),
	)
}

// RecordTicket records one appended incident ticket of the given type.
func (m *Metrics) RecordTicket(ctx context.Context, ticketType string) {
	m.TicketsRecorded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", ticketType)),
	)
}

// RecordStageError records one failed pipeline stage.
func (m *Metrics) RecordStageError(ctx context.Context, stage string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
