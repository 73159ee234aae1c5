// Package observe provides the service's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware structured logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus format via [InitProvider]. [DefaultMetrics] is a lazily created
// package-level instance; tests should call [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every cadence instrument.
const meterName = "github.com/MrWong99/cadence"

// Metrics holds all instruments. The OTel types handle their own
// synchronisation.
type Metrics struct {
	// ASRDuration tracks transcription latency.
	ASRDuration metric.Float64Histogram

	// ParaphraseDuration tracks LLM paraphrase latency.
	ParaphraseDuration metric.Float64Histogram

	// AnalysisDuration tracks a full analysis, from upload to report.
	AnalysisDuration metric.Float64Histogram

	// OverallScore records the overall score of every scored transcript.
	// Attribute "acoustic" tells whether a prosody summary was blended in.
	OverallScore metric.Float64Histogram

	// ProviderRequests counts collaborator calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts collaborator failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// Recordings counts analysed recordings by outcome
	// ("scored", "no_transcript", "invalid").
	Recordings metric.Int64Counter

	// ParaphraseDiscarded counts paraphrases dropped as malformed.
	ParaphraseDiscarded metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by breaker
	// name and target state.
	BreakerTransitions metric.Int64Counter

	// ActiveStreams tracks open live-extraction WebSocket sessions.
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) span a quick rule-based score up to a slow
// batch transcription.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc, unit string, buckets []float64) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
	}

	if met.ASRDuration, err = histogram("cadence.asr.duration",
		"Latency of speech recognition.", "s", latencyBuckets); err != nil {
		return nil, err
	}
	if met.ParaphraseDuration, err = histogram("cadence.paraphrase.duration",
		"Latency of LLM feedback paraphrasing.", "s", latencyBuckets); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = histogram("cadence.analysis.duration",
		"Latency of a full recording analysis.", "s", latencyBuckets); err != nil {
		return nil, err
	}
	if met.OverallScore, err = histogram("cadence.score.overall",
		"Overall prosody score per scored transcript.", "1", scoreBuckets); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = histogram("cadence.http.request.duration",
		"HTTP request latency by method, route and status.", "s", latencyBuckets); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("cadence.provider.requests",
		metric.WithDescription("Collaborator requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cadence.provider.errors",
		metric.WithDescription("Collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("cadence.recordings",
		metric.WithDescription("Analysed recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ParaphraseDiscarded, err = m.Int64Counter("cadence.paraphrase.discarded",
		metric.WithDescription("Paraphrase responses discarded as malformed."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("cadence.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("cadence.active_streams",
		metric.WithDescription("Open live-extraction streams."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. Call it after [InitProvider].
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one collaborator call. kind is "asr" or
// "llm"; status is "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status),
	))
}

// RecordProviderError counts one collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind),
	))
}

// RecordRecording counts one analysed recording.
func (m *Metrics) RecordRecording(ctx context.Context, outcome string) {
	m.Recordings.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordScore records an overall score.
func (m *Metrics) RecordScore(ctx context.Context, overall float64, acoustic bool) {
	m.OverallScore.Record(ctx, overall, metric.WithAttributes(attribute.Bool("acoustic", acoustic)))
}

// RecordBreakerTransition counts a breaker state change. Its signature fits
// resilience.CircuitBreakerConfig.OnStateChange once wrapped.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", name), Attr("state", to)))
}
