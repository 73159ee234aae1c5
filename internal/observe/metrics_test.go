package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of an Int64 counter whose attributes
// include every pair in want.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %s not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ASRDuration.Record(ctx, 1.2)
	m.ParaphraseDuration.Record(ctx, 0.4)
	m.AnalysisDuration.Record(ctx, 1.9)
	m.RecordScore(ctx, 0.82, true)
	m.RecordScore(ctx, 0.61, false)

	rm := collect(t, reader)
	for name, wantCount := range map[string]uint64{
		"cadence.asr.duration":        1,
		"cadence.paraphrase.duration": 1,
		"cadence.analysis.duration":   1,
		"cadence.score.overall":       2,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("metric %s not found", name)
			continue
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Errorf("metric %s is %T, want histogram", name, met.Data)
			continue
		}
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != wantCount {
			t.Errorf("%s count = %d, want %d", name, count, wantCount)
		}
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "whisper", "asr", "ok")
	m.RecordProviderRequest(ctx, "whisper", "asr", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "error")
	m.RecordProviderError(ctx, "openai", "llm")
	m.RecordRecording(ctx, "scored")
	m.RecordRecording(ctx, "no_transcript")
	m.RecordBreakerTransition(ctx, "whisper", "open")
	m.ParaphraseDiscarded.Add(ctx, 1)

	rm := collect(t, reader)
	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  int64
	}{
		{"cadence.provider.requests", []attribute.KeyValue{Attr("provider", "whisper"), Attr("status", "ok")}, 2},
		{"cadence.provider.requests", []attribute.KeyValue{Attr("kind", "llm")}, 1},
		{"cadence.provider.errors", []attribute.KeyValue{Attr("provider", "openai")}, 1},
		{"cadence.recordings", []attribute.KeyValue{Attr("outcome", "scored")}, 1},
		{"cadence.recordings", nil, 2},
		{"cadence.breaker.transitions", []attribute.KeyValue{Attr("breaker", "whisper"), Attr("state", "open")}, 1},
		{"cadence.paraphrase.discarded", nil, 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, rm, tt.name, tt.attrs...); got != tt.want {
			t.Errorf("%s%v = %d, want %d", tt.name, tt.attrs, got, tt.want)
		}
	}
}

func TestActiveStreams(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, -1)

	if got := counterValue(t, collect(t, reader), "cadence.active_streams"); got != 1 {
		t.Errorf("active streams = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
