package analysis_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/cadence/internal/analysis"
	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/paraphrase"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/feedback"
	asrmock "github.com/MrWong99/cadence/pkg/provider/asr/mock"
	"github.com/MrWong99/cadence/pkg/provider/llm"
	llmmock "github.com/MrWong99/cadence/pkg/provider/llm/mock"
	"github.com/MrWong99/cadence/pkg/scoring"
	"github.com/MrWong99/cadence/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func cityTranscript() *types.Transcript {
	return &types.Transcript{
		Text:     "I really, really like this city. Do you like it too?",
		Duration: 5 * time.Second,
	}
}

func settings() analysis.Settings {
	cfg := config.Default()
	return analysis.Settings{Extractor: cfg.Extractor, Analysis: cfg.Analysis}
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// counter sums an Int64 sum metric over data points carrying every want
// attribute.
func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, want) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}

// sineWAV renders seconds of a 200 Hz tone at 16 kHz.
func sineWAV(seconds float64) []byte {
	return audio.EncodeWAV(audio.FloatToPCM16(sine(16000, seconds)), 16000, 1)
}

func sine(rate int, seconds float64) []float64 {
	n := int(float64(rate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*200*float64(i)/float64(rate))
	}
	return out
}

type fakeParaphraser struct {
	result *paraphrase.Result
	err    error
	calls  int
}

func (f *fakeParaphraser) Paraphrase(context.Context, string, scoring.Breakdown) (*paraphrase.Result, error) {
	f.calls++
	return f.result, f.err
}

func ptr[T any](v T) *T { return &v }

// ── Analyze ───────────────────────────────────────────────────────────────────

func TestAnalyze_FullPipeline(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	asr := &asrmock.Provider{Transcript: cityTranscript()}
	svc := analysis.New(settings(), analysis.WithTranscriber(asr, "mock"), analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(2), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Prosody == nil || math.Abs(res.Prosody.DurationS-2) > 0.1 {
		t.Errorf("Prosody = %+v, want ~2s summary", res.Prosody)
	}
	if res.Prosody.F0Mean == nil || math.Abs(*res.Prosody.F0Mean-200) > 10 {
		t.Errorf("F0Mean = %v, want ~200", res.Prosody.F0Mean)
	}
	if res.Scores == nil || res.Scores.WordCount != 11 {
		t.Fatalf("Scores = %+v, want 11 words", res.Scores)
	}
	if !res.Scores.AcousticBlend {
		t.Error("AcousticBlend = false, want the summary blended in")
	}
	if res.Feedback.Source != feedback.SourceRules {
		t.Errorf("Feedback.Source = %q", res.Feedback.Source)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v", res.Warnings)
	}
	if asr.CallCount() != 1 || asr.Calls[0].ContentType != "audio/wav" {
		t.Errorf("ASR calls = %+v", asr.Calls)
	}

	if got := counter(t, reader, "cadence.recordings", observe.Attr("outcome", analysis.OutcomeScored)); got != 1 {
		t.Errorf("scored recordings = %d, want 1", got)
	}
	if got := counter(t, reader, "cadence.provider.requests", observe.Attr("kind", "asr"), observe.Attr("status", "ok")); got != 1 {
		t.Errorf("asr requests = %d, want 1", got)
	}
}

func TestAnalyze_ASRFailureDegrades(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	asr := &asrmock.Provider{Err: errors.New("whisper: status 503")}
	svc := analysis.New(settings(), analysis.WithTranscriber(asr, "whisper"), analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(1), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Prosody == nil {
		t.Error("acoustic summary missing on ASR failure")
	}
	if res.Scores != nil || res.Transcript != nil {
		t.Errorf("Scores/Transcript = %v/%v, want nil", res.Scores, res.Transcript)
	}
	if res.Feedback.Source != feedback.SourceDefault {
		t.Errorf("Feedback.Source = %q, want default", res.Feedback.Source)
	}
	if !slices.Contains(res.Warnings, analysis.WarnASRFailed) {
		t.Errorf("Warnings = %v", res.Warnings)
	}
	if got := counter(t, reader, "cadence.provider.errors", observe.Attr("provider", "whisper")); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if got := counter(t, reader, "cadence.recordings", observe.Attr("outcome", analysis.OutcomeNoTranscript)); got != 1 {
		t.Errorf("no_transcript recordings = %d, want 1", got)
	}
}

func TestAnalyze_ASRTimeoutDegrades(t *testing.T) {
	t.Parallel()

	s := settings()
	s.Analysis.ASRTimeout = 20 * time.Millisecond
	m, _ := newTestMetrics(t)
	svc := analysis.New(s, analysis.WithTranscriber(&asrmock.Provider{BlockUntilDone: true}, "slow"), analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(0.5), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !slices.Contains(res.Warnings, analysis.WarnASRFailed) || res.Feedback.Source != feedback.SourceDefault {
		t.Errorf("result = %+v, want degraded", res)
	}
}

func TestAnalyze_CallerCancelled(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithTranscriber(&asrmock.Provider{BlockUntilDone: true}, "slow"), analysis.WithMetrics(m))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.Analyze(ctx, analysis.Request{Audio: sineWAV(0.5), ContentType: "audio/wav"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestAnalyze_EmptyTranscript(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithTranscriber(&asrmock.Provider{Transcript: &types.Transcript{}}, "mock"), analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(0.5), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Feedback.Source != feedback.SourceDefault || !slices.Contains(res.Warnings, analysis.WarnEmptyTranscript) {
		t.Errorf("result = %+v", res)
	}
}

func TestAnalyze_NoTranscriber(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(0.5), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Prosody == nil || res.Scores != nil || !slices.Contains(res.Warnings, analysis.WarnNoTranscriber) {
		t.Errorf("result = %+v", res)
	}

	_, err = svc.Analyze(context.Background(), analysis.Request{Audio: []byte("OggS"), ContentType: "audio/ogg"})
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestAnalyze_OpaqueContainerSkipsAcoustics(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	asr := &asrmock.Provider{Transcript: cityTranscript()}
	svc := analysis.New(settings(), analysis.WithTranscriber(asr, "mock"), analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: []byte("OggS...."), ContentType: "audio/ogg"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Prosody != nil {
		t.Errorf("Prosody = %+v, want nil", res.Prosody)
	}
	if res.Scores == nil || res.Scores.AcousticBlend {
		t.Errorf("Scores = %+v, want text-only scores", res.Scores)
	}
	if !slices.Contains(res.Warnings, analysis.WarnNoAcoustic) {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestAnalyze_InvalidAudio(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithTranscriber(&asrmock.Provider{}, "mock"), analysis.WithMetrics(m))

	tests := []struct {
		name        string
		audio       []byte
		contentType string
	}{
		{"empty", nil, "audio/wav"},
		{"bad rate", []byte{0, 0}, "audio/l16;rate=fast"},
		{"three channels", []byte{0, 0}, "audio/l16;rate=16000;channels=3"},
		{"odd pcm", []byte{0, 0, 0}, "audio/pcm"},
		{"partial stereo frame", []byte{0, 0, 0, 0, 0, 0}, "audio/l16;rate=16000;channels=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Analyze(context.Background(), analysis.Request{Audio: tt.audio, ContentType: tt.contentType})
			if !errors.Is(err, analysis.ErrInvalidAudio) {
				t.Errorf("err = %v, want ErrInvalidAudio", err)
			}
		})
	}
}

func TestAnalyze_RawPCMRate(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithMetrics(m))

	pcm := audio.FloatToPCM16(sine(8000, 1))
	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: pcm, ContentType: "audio/l16; rate=8000"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(res.Prosody.DurationS-1) > 0.1 {
		t.Errorf("DurationS = %.2f, want ~1 (rate parameter ignored?)", res.Prosody.DurationS)
	}
}

func TestAnalyze_RawPCMReachesASRAsWAV(t *testing.T) {
	t.Parallel()

	mono := audio.FloatToPCM16(sine(8000, 1))
	stereo := make([]byte, 0, len(mono)*2)
	for i := 0; i < len(mono); i += 2 {
		stereo = append(stereo, mono[i], mono[i+1], mono[i], mono[i+1])
	}

	asr := &asrmock.Provider{Transcript: cityTranscript()}
	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithTranscriber(asr, "mock"), analysis.WithMetrics(m))
	if _, err := svc.Analyze(context.Background(), analysis.Request{Audio: stereo, ContentType: "audio/l16; rate=8000; channels=2"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if asr.CallCount() != 1 || asr.Calls[0].ContentType != "audio/wav" {
		t.Fatalf("ASR calls = %+v, want one audio/wav call", asr.Calls)
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(asr.Calls[0].Audio))
	if err != nil {
		t.Fatalf("ASR audio is not WAV: %v", err)
	}
	if clip.SampleRate != 8000 || len(clip.Samples) != 8000 {
		t.Errorf("ASR clip = %d samples at %d Hz, want 8000 at 8000 Hz", len(clip.Samples), clip.SampleRate)
	}
	if clip.Duration() != time.Second {
		t.Errorf("ASR clip duration = %v, want 1s", clip.Duration())
	}
}

func TestAnalyze_WAVForwardedUnchanged(t *testing.T) {
	t.Parallel()

	wav := sineWAV(0.5)
	asr := &asrmock.Provider{Transcript: cityTranscript()}
	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithTranscriber(asr, "mock"), analysis.WithMetrics(m))
	if _, err := svc.Analyze(context.Background(), analysis.Request{Audio: wav, ContentType: "audio/wav"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if asr.CallCount() != 1 || !bytes.Equal(asr.Calls[0].Audio, wav) {
		t.Error("WAV upload was not forwarded as-is")
	}
}

// ── Paraphrasing ──────────────────────────────────────────────────────────────

func TestAnalyze_Paraphrase(t *testing.T) {
	t.Parallel()

	s := settings()
	s.Analysis.Paraphrase = true
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"strengths":["Lovely, relaxed pace."],"improvements":["Say \"like\" less often."]}`,
	}}
	m, _ := newTestMetrics(t)
	svc := analysis.New(s,
		analysis.WithTranscriber(&asrmock.Provider{Transcript: cityTranscript()}, "mock"),
		analysis.WithParaphraser(paraphrase.New(model), "mock-llm"),
		analysis.WithMetrics(m),
	)

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(1), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Feedback.Source != feedback.SourceParaphrase {
		t.Errorf("Source = %q, want paraphrase", res.Feedback.Source)
	}
	if !slices.Equal(res.Feedback.Strengths, []string{"Lovely, relaxed pace."}) {
		t.Errorf("Strengths = %q", res.Feedback.Strengths)
	}
	if len(res.Feedback.SpecificIssues) == 0 {
		t.Error("specific issues dropped by paraphrasing")
	}

	// Per-request opt-out skips the model.
	before := len(model.Calls())
	res, err = svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(1), ContentType: "audio/wav", Paraphrase: ptr(false)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(model.Calls()) != before || res.Feedback.Source != feedback.SourceRules {
		t.Errorf("opt-out still paraphrased: source %q", res.Feedback.Source)
	}
}

func TestScore_ParaphraseFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		para          *fakeParaphraser
		wantWarning   bool
		wantDiscarded int64
	}{
		{"malformed", &fakeParaphraser{}, false, 1},
		{"error", &fakeParaphraser{err: errors.New("llm down")}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, reader := newTestMetrics(t)
			svc := analysis.New(settings(), analysis.WithParaphraser(tt.para, "fake"), analysis.WithMetrics(m))

			res := svc.Score(context.Background(), *cityTranscript(), nil, ptr(true))
			if tt.para.calls != 1 {
				t.Fatalf("paraphraser calls = %d", tt.para.calls)
			}
			if res.Feedback.Source != feedback.SourceRules {
				t.Errorf("Source = %q, want rules", res.Feedback.Source)
			}
			if got := slices.Contains(res.Warnings, analysis.WarnParaphraseError); got != tt.wantWarning {
				t.Errorf("Warnings = %v", res.Warnings)
			}
			if got := counter(t, reader, "cadence.paraphrase.discarded"); got != tt.wantDiscarded {
				t.Errorf("discarded = %d, want %d", got, tt.wantDiscarded)
			}
		})
	}
}

func TestScore_EmptyTextSkipsParaphrase(t *testing.T) {
	t.Parallel()

	para := &fakeParaphraser{}
	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithParaphraser(para, "fake"), analysis.WithMetrics(m))

	res := svc.Score(context.Background(), types.Transcript{}, nil, ptr(true))
	if para.calls != 0 {
		t.Errorf("paraphraser called %d times for empty text", para.calls)
	}
	if res.Scores == nil || res.Scores.Rhythm != scoring.NeutralRhythm {
		t.Errorf("Scores = %+v, want neutral defaults", res.Scores)
	}
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	svc := analysis.New(settings(), analysis.WithMetrics(m))

	next := settings()
	next.Extractor.IncludeContour = true
	svc.UpdateSettings(next)
	if !svc.Settings().Extractor.IncludeContour {
		t.Fatal("settings not swapped")
	}

	res, err := svc.Analyze(context.Background(), analysis.Request{Audio: sineWAV(0.5), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Prosody.Contour) == 0 {
		t.Error("contour missing after enabling include_contour")
	}
}
