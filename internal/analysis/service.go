// Package analysis runs the full pipeline for one recording: acoustic
// feature extraction and speech recognition in parallel, then text scoring,
// rule-based feedback and optional LLM paraphrasing.
//
// Collaborator failures never fail an analysis. Without a transcript the
// result carries the acoustic summary and the placeholder report; a failed
// or malformed paraphrase keeps the rule-based wording.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/paraphrase"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/feedback"
	"github.com/MrWong99/cadence/pkg/prosody"
	"github.com/MrWong99/cadence/pkg/prosody/extractor"
	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/scoring"
	"github.com/MrWong99/cadence/pkg/scoring/wordlevel"
	"github.com/MrWong99/cadence/pkg/types"
)

// Recording outcomes reported in metrics.
const (
	OutcomeScored       = "scored"
	OutcomeNoTranscript = "no_transcript"
	OutcomeInvalid      = "invalid"
)

// Warnings attached to degraded results.
const (
	WarnNoAcoustic      = "acoustic analysis needs WAV or raw PCM audio"
	WarnNoTranscriber   = "speech recognition is not configured"
	WarnASRFailed       = "speech recognition failed"
	WarnEmptyTranscript = "no speech was recognised"
	WarnParaphraseError = "feedback paraphrasing failed"
)

// Transcriber is the speech recognition collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*types.Transcript, error)
}

// Paraphraser rewords feedback. A nil result with a nil error means the
// output was unusable.
type Paraphraser interface {
	Paraphrase(ctx context.Context, text string, b scoring.Breakdown) (*paraphrase.Result, error)
}

// Settings is the hot-reloadable part of the service configuration.
type Settings struct {
	Extractor config.ExtractorConfig
	Analysis  config.AnalysisConfig
}

// Request is one recording to analyse.
type Request struct {
	Audio       []byte
	ContentType string

	// Paraphrase overrides the configured default when non-nil.
	Paraphrase *bool
}

// Result is the outcome of one analysis. Prosody is nil when the audio
// could not be decoded; Transcript and Scores are nil when no transcript
// was available.
type Result struct {
	ID         uuid.UUID          `json:"id"`
	Prosody    *prosody.Summary   `json:"prosody"`
	Transcript *types.Transcript  `json:"transcript,omitempty"`
	Scores     *scoring.Breakdown `json:"scores,omitempty"`
	Feedback   feedback.Report    `json:"feedback"`
	Warnings   []string           `json:"warnings,omitempty"`
	ElapsedMs  int64              `json:"elapsed_ms"`
}

// Service is safe for concurrent use.
type Service struct {
	asr        Transcriber
	asrName    string
	paraphrase Paraphraser
	llmName    string
	metrics    *observe.Metrics
	now        func() time.Time

	settings atomic.Pointer[Settings]
	streams  streamTable
}

// Option configures a [Service].
type Option func(*Service)

// WithTranscriber sets the ASR collaborator. name labels its metrics.
func WithTranscriber(t Transcriber, name string) Option {
	return func(s *Service) {
		s.asr = t
		s.asrName = name
	}
}

// WithParaphraser sets the feedback paraphraser. name labels its metrics.
func WithParaphraser(p Paraphraser, name string) Option {
	return func(s *Service) {
		s.paraphrase = p
		s.llmName = name
	}
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces the wall clock used for durations and stream stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. Without a transcriber every analysis is
// acoustic-only.
func New(settings Settings, opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.streams.init()
	s.UpdateSettings(settings)
	return s
}

// UpdateSettings swaps the extraction and analysis settings. In-flight
// analyses and open streams keep the settings they started with.
func (s *Service) UpdateSettings(settings Settings) {
	s.settings.Store(&settings)
}

// Settings returns the current settings.
func (s *Service) Settings() Settings { return *s.settings.Load() }

// Analyze runs the full pipeline over one upload. It only returns an error
// for unusable input (ErrInvalidAudio, audio.ErrUnsupportedFormat without a
// transcriber) or when ctx ends before any result exists.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	settings := s.Settings()

	ctx, span := observe.StartSpan(ctx, "analysis.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.Int("audio.bytes", len(req.Audio)),
		attribute.String("audio.content_type", req.ContentType),
	)

	res := &Result{ID: uuid.New()}
	log := observe.Logger(ctx).With("analysis_id", res.ID)

	if len(req.Audio) == 0 {
		s.metrics.RecordRecording(ctx, OutcomeInvalid)
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidAudio)
	}

	clip, decodeErr := decodeClip(req.Audio, req.ContentType, settings.Extractor.SampleRate)
	if decodeErr != nil {
		if errors.Is(decodeErr, ErrInvalidAudio) || s.asr == nil {
			s.metrics.RecordRecording(ctx, OutcomeInvalid)
			observe.SpanError(span, decodeErr)
			return nil, decodeErr
		}
		log.Debug("acoustic analysis skipped", "err", decodeErr)
		res.Warnings = append(res.Warnings, WarnNoAcoustic)
	} else {
		log.Debug("recording decoded", "duration", clip.Duration(), "sample_rate", clip.SampleRate)
		span.SetAttributes(attribute.Float64("audio.duration_s", clip.Duration().Seconds()))
	}

	var (
		transcript *types.Transcript
		asrErr     error
	)
	g, gctx := errgroup.WithContext(ctx)
	if clip != nil {
		g.Go(func() error {
			summary, err := s.extract(gctx, clip, settings.Extractor)
			res.Prosody = summary
			return err
		})
	}
	if s.asr != nil {
		g.Go(func() error {
			data, contentType := asrInput(req, clip)
			transcript, asrErr = s.transcribe(gctx, data, contentType, settings.Analysis.ASRTimeout)
			return nil
		})
	} else {
		res.Warnings = append(res.Warnings, WarnNoTranscriber)
	}
	if err := g.Wait(); err != nil {
		observe.SpanError(span, err)
		return nil, fmt.Errorf("analysis: %w", err)
	}

	switch {
	case asrErr != nil:
		if ctx.Err() != nil {
			return nil, fmt.Errorf("analysis: %w", ctx.Err())
		}
		log.Warn("transcription failed, returning acoustic result only", "err", asrErr)
		res.Warnings = append(res.Warnings, WarnASRFailed)
	case s.asr != nil && (transcript == nil || transcript.IsEmpty()):
		res.Warnings = append(res.Warnings, WarnEmptyTranscript)
	}

	if transcript == nil || transcript.IsEmpty() {
		res.Feedback = feedback.DefaultReport()
		s.metrics.RecordRecording(ctx, OutcomeNoTranscript)
	} else {
		res.Transcript = transcript
		s.score(ctx, res, settings, req.Paraphrase)
		s.metrics.RecordRecording(ctx, OutcomeScored)
	}

	elapsed := s.now().Sub(start)
	res.ElapsedMs = elapsed.Milliseconds()
	s.metrics.AnalysisDuration.Record(ctx, elapsed.Seconds())
	log.Info("recording analysed",
		"outcome", outcomeOf(res),
		"elapsed", elapsed,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// Score grades a transcript the caller already has, optionally blending an
// acoustic summary. It never calls the ASR collaborator.
func (s *Service) Score(ctx context.Context, tr types.Transcript, summary *prosody.Summary, paraphrase *bool) *Result {
	ctx, span := observe.StartSpan(ctx, "analysis.Score")
	defer span.End()

	res := &Result{ID: uuid.New(), Prosody: summary, Transcript: &tr}
	start := s.now()
	s.score(ctx, res, s.Settings(), paraphrase)
	res.ElapsedMs = s.now().Sub(start).Milliseconds()
	return res
}

func (s *Service) score(ctx context.Context, res *Result, settings Settings, want *bool) {
	tr := *res.Transcript
	b := scoring.ScoreWithSummary(tr, res.Prosody)
	res.Scores = &b
	res.Feedback = feedback.Generate(b, tr, wordlevel.Analyze(tr))
	s.metrics.RecordScore(ctx, b.Overall, b.AcousticBlend)

	enabled := settings.Analysis.Paraphrase
	if want != nil {
		enabled = *want
	}
	if !enabled || s.paraphrase == nil {
		return
	}
	s.reword(ctx, res, settings.Analysis.ParaphraseTimeout)
}

// reword applies the paraphraser to res.Feedback. Failures keep the rule
// based report.
func (s *Service) reword(ctx context.Context, res *Result, timeout time.Duration) {
	text := res.Transcript.PlainText()
	if strings.TrimSpace(text) == "" {
		return
	}

	ctx, span := observe.StartSpan(ctx, "analysis.Paraphrase")
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := s.now()
	out, err := s.paraphrase.Paraphrase(ctx, text, *res.Scores)
	s.metrics.ParaphraseDuration.Record(ctx, s.now().Sub(start).Seconds())

	switch {
	case err != nil:
		observe.SpanError(span, err)
		s.metrics.RecordProviderRequest(ctx, s.llmName, "llm", "error")
		s.metrics.RecordProviderError(ctx, s.llmName, "llm")
		observe.Logger(ctx).Warn("paraphrase failed, keeping rule-based feedback", "err", err)
		res.Warnings = append(res.Warnings, WarnParaphraseError)
	case out == nil:
		s.metrics.RecordProviderRequest(ctx, s.llmName, "llm", "ok")
		s.metrics.ParaphraseDiscarded.Add(ctx, 1)
		observe.Logger(ctx).Debug("paraphrase discarded as malformed")
	default:
		s.metrics.RecordProviderRequest(ctx, s.llmName, "llm", "ok")
		res.Feedback = res.Feedback.WithParaphrase(out.Strengths, out.Improvements)
	}
}

// asrInput returns the bytes handed to the transcriber. Raw PCM is rewrapped
// as mono WAV at its own rate because the media type parameters do not
// survive every ASR backend.
func asrInput(req Request, clip *audio.Clip) ([]byte, string) {
	if clip == nil || !asr.IsRawPCM(req.ContentType) {
		return req.Audio, req.ContentType
	}
	return clip.WAV(0), "audio/wav"
}

func (s *Service) transcribe(ctx context.Context, data []byte, contentType string, timeout time.Duration) (*types.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "analysis.Transcribe")
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := s.now()
	tr, err := s.asr.Transcribe(ctx, data, contentType)
	status := "ok"
	if err != nil {
		status = "error"
		observe.SpanError(span, err)
		s.metrics.RecordProviderError(ctx, s.asrName, "asr")
	}
	s.metrics.ASRDuration.Record(ctx, s.now().Sub(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", s.asrName), observe.Attr("status", status)))
	s.metrics.RecordProviderRequest(ctx, s.asrName, "asr", status)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return tr, nil
}

// extract resamples clip to the configured rate and runs one extractor
// session over it.
func (s *Service) extract(ctx context.Context, clip *audio.Clip, cfg config.ExtractorConfig) (*prosody.Summary, error) {
	_, span := observe.StartSpan(ctx, "analysis.Extract")
	defer span.End()

	rate := cfg.SampleRate
	samples := clip.Samples
	if clip.SampleRate != rate {
		samples = audio.PCM16ToFloat(clip.PCM16(rate))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary := extractor.Process(samples, rate, cfg.FrameSize, cfg.Options()...)
	span.SetAttributes(attribute.Float64("audio.duration_s", summary.DurationS))
	return summary, nil
}

func outcomeOf(r *Result) string {
	if r.Scores != nil {
		return OutcomeScored
	}
	return OutcomeNoTranscript
}

var _ Paraphraser = (*paraphrase.Paraphraser)(nil)

// logAttrs is used by the stream handlers to describe a finished session.
func logAttrs(s *prosody.Summary) []any {
	if s == nil {
		return nil
	}
	return []any{slog.Float64("duration_s", s.DurationS), slog.Int("pauses", s.PauseCount)}
}
