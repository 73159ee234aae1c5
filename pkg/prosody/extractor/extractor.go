// Package extractor implements the streaming prosody feature extractor.
//
// An [Extractor] serves exactly one recording session at a time. The audio
// capture side pushes fixed-size frames through [Extractor.OnFrame]; each frame
// is reduced to one pitch sample and one energy sample, and [Extractor.Stop]
// aggregates those buffers into a [prosody.Summary].
//
// The extractor is not safe for concurrent use. OnFrame does no I/O and only
// grows two slices, so it can run inside an audio callback.
package extractor

import (
	"math"
	"slices"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/prosody"
	"github.com/MrWong99/cadence/pkg/prosody/signal"
)

// State is the lifecycle position of an [Extractor].
type State int

const (
	// StateIdle is the initial state; frames are ignored.
	StateIdle State = iota

	// StateRecording accepts frames.
	StateRecording

	// StateFinalized means Stop produced a summary. A new session requires
	// another Start.
	StateFinalized
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithConfig overrides the aggregation constants. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(e *Extractor) {
		e.cfg = cfg.withDefaults()
	}
}

// WithClock replaces the wall clock used to stamp the session start.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// Extractor accumulates per-frame pitch and energy for one recording.
type Extractor struct {
	cfg Config
	now func() time.Time

	state      State
	startedAt  time.Time
	sampleRate int
	samples    int64

	contour []prosody.PitchSample
	energy  []float64
}

// New returns an idle Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		cfg: DefaultConfig(),
		now: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Extractor) State() State { return e.state }

// StartedAt returns the wall-clock time of the last Start call.
func (e *Extractor) StartedAt() time.Time { return e.startedAt }

// Start begins a new session, discarding anything left from a previous one.
func (e *Extractor) Start() {
	e.state = StateRecording
	e.startedAt = e.now()
	e.sampleRate = 0
	e.samples = 0
	e.contour = e.contour[:0]
	e.energy = e.energy[:0]
}

// OnFrame appends one pitch sample and one energy sample for frame. Frames
// delivered outside the Recording state, or with an invalid sample rate, are
// dropped.
//
// Sample timestamps are derived from the cumulative sample count, so the
// contour timeline reflects audio time rather than callback jitter.
func (e *Extractor) OnFrame(frame audio.Frame) {
	if e.state != StateRecording || frame.SampleRate <= 0 || len(frame.Samples) == 0 {
		return
	}
	if e.sampleRate == 0 {
		e.sampleRate = frame.SampleRate
	}

	n := int64(len(frame.Samples))
	if frame.SampleRate != e.sampleRate {
		n = n * int64(e.sampleRate) / int64(frame.SampleRate)
	}
	e.samples += n

	p := e.cfg.Detector.Detect(frame.Samples, frame.SampleRate)
	e.contour = append(e.contour, prosody.PitchSample{
		T:  float64(e.samples) / float64(e.sampleRate),
		F0: p.Frequency,
	})
	e.energy = append(e.energy, signal.RMS(frame.Samples))
}

// Stop ends the session and returns its summary. Calling Stop when no
// session is recording returns nil. All frame buffers are released before
// Stop returns.
func (e *Extractor) Stop() *prosody.Summary {
	if e.state != StateRecording {
		return nil
	}
	s := summarize(e.contour, e.energy, e.cfg)
	e.contour = nil
	e.energy = nil
	e.state = StateFinalized
	return s
}

// Process runs a complete Start/OnFrame/Stop session over an in-memory
// signal split into frames of frameSize samples. A trailing partial frame is
// discarded.
func Process(samples []float64, sampleRate, frameSize int, opts ...Option) *prosody.Summary {
	e := New(opts...)
	e.Start()
	for _, f := range audio.Split(samples, sampleRate, frameSize) {
		e.OnFrame(f)
	}
	return e.Stop()
}

// summarize performs the one-shot aggregation.
func summarize(contour []prosody.PitchSample, energy []float64, cfg Config) *prosody.Summary {
	s := &prosody.Summary{}
	if len(contour) > 0 {
		s.DurationS = contour[len(contour)-1].T
	}

	var voiced []float64
	for _, p := range contour {
		if p.F0 != nil && !math.IsNaN(*p.F0) && !math.IsInf(*p.F0, 0) {
			voiced = append(voiced, *p.F0)
		}
	}
	if len(voiced) > 0 {
		m, sd := meanStdev(voiced)
		s.F0Mean = prosody.Float(m)
		s.F0Stdev = prosody.Float(sd)
		s.Monotony = prosody.Float(monotony(sd))
	}

	s.EnergyMean = mean(energy)

	var frameMs float64
	if len(energy) > 0 && s.DurationS > 0 {
		frameMs = s.DurationS * 1000 / float64(len(energy))
	}

	pauses := detectPauses(energy, frameMs, cfg)
	s.PauseCount = len(pauses)
	if len(pauses) > 0 {
		s.AvgPauseMs = prosody.Float(mean(pauses))
	}

	if s.DurationS > 0 {
		peaks := countPeaks(energy, frameMs, cfg)
		s.SpeechRateSyllablesPerMin = prosody.Float(float64(peaks) / s.DurationS * 60)
	}

	s.Tips = tips(s, cfg.Tips)
	if cfg.IncludeContour {
		s.Contour = slices.Clone(contour)
	}
	return s
}

// monotony maps pitch deviation to [0,1]: flat speech scores 1, a deviation
// of 60 Hz or more scores 0.
func monotony(stdev float64) float64 {
	return math.Max(0, math.Min(1, 1-stdev/60))
}

// detectPauses returns the duration in milliseconds of every low-energy run
// long enough to count as a pause. A run still open at the end of the
// recording is judged by the same rule.
func detectPauses(energy []float64, frameMs float64, cfg Config) []float64 {
	if len(energy) == 0 || frameMs <= 0 {
		return nil
	}
	threshold := math.Max(quantile(energy, cfg.PausePercentile), cfg.PauseFloor)

	var pauses []float64
	run := 0
	flush := func() {
		if ms := float64(run) * frameMs; run > 0 && ms >= cfg.MinPauseMs-1e-9 {
			pauses = append(pauses, ms)
		}
		run = 0
	}
	for _, v := range energy {
		if v < threshold {
			run++
			continue
		}
		flush()
	}
	flush()
	return pauses
}

// countPeaks approximates the syllable count by picking local maxima of the
// energy envelope that clear max(mean*PeakMultiplier, P75) and are at least
// MinPeakSpacingMs apart.
func countPeaks(energy []float64, frameMs float64, cfg Config) int {
	if len(energy) < 3 {
		return 0
	}
	threshold := math.Max(mean(energy)*cfg.PeakMultiplier, quantile(energy, cfg.PeakPercentile))

	minGap := 1
	if frameMs > 0 {
		minGap = max(1, int(math.Ceil(cfg.MinPeakSpacingMs/frameMs-1e-9)))
	}

	peaks := 0
	last := -minGap
	for i := 1; i < len(energy)-1; i++ {
		v := energy[i]
		if v > energy[i-1] && v > energy[i+1] && v > threshold && i-last >= minGap {
			peaks++
			last = i
		}
	}
	return peaks
}

// quantile returns the value at floor(q*n) of the sorted values.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	idx := min(len(sorted)-1, max(0, int(math.Floor(q*float64(len(sorted))))))
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// meanStdev returns the mean and population standard deviation.
func meanStdev(values []float64) (float64, float64) {
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(len(values)))
}
