// Package scoring implements the heuristic prosody scorer.
//
// [Score] turns a transcript into four sub-scores (pronunciation, rhythm,
// intonation, fluency) and a weighted overall score. [ScoreWithSummary]
// additionally folds in the acoustic [prosody.Summary] produced by the
// streaming extractor when one is available.
//
// All functions in this package are pure and safe for concurrent use. They
// are total: empty text and zero durations resolve to documented fallbacks
// and never produce NaN.
package scoring

import (
	"math"

	"github.com/MrWong99/cadence/pkg/prosody"
	"github.com/MrWong99/cadence/pkg/scoring/heuristics"
	"github.com/MrWong99/cadence/pkg/types"
)

// Overall score weights. They are a fixed contract, not tunables.
const (
	WeightPronunciation = 0.30
	WeightRhythm        = 0.25
	WeightIntonation    = 0.25
	WeightFluency       = 0.20
)

// NeutralRhythm is reported as the rhythm score when the speaking rate is
// undefined. It does not contribute to the overall score.
const NeutralRhythm = 0.5

// Breakdown is the result of scoring one transcript.
type Breakdown struct {
	Pronunciation float64 `json:"pronunciation"`
	Rhythm        float64 `json:"rhythm"`
	Intonation    float64 `json:"intonation"`
	Fluency       float64 `json:"fluency"`
	Overall       float64 `json:"overall"`

	// SpeakingRate is in words per minute; nil when the duration or the word
	// count is zero.
	SpeakingRate *float64 `json:"speaking_rate"`

	WordCount int     `json:"word_count"`
	DurationS float64 `json:"duration_s"`

	// AcousticBlend is true when an extractor summary adjusted intonation or
	// fluency.
	AcousticBlend bool `json:"acoustic_blend"`

	// Analysis carries the text heuristics the scores were derived from, for
	// the feedback generator.
	Analysis heuristics.Analysis `json:"analysis"`
}

// Score computes the text-only breakdown of tr.
func Score(tr types.Transcript) Breakdown {
	return ScoreWithSummary(tr, nil)
}

// ScoreWithSummary computes the breakdown of tr and, when summary is
// non-nil, blends its monotony into intonation and its pause length into
// fluency. A transcript without a duration borrows the summary's.
func ScoreWithSummary(tr types.Transcript, summary *prosody.Summary) Breakdown {
	a := heuristics.Analyze(tr.PlainText())

	duration := tr.Duration.Seconds()
	if duration <= 0 && summary != nil {
		duration = summary.DurationS
	}

	b := Breakdown{
		WordCount:     a.WordCount,
		DurationS:     duration,
		Analysis:      a,
		SpeakingRate:  SpeakingRate(a.WordCount, duration),
		Pronunciation: Pronunciation(tr.SegmentConfidences(), a.HasLongWord),
		Intonation:    Intonation(a.Sentences),
	}
	b.Fluency = Fluency(a.Fillers.Ratio, a.RepetitionRatio, b.SpeakingRate)

	if summary != nil {
		if summary.Monotony != nil {
			b.Intonation = BlendIntonation(b.Intonation, *summary.Monotony)
			b.AcousticBlend = true
		}
		if summary.AvgPauseMs != nil {
			b.Fluency = BlendFluency(b.Fluency, *summary.AvgPauseMs)
			b.AcousticBlend = true
		}
	}

	if b.SpeakingRate != nil {
		b.Rhythm = Rhythm(*b.SpeakingRate)
		b.Overall = Overall(b.Pronunciation, b.Rhythm, b.Intonation, b.Fluency)
	} else {
		b.Rhythm = NeutralRhythm
		b.Overall = overallWithoutRhythm(b.Pronunciation, b.Intonation, b.Fluency)
	}
	return b
}

// Overall returns 0.30p + 0.25r + 0.25i + 0.20f.
func Overall(p, r, i, f float64) float64 {
	return WeightPronunciation*p + WeightRhythm*r + WeightIntonation*i + WeightFluency*f
}

// overallWithoutRhythm renormalises the remaining weights when the rhythm
// score is undefined.
func overallWithoutRhythm(p, i, f float64) float64 {
	return (WeightPronunciation*p + WeightIntonation*i + WeightFluency*f) /
		(WeightPronunciation + WeightIntonation + WeightFluency)
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
