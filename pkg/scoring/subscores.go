package scoring

import (
	"math"

	"github.com/MrWong99/cadence/pkg/scoring/heuristics"
)

const (
	defaultPronunciation  = 0.80
	longWordPronunciation = 0.75

	// Speaking-rate band in words per minute.
	rateLow    = 100.0
	rateHigh   = 180.0
	ratePeak   = 140.0
	rhythmDrop = 0.3
	rhythmMin  = 0.5

	// Fluency bonus band in words per minute.
	fluentLow  = 120.0
	fluentHigh = 160.0

	fillerAllowance = 0.1
)

// SpeakingRate returns words per minute, or nil when either input is zero.
func SpeakingRate(words int, durationS float64) *float64 {
	if words <= 0 || durationS <= 0 || math.IsNaN(durationS) || math.IsInf(durationS, 0) {
		return nil
	}
	r := float64(words) / durationS * 60
	return &r
}

// Pronunciation returns the mean of confidences clamped to [0.5, 1]. Without
// confidences it falls back to 0.80, or 0.75 when the text contains a long
// word.
func Pronunciation(confidences []float64, hasLongWord bool) float64 {
	if len(confidences) == 0 {
		if hasLongWord {
			return longWordPronunciation
		}
		return defaultPronunciation
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	return clamp(0.5, 1, sum/float64(len(confidences)))
}

// Rhythm scores a speaking rate. Inside [100, 180] wpm the score falls
// linearly from 1 at 140 wpm to 0.7 at either edge. Any rate outside the
// band scores 0.5, below the in-band minimum.
func Rhythm(rate float64) float64 {
	if rate < rateLow || rate > rateHigh {
		return rhythmMin
	}
	halfWidth := math.Max(ratePeak-rateLow, rateHigh-ratePeak)
	return 1 - rhythmDrop*math.Abs(rate-ratePeak)/halfWidth
}

// Intonation rewards varied sentence types and lengths: base 0.7, +0.1 for a
// question, +0.1 for an exclamation, +0.05 for a statement, +0.05 when the
// sentence-length variance exceeds 5 words². Clamped to [0.5, 1].
func Intonation(s heuristics.SentenceStats) float64 {
	score := 0.7
	if s.HasQuestion {
		score += 0.1
	}
	if s.HasExclamation {
		score += 0.1
	}
	if s.HasPeriod {
		score += 0.05
	}
	if s.Variance > 5 {
		score += 0.05
	}
	return clamp(0.5, 1, score)
}

// Fluency starts at 0.8, subtracts 2×(fillerRatio−0.1) when fillers exceed
// 10% of the words, subtracts half the repetition ratio and adds 0.1 for a
// speaking rate in [120, 160] wpm. Clamped to [0.4, 1].
func Fluency(fillerRatio, repetitionRatio float64, rate *float64) float64 {
	score := 0.8
	if fillerRatio > fillerAllowance {
		score -= 2 * (fillerRatio - fillerAllowance)
	}
	score -= 0.5 * repetitionRatio
	if rate != nil && *rate >= fluentLow && *rate <= fluentHigh {
		score += 0.1
	}
	return clamp(0.4, 1, score)
}

// BlendIntonation mixes the text intonation score with the acoustic pitch
// variation: 0.7×intonation + 0.3×(1−monotony), clamped to [0.5, 1].
func BlendIntonation(intonation, monotony float64) float64 {
	return clamp(0.5, 1, 0.7*intonation+0.3*(1-clamp(0, 1, monotony)))
}

// BlendFluency subtracts 0.05 for every 100 ms the average pause exceeds
// 500 ms, at most 0.2, and clamps the result to [0.4, 1].
func BlendFluency(fluency, avgPauseMs float64) float64 {
	if avgPauseMs <= 500 {
		return fluency
	}
	penalty := math.Min(0.2, 0.05*(avgPauseMs-500)/100)
	return clamp(0.4, 1, fluency-penalty)
}
