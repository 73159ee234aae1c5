package extractor

import (
	"fmt"

	"github.com/MrWong99/cadence/pkg/prosody"
)

const (
	minTips = 3
	maxTips = 4
)

// genericTips pad the rule-based list when the recording triggered few rules.
var genericTips = []string{
	"Practice reading a short passage aloud every day.",
	"Record yourself and compare your rhythm with a native speaker.",
	"Stress the most important word in each sentence.",
	"Breathe between phrases rather than in the middle of them.",
}

// tips applies the deterministic rule list to s and pads the result with
// generic advice until it holds between minTips and maxTips entries.
func tips(s *prosody.Summary, cfg TipConfig) []string {
	var out []string

	if s.DurationS < cfg.MinDurationS {
		out = append(out, fmt.Sprintf("Record for longer, at least %g seconds, so there is more speech to analyse.", cfg.MinDurationS))
	}
	if s.EnergyMean < cfg.MinEnergy {
		out = append(out, "Speak louder or move closer to the microphone.")
	}
	if s.F0Stdev != nil && *s.F0Stdev < cfg.MinF0Stdev {
		out = append(out, "Vary your pitch: let your voice rise and fall to highlight key words.")
	}
	if s.AvgPauseMs != nil && *s.AvgPauseMs > cfg.MaxAvgPauseMs {
		out = append(out, "Shorten your pauses between phrases to keep the flow going.")
	}
	if r := s.SpeechRateSyllablesPerMin; r != nil {
		switch {
		case *r < cfg.MinRate:
			out = append(out, "Pick up the pace a little; aim for a steady, conversational tempo.")
		case *r > cfg.MaxRate:
			out = append(out, "Slow down slightly so each syllable comes through clearly.")
		}
	}

	for _, g := range genericTips {
		if len(out) >= minTips {
			break
		}
		out = append(out, g)
	}
	if len(out) > maxTips {
		out = out[:maxTips]
	}
	return out
}
