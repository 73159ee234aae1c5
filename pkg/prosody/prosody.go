// Package prosody holds the acoustic summary produced for one recording.
//
// The per-frame estimators live in [github.com/MrWong99/cadence/pkg/prosody/signal]
// and the session state machine that aggregates them lives in
// [github.com/MrWong99/cadence/pkg/prosody/extractor].
package prosody

// PitchSample is one point of the pitch contour.
type PitchSample struct {
	// T is the time in seconds since the recording started.
	T float64 `json:"t"`

	// F0 is the estimated fundamental frequency in Hz, or nil when the frame
	// had no detectable periodicity.
	F0 *float64 `json:"f0"`
}

// Summary is the aggregate acoustic description of one finished recording.
// It is created once by the extractor and never mutated afterwards.
//
// Pointer fields are nil when the underlying statistic is undefined (no voiced
// frames, no pauses, zero duration). They are never NaN.
type Summary struct {
	DurationS                 float64       `json:"duration_s"`
	F0Mean                    *float64      `json:"f0_mean"`
	F0Stdev                   *float64      `json:"f0_stdev"`
	EnergyMean                float64       `json:"energy_mean"`
	PauseCount                int           `json:"pause_count"`
	AvgPauseMs                *float64      `json:"avg_pause_ms"`
	SpeechRateSyllablesPerMin *float64      `json:"speech_rate_syllables_per_min"`
	Monotony                  *float64      `json:"monotony"`
	Tips                      []string      `json:"tips"`
	Contour                   []PitchSample `json:"contour,omitempty"`
}

// Float returns a pointer to v. It keeps call sites building summaries terse.
func Float(v float64) *float64 { return &v }
