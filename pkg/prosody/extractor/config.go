package extractor

import "github.com/MrWong99/cadence/pkg/prosody/signal"

// Config holds the empirical aggregation constants. They are heuristics, not
// invariants, so every one of them can be overridden.
type Config struct {
	// PausePercentile selects the energy quantile used as the dynamic silence
	// threshold. Default: 0.2.
	PausePercentile float64

	// PauseFloor is the absolute minimum silence threshold. Default: 0.0005.
	PauseFloor float64

	// MinPauseMs is the shortest low-energy run counted as a pause.
	// Default: 200.
	MinPauseMs float64

	// PeakMultiplier scales the mean energy when computing the syllable peak
	// threshold. Default: 1.2.
	PeakMultiplier float64

	// PeakPercentile is the energy quantile competing with the scaled mean
	// for the peak threshold. Default: 0.75.
	PeakPercentile float64

	// MinPeakSpacingMs is the minimum distance between accepted syllable
	// peaks. Default: 80.
	MinPeakSpacingMs float64

	// IncludeContour copies the full pitch contour into the summary.
	IncludeContour bool

	// Detector is the per-frame pitch estimator.
	Detector signal.Detector

	// Tips tunes the rule list that produces coaching tips.
	Tips TipConfig
}

// TipConfig holds the thresholds of the tip rules.
type TipConfig struct {
	MinDurationS     float64 // default 8
	MinEnergy        float64 // default 0.01
	MinF0Stdev       float64 // default 20
	MaxAvgPauseMs    float64 // default 500
	MinRate, MaxRate float64 // default 120 / 260 syllables per minute
}

// DefaultConfig returns the default aggregation constants.
func DefaultConfig() Config {
	return Config{
		PausePercentile:  0.2,
		PauseFloor:       0.0005,
		MinPauseMs:       200,
		PeakMultiplier:   1.2,
		PeakPercentile:   0.75,
		MinPeakSpacingMs: 80,
		Detector:         signal.DefaultDetector(),
		Tips: TipConfig{
			MinDurationS:  8,
			MinEnergy:     0.01,
			MinF0Stdev:    20,
			MaxAvgPauseMs: 500,
			MinRate:       120,
			MaxRate:       260,
		},
	}
}

// withDefaults fills zero-valued fields from [DefaultConfig].
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PausePercentile <= 0 || c.PausePercentile >= 1 {
		c.PausePercentile = d.PausePercentile
	}
	if c.PauseFloor <= 0 {
		c.PauseFloor = d.PauseFloor
	}
	if c.MinPauseMs <= 0 {
		c.MinPauseMs = d.MinPauseMs
	}
	if c.PeakMultiplier <= 0 {
		c.PeakMultiplier = d.PeakMultiplier
	}
	if c.PeakPercentile <= 0 || c.PeakPercentile >= 1 {
		c.PeakPercentile = d.PeakPercentile
	}
	if c.MinPeakSpacingMs <= 0 {
		c.MinPeakSpacingMs = d.MinPeakSpacingMs
	}
	if c.Detector.Threshold <= 0 {
		c.Detector.Threshold = d.Detector.Threshold
	}
	if c.Detector.MinFrequency <= 0 {
		c.Detector.MinFrequency = d.Detector.MinFrequency
	}
	if c.Detector.MaxFrequency <= 0 {
		c.Detector.MaxFrequency = d.Detector.MaxFrequency
	}
	c.Tips = c.Tips.withDefaults(d.Tips)
	return c
}

func (t TipConfig) withDefaults(d TipConfig) TipConfig {
	if t.MinDurationS <= 0 {
		t.MinDurationS = d.MinDurationS
	}
	if t.MinEnergy <= 0 {
		t.MinEnergy = d.MinEnergy
	}
	if t.MinF0Stdev <= 0 {
		t.MinF0Stdev = d.MinF0Stdev
	}
	if t.MaxAvgPauseMs <= 0 {
		t.MaxAvgPauseMs = d.MaxAvgPauseMs
	}
	if t.MinRate <= 0 {
		t.MinRate = d.MinRate
	}
	if t.MaxRate <= 0 {
		t.MaxRate = d.MaxRate
	}
	return t
}
