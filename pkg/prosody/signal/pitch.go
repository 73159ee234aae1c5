// Package signal implements the per-frame estimators used by the prosody
// extractor: a time-domain autocorrelation pitch detector and an RMS energy
// meter. Both are pure functions over a single frame of normalized samples.
package signal

import "math"

const (
	// DefaultClarityThreshold is the minimum correlation a lag must reach
	// before a frequency is reported.
	DefaultClarityThreshold = 0.35

	// DefaultMinFrequency and DefaultMaxFrequency bound the lag search to the
	// range of plausible speaking voices.
	DefaultMinFrequency = 50.0
	DefaultMaxFrequency = 500.0

	// flatEpsilon is the peak-to-peak amplitude under which a frame is treated
	// as constant and therefore aperiodic.
	flatEpsilon = 1e-9

	// peakTolerance selects the first correlation peak within this fraction
	// of the correlation range below the global maximum. Integer multiples of
	// the true period correlate almost as well as the period itself, so the
	// earliest near-maximal peak is the fundamental.
	peakTolerance = 0.1
)

// Pitch is the result of one pitch estimate.
type Pitch struct {
	// Frequency is the estimated F0 in Hz, or nil when no periodicity was
	// found with sufficient clarity.
	Frequency *float64

	// Clarity is the correlation at the selected lag, clamped to [0,1].
	Clarity float64
}

// Detector estimates the fundamental frequency of a frame using the
// normalized time-domain autocorrelation
//
//	corr(L) = 1 - Σ|x[i] - x[i+L]| / (N/2),  i ∈ [0, N/2)
//
// evaluated for lags up to N/2. The zero value is not usable; start from
// [DefaultDetector].
type Detector struct {
	// Threshold is the minimum correlation required to report a frequency.
	Threshold float64

	// MinFrequency and MaxFrequency restrict the lag window to
	// [sampleRate/MaxFrequency, sampleRate/MinFrequency] ∩ [1, N/2].
	MinFrequency float64
	MaxFrequency float64
}

// DefaultDetector returns a Detector configured for speech.
func DefaultDetector() Detector {
	return Detector{
		Threshold:    DefaultClarityThreshold,
		MinFrequency: DefaultMinFrequency,
		MaxFrequency: DefaultMaxFrequency,
	}
}

// DetectPitch runs [DefaultDetector] over frame.
func DetectPitch(frame []float64, sampleRate int) Pitch {
	return DefaultDetector().Detect(frame, sampleRate)
}

// Detect estimates the pitch of frame sampled at sampleRate Hz.
func (d Detector) Detect(frame []float64, sampleRate int) Pitch {
	half := len(frame) / 2
	if half < 2 || sampleRate <= 0 || isFlat(frame) {
		return Pitch{}
	}

	minLag, maxLag := d.lagWindow(sampleRate, half)
	if minLag >= maxLag {
		return Pitch{}
	}

	corr := make([]float64, maxLag+1)
	best, worst := math.Inf(-1), math.Inf(1)
	bestLag := minLag
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		for i := range half {
			sum += math.Abs(frame[i] - frame[i+lag])
		}
		c := 1 - sum/float64(half)
		corr[lag] = c
		if c > best {
			best, bestLag = c, lag
		}
		worst = min(worst, c)
	}

	lag := bestLag
	floor := best - peakTolerance*(best-worst)
	for l := minLag + 1; l < maxLag; l++ {
		if corr[l] >= corr[l-1] && corr[l] >= corr[l+1] && corr[l] >= floor {
			lag = l
			break
		}
	}

	p := Pitch{Clarity: clamp01(corr[lag])}
	if lag > 0 && corr[lag] > d.Threshold {
		f := float64(sampleRate) / float64(lag)
		p.Frequency = &f
	}
	return p
}

// lagWindow converts the frequency bounds to an inclusive lag range.
func (d Detector) lagWindow(sampleRate, half int) (int, int) {
	minLag, maxLag := 1, half
	if d.MaxFrequency > 0 {
		minLag = max(1, int(math.Floor(float64(sampleRate)/d.MaxFrequency)))
	}
	if d.MinFrequency > 0 {
		maxLag = min(half, int(math.Ceil(float64(sampleRate)/d.MinFrequency)))
	}
	return minLag, maxLag
}

func isFlat(frame []float64) bool {
	lo, hi := frame[0], frame[0]
	for _, v := range frame[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return hi-lo < flatEpsilon
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
