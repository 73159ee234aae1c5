package signal

import "math"

// RMS returns the root-mean-square amplitude of frame. It returns 0 for an
// empty frame.
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
