// Package audio converts between the byte-oriented PCM frames delivered by
// capture devices and transports, and the normalized float frames consumed by
// the prosody estimators.
package audio

import "time"

// AudioFrame is a chunk of 16-bit signed little-endian PCM as it arrives from
// a capture device or a streaming client.
type AudioFrame struct {
	// Data is interleaved int16 LE PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when the chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Frame is a fixed-size block of mono samples normalized to [-1, 1].
type Frame struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
