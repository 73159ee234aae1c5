package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a label such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// MonoConverter turns incoming PCM chunks into mono float samples at the
// chunk's own sample rate. Bytes that do not complete a sample frame are held
// back and prefixed to the next chunk, so chunk boundaries may fall anywhere.
// Create one per stream.
type MonoConverter struct {
	pending      []byte
	warnedStereo sync.Once
}

// Convert returns the mono float samples completed by frame.
func (c *MonoConverter) Convert(frame AudioFrame) []float64 {
	align := 2
	if frame.Channels == 2 {
		align = 4
		c.warnedStereo.Do(func() {
			slog.Debug("audio converter: downmixing stereo input",
				"format", Format{frame.SampleRate, frame.Channels})
		})
	}

	pcm := frame.Data
	if len(c.pending) > 0 {
		pcm = append(c.pending, frame.Data...)
		c.pending = nil
	}
	if rem := len(pcm) % align; rem != 0 {
		c.pending = append([]byte(nil), pcm[len(pcm)-rem:]...)
		pcm = pcm[:len(pcm)-rem]
	}

	if align == 4 {
		pcm = StereoToMono(pcm)
	}
	return PCM16ToFloat(pcm)
}

// Pending returns the number of buffered bytes waiting for the next chunk.
func (c *MonoConverter) Pending() int { return len(c.pending) }

// PCM16ToFloat converts int16 LE PCM to samples in [-1, 1].
func PCM16ToFloat(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float64(s) / 32768
	}
	return out
}

// FloatToPCM16 converts samples in [-1, 1] to int16 LE PCM, clamping values
// outside the range.
func FloatToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		v = math.Max(-1, math.Min(1, v))
		s := int16(math.Round(v * 32767))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// StereoToMono averages L+R per interleaved frame (4 bytes) of int16 LE PCM.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples int16 LE mono PCM from srcRate to dstRate using
// linear interpolation. The input is returned unchanged when the rates match
// or are invalid.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0*(1-frac)+s1*frac)))
	}
	return out
}
