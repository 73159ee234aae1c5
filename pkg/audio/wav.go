package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep/wav"
)

// ErrUnsupportedFormat is returned when an upload cannot be decoded as WAV.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

const bitsPerSample = 16

// Clip is a decoded mono recording.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// PCM16 renders the clip as int16 LE mono PCM resampled to rate. A
// non-positive rate keeps the clip's own rate.
func (c Clip) PCM16(rate int) []byte {
	pcm := FloatToPCM16(c.Samples)
	if rate <= 0 {
		return pcm
	}
	return ResampleMono16(pcm, c.SampleRate, rate)
}

// WAV renders the clip as a mono 16-bit WAV file at rate.
func (c Clip) WAV(rate int) []byte {
	if rate <= 0 {
		rate = c.SampleRate
	}
	return EncodeWAV(c.PCM16(rate), rate, 1)
}

// DecodeWAV reads a WAV stream and downmixes it to a mono [Clip].
func DecodeWAV(r io.Reader) (*Clip, error) {
	s, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer s.Close()

	clip := &Clip{SampleRate: int(format.SampleRate)}
	if n := s.Len(); n > 0 {
		clip.Samples = make([]float64, 0, n)
	}

	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			clip.Samples = append(clip.Samples, (frame[0]+frame[1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	return clip, nil
}

// EncodeWAV wraps int16 LE PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	size := len(pcm)

	buf := make([]byte, 44+size)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+size))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(size))
	copy(buf[44:], pcm)
	return buf
}
