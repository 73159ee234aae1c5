package audio

// DefaultFrameSize is the analysis frame length used when none is configured.
const DefaultFrameSize = 2048

// Framer regroups an arbitrary stream of samples into fixed-size frames.
// Leftover samples are held until the next Push. Not safe for concurrent use.
type Framer struct {
	size       int
	sampleRate int
	pending    []float64
}

// NewFramer returns a Framer emitting frames of size samples. A non-positive
// size selects [DefaultFrameSize].
func NewFramer(size, sampleRate int) *Framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Framer{size: size, sampleRate: sampleRate}
}

// Push appends samples and returns every frame completed by them. The
// returned frames own their sample slices.
func (f *Framer) Push(samples []float64) []Frame {
	f.pending = append(f.pending, samples...)
	var out []Frame
	for len(f.pending) >= f.size {
		frame := make([]float64, f.size)
		copy(frame, f.pending[:f.size])
		out = append(out, Frame{Samples: frame, SampleRate: f.sampleRate})
		f.pending = f.pending[f.size:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return out
}

// Pending returns the number of buffered samples not yet part of a frame.
func (f *Framer) Pending() int { return len(f.pending) }

// Split cuts samples into consecutive frames of size samples, dropping a
// trailing partial frame. The frames alias samples.
func Split(samples []float64, sampleRate, size int) []Frame {
	if size <= 0 {
		size = DefaultFrameSize
	}
	out := make([]Frame, 0, len(samples)/size)
	for start := 0; start+size <= len(samples); start += size {
		out = append(out, Frame{Samples: samples[start : start+size], SampleRate: sampleRate})
	}
	return out
}
