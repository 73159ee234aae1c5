package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/prosody"
	"github.com/MrWong99/cadence/pkg/prosody/extractor"
)

// ErrTooManyStreams is returned by [Service.OpenStream] when the configured
// stream cap is reached.
var ErrTooManyStreams = errors.New("analysis: too many live streams")

// StreamInfo describes an open live-extraction stream.
type StreamInfo struct {
	ID        uuid.UUID    `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	Format    audio.Format `json:"-"`
	Remote    string       `json:"remote,omitempty"`
	Frames    int          `json:"frames"`
	AudioS    float64      `json:"audio_s"`
}

// Stream feeds live PCM chunks through one extractor session. Write and
// Close must be called from a single goroutine; Info may be called from any.
type Stream struct {
	svc  *Service
	conv audio.MonoConverter
	fr   *audio.Framer
	ext  *extractor.Extractor

	mu     sync.Mutex
	info   StreamInfo
	closed bool
}

type streamTable struct {
	mu   sync.Mutex
	open map[uuid.UUID]*Stream
}

func (t *streamTable) init() { t.open = make(map[uuid.UUID]*Stream) }

// OpenStream starts a live extraction session for PCM chunks in format.
// The frame size is scaled from the configured one so every frame spans the
// same duration at any sample rate.
func (s *Service) OpenStream(ctx context.Context, format audio.Format, remote string) (*Stream, error) {
	if format.SampleRate < 8000 || format.SampleRate > 192000 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, format.SampleRate)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidAudio, format.Channels)
	}

	settings := s.Settings()
	frameSize := settings.Extractor.FrameSize
	if settings.Extractor.SampleRate > 0 {
		frameSize = frameSize * format.SampleRate / settings.Extractor.SampleRate
	}

	st := &Stream{
		svc: s,
		fr:  audio.NewFramer(frameSize, format.SampleRate),
		ext: extractor.New(append(settings.Extractor.Options(), extractor.WithClock(s.now))...),
		info: StreamInfo{
			ID:     uuid.New(),
			Format: format,
			Remote: remote,
		},
	}

	s.streams.mu.Lock()
	if limit := settings.Analysis.MaxStreams; limit > 0 && len(s.streams.open) >= limit {
		s.streams.mu.Unlock()
		return nil, ErrTooManyStreams
	}
	s.streams.open[st.info.ID] = st
	s.streams.mu.Unlock()

	st.ext.Start()
	st.info.StartedAt = st.ext.StartedAt()
	s.metrics.ActiveStreams.Add(ctx, 1)
	observe.Logger(ctx).Info("live stream opened",
		"stream_id", st.info.ID,
		"format", format,
		"frame_size", frameSize,
	)
	return st, nil
}

// Streams lists the open streams ordered by start time.
func (s *Service) Streams() []StreamInfo {
	s.streams.mu.Lock()
	out := make([]StreamInfo, 0, len(s.streams.open))
	for _, st := range s.streams.open {
		out = append(out, st.Info())
	}
	s.streams.mu.Unlock()
	slices.SortFunc(out, func(a, b StreamInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Info returns a snapshot of the stream metadata.
func (st *Stream) Info() StreamInfo {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.info
}

// Write pushes one chunk of interleaved int16 LE PCM and returns the number
// of frames it completed. Writes after Close are ignored.
func (st *Stream) Write(chunk []byte) int {
	st.mu.Lock()
	closed := st.closed
	format := st.info.Format
	st.mu.Unlock()
	if closed {
		return 0
	}

	samples := st.conv.Convert(audio.AudioFrame{
		Data:       chunk,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	})
	frames := st.fr.Push(samples)
	var d time.Duration
	for _, f := range frames {
		st.ext.OnFrame(f)
		d += f.Duration()
	}

	st.mu.Lock()
	st.info.Frames += len(frames)
	st.info.AudioS += d.Seconds()
	st.mu.Unlock()
	return len(frames)
}

// Close finalises the session and returns its summary. Samples that do not
// fill a whole frame are dropped. A second Close returns nil.
func (st *Stream) Close(ctx context.Context) *prosody.Summary {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	id := st.info.ID
	st.mu.Unlock()

	summary := st.ext.Stop()

	svc := st.svc
	svc.streams.mu.Lock()
	delete(svc.streams.open, id)
	svc.streams.mu.Unlock()
	svc.metrics.ActiveStreams.Add(ctx, -1)

	info := st.Info()
	observe.Logger(ctx).Info("live stream closed",
		append([]any{
			"stream_id", id,
			"frames", info.Frames,
			"audio_s", info.AudioS,
			"dropped_samples", st.fr.Pending(),
			"dropped_bytes", st.conv.Pending(),
		}, logAttrs(summary)...)...)
	return summary
}
