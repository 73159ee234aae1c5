// Package deepgram provides an ASR provider backed by the Deepgram streaming
// WebSocket API.
//
// Transcribe opens one connection per recording, writes the audio in chunks,
// sends CloseStream and collects every final Results message until Deepgram
// reports the Metadata summary and closes the socket. Each final result
// becomes one segment; its words keep their timings and confidences.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/types"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkSize is 250 ms of 16 kHz int16 mono audio.
	chunkSize = 8000
)

var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the rate declared for raw PCM uploads.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements asr.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (*types.Transcript, error) {
	if len(audio) == 0 {
		return nil, asr.ErrEmptyAudio
	}

	wsURL, err := p.buildURL(contentType)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	var c collector
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeAudio(gctx, conn, audio) })
	g.Go(func() error { return c.read(gctx, conn) })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "done")
	return c.transcript(), nil
}

// buildURL constructs the streaming endpoint URL. Raw PCM needs an explicit
// encoding and rate; containers are detected by Deepgram.
func (p *Provider) buildURL(contentType string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	if asr.IsRawPCM(contentType) {
		q.Set("encoding", "linear16")
		q.Set("sample_rate", strconv.Itoa(p.sampleRate))
		q.Set("channels", "1")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func writeAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	for off := 0; off < len(audio); off += chunkSize {
		end := min(off+chunkSize, len(audio))
		if err := conn.Write(ctx, websocket.MessageBinary, audio[off:end]); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("write CloseStream: %w", err)
	}
	return nil
}

// ---- response handling -------------------------------------------------------

type message struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Start    float64 `json:"start"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				PunctuatedWord string  `json:"punctuated_word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type collector struct {
	segments []types.Segment
	words    []types.Word
	duration time.Duration
	lastEnd  time.Duration
}

// read consumes server messages until Metadata arrives or the server closes
// the socket normally.
func (c *collector) read(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		switch m.Type {
		case "Results":
			c.add(m)
		case "Metadata":
			c.duration = types.Seconds(m.Duration)
			return nil
		}
	}
}

func (c *collector) add(m message) {
	if !m.IsFinal || len(m.Channel.Alternatives) == 0 {
		return
	}
	alt := m.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return
	}
	c.segments = append(c.segments, types.Segment{Text: text, Confidence: alt.Confidence})
	c.lastEnd = max(c.lastEnd, types.Seconds(m.Start+m.Duration))

	for _, w := range alt.Words {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		c.words = append(c.words, types.Word{
			Text:       word,
			Start:      types.Seconds(w.Start),
			End:        types.Seconds(w.End),
			Confidence: w.Confidence,
		})
		c.lastEnd = max(c.lastEnd, types.Seconds(w.End))
	}
}

func (c *collector) transcript() *types.Transcript {
	texts := make([]string, len(c.segments))
	for i, s := range c.segments {
		texts[i] = s.Text
	}
	d := c.duration
	if d == 0 {
		d = c.lastEnd
	}
	return &types.Transcript{
		Text:     strings.Join(texts, " "),
		Duration: d,
		Words:    c.words,
		Segments: c.segments,
	}
}
