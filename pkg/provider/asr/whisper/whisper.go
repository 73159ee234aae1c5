// Package whisper provides an ASR provider backed by a whisper.cpp server.
//
// Each recording is POSTed to the server's /inference endpoint as a
// multipart upload with response_format=verbose_json, which returns
// segments with an average log-probability and per-word timings. Raw PCM
// uploads are wrapped in a WAV header first; other containers are forwarded
// as-is and decoded by the server.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	tr, err := p.Transcribe(ctx, wav, "audio/wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/types"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultTimeout    = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. When empty
// the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the rate assumed for raw PCM uploads. Defaults to
// 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements asr.Provider against a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	httpClient *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, data []byte, contentType string) (*types.Transcript, error) {
	if len(data) == 0 {
		return nil, asr.ErrEmptyAudio
	}

	filename := "audio.wav"
	switch {
	case asr.IsRawPCM(contentType):
		data = audio.EncodeWAV(data, p.sampleRate, 1)
	case asr.IsWAV(contentType):
	default:
		filename = "audio" + extension(contentType)
	}

	body, formType, err := p.buildForm(data, filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", formType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vr verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return vr.transcript(), nil
}

func (p *Provider) buildForm(data []byte, filename string) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio: %w", err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"temperature", "0.0"},
		{"language", p.language},
		{"model", p.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

func extension(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return ".mp3"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
		return ".m4a"
	default:
		return ".bin"
	}
}

// ---- verbose_json -----------------------------------------------------------

type verboseResponse struct {
	Text     string           `json:"text"`
	Duration float64          `json:"duration"`
	Segments []verboseSegment `json:"segments"`
}

type verboseSegment struct {
	Text       string        `json:"text"`
	Start      float64       `json:"start"`
	End        float64       `json:"end"`
	AvgLogprob *float64      `json:"avg_logprob"`
	Words      []verboseWord `json:"words"`
}

type verboseWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// transcript maps the server response. Segment confidence is
// exp(avg_logprob); a missing duration falls back to the last segment end.
func (vr verboseResponse) transcript() *types.Transcript {
	tr := &types.Transcript{
		Text:     strings.TrimSpace(vr.Text),
		Duration: types.Seconds(vr.Duration),
	}

	var lastEnd float64
	segTexts := make([]string, 0, len(vr.Segments))
	for _, s := range vr.Segments {
		text := strings.TrimSpace(s.Text)
		seg := types.Segment{Text: text}
		if s.AvgLogprob != nil {
			seg.Confidence = clamp01(math.Exp(*s.AvgLogprob))
		}
		tr.Segments = append(tr.Segments, seg)
		segTexts = append(segTexts, text)
		lastEnd = max(lastEnd, s.End)

		for _, w := range s.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" || isSpecialToken(word) {
				continue
			}
			tr.Words = append(tr.Words, types.Word{
				Text:       word,
				Start:      types.Seconds(w.Start),
				End:        types.Seconds(w.End),
				Confidence: clamp01(w.Probability),
			})
		}
	}

	if tr.Text == "" {
		tr.Text = strings.Join(segTexts, " ")
	}
	if tr.Duration == 0 {
		tr.Duration = types.Seconds(lastEnd)
	}
	return tr
}

// isSpecialToken matches whisper control tokens such as "[_BEG_]" or
// "<|endoftext|>".
func isSpecialToken(w string) bool {
	return strings.HasPrefix(w, "[_") || strings.HasPrefix(w, "<|")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
