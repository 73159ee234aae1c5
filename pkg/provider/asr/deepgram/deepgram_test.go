package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cadence/pkg/provider/asr"
)

const (
	finalResult = `{"type":"Results","is_final":true,"start":0.0,"duration":1.2,"channel":{"alternatives":[{
		"transcript":"I walked home.","confidence":0.91,
		"words":[
			{"word":"i","punctuated_word":"I","start":0.1,"end":0.3,"confidence":0.99},
			{"word":"walked","punctuated_word":"walked","start":0.3,"end":0.8,"confidence":0.62},
			{"word":"home","punctuated_word":"home.","start":0.8,"end":1.1,"confidence":0.95}]}]}}`
	interimResult = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"I walk","confidence":0.5,"words":[]}]}}`
	secondFinal   = `{"type":"Results","is_final":true,"start":1.2,"duration":0.9,"channel":{"alternatives":[{"transcript":"Nice.","confidence":0.8,"words":[{"word":"nice","start":1.3,"end":1.7,"confidence":0.8}]}]}}`
	metadata      = `{"type":"Metadata","duration":2.25,"channels":1}`
)

type fakeServer struct {
	mu        sync.Mutex
	query     url.Values
	auth      string
	audio     int
	chunks    int
	replies   []string
	closeWith websocket.StatusCode
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.query = r.URL.Query()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				if !strings.Contains(string(data), "CloseStream") {
					t.Errorf("unexpected text message %q", data)
				}
				break
			}
			f.mu.Lock()
			f.audio += len(data)
			f.chunks++
			f.mu.Unlock()
		}

		for _, msg := range f.replies {
			if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
		_ = c.Close(f.closeWith, "")
	}
}

func start(t *testing.T, f *fakeServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/listen"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTranscribe_CollectsFinals(t *testing.T) {
	t.Parallel()

	f := &fakeServer{
		replies:   []string{interimResult, finalResult, "not json", secondFinal, metadata},
		closeWith: websocket.StatusNormalClosure,
	}
	p := start(t, f)

	audio := make([]byte, 20_000)
	tr, err := p.Transcribe(context.Background(), audio, "audio/pcm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	f.mu.Lock()
	if f.audio != len(audio) || f.chunks != 3 {
		t.Errorf("server got %d bytes in %d chunks, want %d in 3", f.audio, f.chunks, len(audio))
	}
	if f.auth != "Token test-key" {
		t.Errorf("Authorization = %q", f.auth)
	}
	if f.query.Get("encoding") != "linear16" || f.query.Get("sample_rate") != "16000" || f.query.Get("model") != "nova-3" {
		t.Errorf("query = %v", f.query)
	}
	f.mu.Unlock()

	if tr.Text != "I walked home. Nice." {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Duration != 2250*time.Millisecond {
		t.Errorf("Duration = %v, want metadata duration 2.25s", tr.Duration)
	}
	if len(tr.Segments) != 2 || tr.Segments[0].Confidence != 0.91 {
		t.Errorf("Segments = %+v", tr.Segments)
	}
	if len(tr.Words) != 4 {
		t.Fatalf("len(Words) = %d, want 4", len(tr.Words))
	}
	if w := tr.Words[2]; w.Text != "home." || w.End != 1100*time.Millisecond {
		t.Errorf("Words[2] = %+v, want punctuated word with timing", w)
	}
	if w := tr.Words[3]; w.Text != "nice" {
		t.Errorf("Words[3] = %+v, want raw word without punctuated form", w)
	}
}

func TestTranscribe_NormalCloseWithoutMetadata(t *testing.T) {
	t.Parallel()

	f := &fakeServer{replies: []string{finalResult}, closeWith: websocket.StatusNormalClosure}
	p := start(t, f)

	tr, err := p.Transcribe(context.Background(), []byte{0, 0, 1, 0}, "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Duration != 1200*time.Millisecond {
		t.Errorf("Duration = %v, want end of last result", tr.Duration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.query.Has("encoding") {
		t.Errorf("container upload declared an encoding: %v", f.query)
	}
}

func TestTranscribe_AbnormalClose(t *testing.T) {
	t.Parallel()

	f := &fakeServer{closeWith: websocket.StatusInternalError}
	p := start(t, f)

	if _, err := p.Transcribe(context.Background(), []byte{1, 2}, "audio/pcm"); err == nil {
		t.Fatal("expected error for abnormal close")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.Transcribe(context.Background(), nil, "audio/pcm"); !errors.Is(err, asr.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		contentType string
		encoding    string
		rate        string
	}{
		{"audio/pcm", "linear16", "48000"},
		{"audio/L16;rate=48000", "linear16", "48000"},
		{"audio/wav", "", ""},
		{"audio/ogg", "", ""},
	}
	for _, tt := range tests {
		raw, err := p.buildURL(tt.contentType)
		if err != nil {
			t.Fatalf("buildURL(%q): %v", tt.contentType, err)
		}
		u, _ := url.Parse(raw)
		q := u.Query()
		if q.Get("model") != "base" || q.Get("language") != "de-DE" || q.Get("punctuate") != "true" {
			t.Errorf("%s: query = %v", tt.contentType, q)
		}
		if q.Get("encoding") != tt.encoding || q.Get("sample_rate") != tt.rate {
			t.Errorf("%s: encoding=%q rate=%q, want %q/%q", tt.contentType, q.Get("encoding"), q.Get("sample_rate"), tt.encoding, tt.rate)
		}
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
