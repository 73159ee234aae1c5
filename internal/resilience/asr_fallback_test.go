package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/cadence/pkg/provider/asr"
	asrmock "github.com/MrWong99/cadence/pkg/provider/asr/mock"
	"github.com/MrWong99/cadence/pkg/types"
)

func TestASRFallback_Transcribe(t *testing.T) {
	t.Parallel()

	primary := &asrmock.Provider{Err: errTest}
	secondary := &asrmock.Provider{Transcript: &types.Transcript{Text: "hello"}}

	f := NewASRFallback(primary, "whisper", FallbackConfig{})
	f.AddFallback("deepgram", secondary)

	tr, err := f.Transcribe(context.Background(), []byte{1, 2}, "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello" {
		t.Errorf("Text = %q", tr.Text)
	}
	if got := secondary.Calls[0].ContentType; got != "audio/wav" {
		t.Errorf("content type = %q", got)
	}
}

func TestASRFallback_EmptyAudioIsPermanent(t *testing.T) {
	t.Parallel()

	primary := &asrmock.Provider{Err: asr.ErrEmptyAudio}
	secondary := &asrmock.Provider{Transcript: &types.Transcript{Text: "never"}}

	f := NewASRFallback(primary, "whisper", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
	f.AddFallback("deepgram", secondary)

	for range 2 {
		if _, err := f.Transcribe(context.Background(), nil, "audio/wav"); !errors.Is(err, asr.ErrEmptyAudio) {
			t.Fatalf("err = %v, want ErrEmptyAudio", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Errorf("fallback called %d times, want 0", secondary.CallCount())
	}
	if got := f.States()["whisper"]; got != StateClosed {
		t.Errorf("primary state = %v, want closed", got)
	}
}
