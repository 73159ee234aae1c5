package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/cadence/pkg/provider/llm"
	llmmock "github.com/MrWong99/cadence/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errTest, ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8_192}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

	f := NewLLMFallback(primary, "openai", FallbackConfig{})
	f.AddFallback("ollama", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.Calls()), len(secondary.Calls()))
	}
	if f.Capabilities().ContextWindow != 8_192 {
		t.Errorf("Capabilities() = %+v, want primary's", f.Capabilities())
	}
	if _, ok := f.States()["ollama"]; !ok {
		t.Errorf("States() = %v, missing fallback", f.States())
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	f := NewLLMFallback(&llmmock.Provider{CompleteErr: errTest}, "a", FallbackConfig{})
	f.AddFallback("b", &llmmock.Provider{CompleteErr: errTest})

	if _, err := f.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
