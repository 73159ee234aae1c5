// Package mock provides a hand-written test double for asr.Provider.
//
//	p := &mock.Provider{Transcript: &types.Transcript{Text: "hello"}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx         context.Context
	Audio       []byte
	ContentType string
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe. May be nil.
	Transcript *types.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// BlockUntilDone makes Transcribe wait for ctx cancellation and return
	// ctx.Err().
	BlockUntilDone bool

	Calls []TranscribeCall
}

// Transcribe records the call and returns a copy of Transcript, Err.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (*types.Transcript, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: audio, ContentType: contentType})
	block := p.BlockUntilDone
	tr, err := p.Transcript, p.Err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, nil
	}
	out := *tr
	return &out, nil
}

// CallCount returns the number of Transcribe invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ asr.Provider = (*Provider)(nil)
