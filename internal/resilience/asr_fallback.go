package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/types"
)

// ASRFallback implements [asr.Provider] with failover across backends.
// [asr.ErrEmptyAudio] is treated as permanent.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
}

var _ asr.Provider = (*ASRFallback)(nil)

// NewASRFallback creates an ASRFallback with primary as the preferred
// backend.
func NewASRFallback(primary asr.Provider, primaryName string, cfg FallbackConfig) *ASRFallback {
	cfg.CircuitBreaker.IsPermanent = permanent(cfg.CircuitBreaker.IsPermanent, asr.ErrEmptyAudio)
	return &ASRFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *ASRFallback) AddFallback(name string, p asr.Provider) {
	f.group.AddFallback(name, p)
}

// States reports per-backend breaker states.
func (f *ASRFallback) States() map[string]State { return f.group.States() }

// Transcribe implements asr.Provider.
func (f *ASRFallback) Transcribe(ctx context.Context, audio []byte, contentType string) (*types.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p asr.Provider) (*types.Transcript, error) {
		return p.Transcribe(ctx, audio, contentType)
	})
}

// permanent extends base so that any of sentinels also counts as permanent.
func permanent(base func(error) bool, sentinels ...error) func(error) bool {
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return true
			}
		}
		return base != nil && base(err)
	}
}
