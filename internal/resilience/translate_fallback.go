package resilience

import (
	"context"

	"github.com/MrWong99/transvox/pkg/translate"
)

// TranslateFallback implements [translate.Provider] with automatic failover
// across multiple translation backends. Each backend has its own circuit
// breaker.
type TranslateFallback struct {
	group *FallbackGroup[translate.Provider]
}

// Compile-time interface assertion.
var _ translate.Provider = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Provider, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional translation backend.
func (f *TranslateFallback) AddFallback(name string, p translate.Provider) {
	f.group.AddFallback(name, p)
}

// Breakers exposes the per-backend breakers for readiness reporting.
func (f *TranslateFallback) Breakers() []*CircuitBreaker {
	return f.group.Breakers()
}

// Translate sends req to the first healthy backend. When every backend fails,
// the returned error still unwraps to the last backend's
// *translate.ServiceError so its upstream message can be surfaced.
func (f *TranslateFallback) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	return ExecuteWithResult(f.group, func(p translate.Provider) (*translate.Result, error) {
		return p.Translate(ctx, req)
	})
}
