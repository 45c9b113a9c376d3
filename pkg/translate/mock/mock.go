// Package mock provides a test double for translate.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/transvox/pkg/translate"
)

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Translate when Err is nil. A nil Result yields
	// an empty, non-nil result.
	Result *translate.Result

	// Err, if non-nil, is returned by Translate.
	Err error

	// Block, if non-nil, makes Translate wait until it is closed or ctx ends.
	Block chan struct{}

	// Calls records every request passed to Translate.
	Calls []translate.Request
}

// Translate records the call and returns Result, Err.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	p.mu.Lock()
	req.Audio = append([]byte(nil), req.Audio...)
	p.Calls = append(p.Calls, req)
	res, err, block := p.Result, p.Err, p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &translate.ServiceError{Detail: "translation service timed out", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &translate.Result{}, nil
	}
	out := *res
	return &out, nil
}

// CallCount returns the number of Translate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)
