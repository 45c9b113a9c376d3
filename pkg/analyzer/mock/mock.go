// Package mock provides a test double for analyzer.Decoder.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

// Decoder is a mock implementation of analyzer.Decoder.
type Decoder struct {
	mu sync.Mutex

	// Detection is returned by Detect when DetectErr is nil.
	Detection *analyzer.Detection

	// DetectErr, if non-nil, is returned by Detect.
	DetectErr error

	// Panic, if non-empty, makes Detect panic with this value.
	Panic string

	// Block, if non-nil, makes Detect wait until it is closed or ctx ends.
	Block chan struct{}

	// CheckErr is returned by Check.
	CheckErr error

	// Calls records the audio and params of every Detect call.
	Calls []DetectCall
}

// DetectCall records one invocation of Decoder.Detect.
type DetectCall struct {
	Audio  []byte
	Params analyzer.Params
}

// Detect records the call and returns Detection, DetectErr.
func (d *Decoder) Detect(ctx context.Context, audio []byte, p analyzer.Params) (*analyzer.Detection, error) {
	d.mu.Lock()
	d.Calls = append(d.Calls, DetectCall{Audio: append([]byte(nil), audio...), Params: p})
	block := d.Block
	det, err, p2 := d.Detection, d.DetectErr, d.Panic
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p2 != "" {
		panic(p2)
	}
	if err != nil {
		return nil, err
	}
	return det, nil
}

// Check returns CheckErr.
func (d *Decoder) Check(context.Context) error {
	return d.CheckErr
}

// CallCount returns the number of Detect calls. Thread-safe.
func (d *Decoder) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

var (
	_ analyzer.Decoder = (*Decoder)(nil)
	_ analyzer.Checker = (*Decoder)(nil)
)
