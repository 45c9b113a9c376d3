// Package analyzer decides whether a recording contains enough speech to be
// worth sending to a transcription service.
//
// The heavy lifting (container demux, codec decode, silence detection) is
// delegated to a pluggable [Decoder]; see the ffmpeg and native
// sub-packages. The Analyzer bounds how many decodes run at once, recovers
// any decoder failure (an unanalysable clip is treated as silence), and
// applies the decision policy in [Decide].
//
// Usage:
//
//	a := analyzer.New(ffmpeg.New(), analyzer.WithWorkers(4))
//	res := a.Analyze(ctx, processedAudio)
//	if !res.HasSpeech { ... }
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultNoiseFloorDB is the silence threshold in dBFS.
	DefaultNoiseFloorDB = -30.0

	// DefaultMinSilence is the shortest reported silence run.
	DefaultMinSilence = 500 * time.Millisecond

	// DefaultSpeechThreshold is the minimum speech percentage (inclusive).
	DefaultSpeechThreshold = 15.0
)

// ErrUnsupportedFormat is returned by decoders that cannot identify the
// container or codec of a buffer.
var ErrUnsupportedFormat = errors.New("analyzer: unsupported audio format")

// Settings are the tunable policy values. They can be swapped at runtime
// with [Analyzer.SetSettings].
type Settings struct {
	NoiseFloorDB           float64
	MinSilence             time.Duration
	SpeechThresholdPercent float64
}

// DefaultSettings returns the standard -30 dB / 0.5 s / 15 % policy.
func DefaultSettings() Settings {
	return Settings{
		NoiseFloorDB:           DefaultNoiseFloorDB,
		MinSilence:             DefaultMinSilence,
		SpeechThresholdPercent: DefaultSpeechThreshold,
	}
}

// Analyzer runs decoders on a bounded pool and applies the speech policy.
// Safe for concurrent use.
type Analyzer struct {
	decoder  Decoder
	sem      *semaphore.Weighted
	workers  int64
	settings atomic.Pointer[Settings]
	inFlight atomic.Int64
}

// Option is a functional option for [New].
type Option func(*Analyzer)

// WithWorkers bounds the number of concurrent decodes. Defaults to
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = int64(n)
		}
	}
}

// WithSettings sets the initial policy values.
func WithSettings(s Settings) Option {
	return func(a *Analyzer) {
		a.settings.Store(&s)
	}
}

// New creates an Analyzer around dec.
func New(dec Decoder, opts ...Option) *Analyzer {
	a := &Analyzer{
		decoder: dec,
		workers: int64(runtime.GOMAXPROCS(0)),
	}
	def := DefaultSettings()
	a.settings.Store(&def)
	for _, o := range opts {
		o(a)
	}
	a.sem = semaphore.NewWeighted(a.workers)
	return a
}

// Settings returns the current policy values.
func (a *Analyzer) Settings() Settings {
	return *a.settings.Load()
}

// SetSettings atomically replaces the policy values for subsequent runs.
func (a *Analyzer) SetSettings(s Settings) {
	a.settings.Store(&s)
}

// InFlight returns the number of decodes currently running.
func (a *Analyzer) InFlight() int64 {
	return a.inFlight.Load()
}

// Analyze decodes audio and decides whether it contains speech. It never
// returns an error: any decoder failure, panic or cancellation while waiting
// for a worker slot yields HasSpeech=false with Reason
// [ReasonAnalysisFailed] and the cause in Result.Err.
func (a *Analyzer) Analyze(ctx context.Context, audio []byte) Result {
	s := a.Settings()

	if len(audio) == 0 {
		return failed(errors.New("analyzer: empty audio buffer"))
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return failed(fmt.Errorf("analyzer: wait for worker: %w", err))
	}
	defer a.sem.Release(1)

	a.inFlight.Add(1)
	defer a.inFlight.Add(-1)

	det, err := a.detect(ctx, audio, Params{NoiseFloorDB: s.NoiseFloorDB, MinSilence: s.MinSilence})
	if err != nil {
		return failed(err)
	}
	return Decide(det, s.SpeechThresholdPercent)
}

func (a *Analyzer) detect(ctx context.Context, audio []byte, p Params) (det *Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			det, err = nil, fmt.Errorf("analyzer: decoder panic: %v", r)
		}
	}()
	det, err = a.decoder.Detect(ctx, audio, p)
	if err == nil && det == nil {
		err = errors.New("analyzer: decoder returned no detection")
	}
	return det, err
}

// Check verifies the decoder's external dependencies, if it has any.
func (a *Analyzer) Check(ctx context.Context) error {
	if c, ok := a.decoder.(Checker); ok {
		return c.Check(ctx)
	}
	return nil
}
