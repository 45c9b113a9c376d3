// Package native provides a pure-Go analyzer.Decoder for deployments without
// an ffmpeg binary.
//
// Supported inputs are RIFF/WAVE (8/16/24/32-bit integer PCM and 32-bit
// float) and Ogg-encapsulated Opus (mono or stereo, decoded with gopus).
// Anything else fails with analyzer.ErrUnsupportedFormat, which the analyzer
// turns into an assume-silence result. Silence detection mirrors ffmpeg's
// silencedetect: a frame is silent when every channel is below the noise
// floor, and a silent run is reported once it reaches the minimum length.
package native

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

// Compile-time assertion that Decoder implements analyzer.Decoder.
var _ analyzer.Decoder = (*Decoder)(nil)

// Decoder decodes WAV and Ogg/Opus in-process. It holds no state and is safe
// for concurrent use.
type Decoder struct{}

// New returns a native decoder.
func New() *Decoder { return &Decoder{} }

// pcm is decoded, interleaved, normalised ([-1, 1]) audio.
type pcm struct {
	sampleRate int
	channels   int
	samples    []float32

	// duration overrides the sample-count derived duration when the
	// container carries a more precise value (Ogg granule position).
	duration time.Duration
}

func (p *pcm) frames() int {
	if p.channels == 0 {
		return 0
	}
	return len(p.samples) / p.channels
}

func (p *pcm) length() time.Duration {
	if p.duration > 0 {
		return p.duration
	}
	if p.sampleRate == 0 {
		return 0
	}
	return time.Duration(int64(p.frames()) * int64(time.Second) / int64(p.sampleRate))
}

// Detect decodes audio and runs silence detection over it.
func (d *Decoder) Detect(ctx context.Context, audio []byte, p analyzer.Params) (*analyzer.Detection, error) {
	var (
		decoded *pcm
		err     error
	)
	switch {
	case len(audio) >= 12 && bytes.Equal(audio[0:4], []byte("RIFF")) && bytes.Equal(audio[8:12], []byte("WAVE")):
		decoded, err = decodeWAV(audio)
	case len(audio) >= 4 && bytes.Equal(audio[0:4], []byte("OggS")):
		decoded, err = decodeOggOpus(ctx, audio)
	default:
		return nil, fmt.Errorf("native: %w", analyzer.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("native: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return analyzer.Reduce(detectSilence(decoded, p)), nil
}
