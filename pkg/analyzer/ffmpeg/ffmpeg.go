// Package ffmpeg provides an analyzer.Decoder that shells out to the ffmpeg
// binary and runs its silencedetect audio filter.
//
// The recording is written to a temporary file so ffmpeg can seek (MP4/M4A
// recordings often keep their index after the media data), decoded with
// whatever demuxer/codec ffmpeg autodetects, filtered, and discarded
// (-f null). The filter's log on stderr is parsed by [Scan] into typed
// analyzer events.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

const defaultBinary = "ffmpeg"

// Compile-time assertions.
var (
	_ analyzer.Decoder = (*Decoder)(nil)
	_ analyzer.Checker = (*Decoder)(nil)
)

// Decoder runs ffmpeg's silencedetect filter. Safe for concurrent use; each
// Detect call spawns its own process.
type Decoder struct {
	binary  string
	tempDir string
}

// Option is a functional option for [New].
type Option func(*Decoder)

// WithBinary sets the ffmpeg executable name or path.
func WithBinary(path string) Option {
	return func(d *Decoder) {
		if path != "" {
			d.binary = path
		}
	}
}

// WithTempDir sets the directory recordings are spooled to. Empty uses
// [os.TempDir].
func WithTempDir(dir string) Option {
	return func(d *Decoder) { d.tempDir = dir }
}

// New creates an ffmpeg-backed decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{binary: defaultBinary}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Check verifies that the ffmpeg binary can be resolved.
func (d *Decoder) Check(context.Context) error {
	if _, err := exec.LookPath(d.binary); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// Args returns the ffmpeg command line (without the binary) that analyzes
// the file at input.
func Args(input string, p analyzer.Params) []string {
	filter := "silencedetect=noise=" + strconv.FormatFloat(p.NoiseFloorDB, 'f', -1, 64) +
		"dB:d=" + strconv.FormatFloat(p.MinSilence.Seconds(), 'f', -1, 64)
	return []string{
		"-hide_banner", "-nostats", "-nostdin",
		"-i", input,
		"-vn",
		"-af", filter,
		"-f", "null", "-",
	}
}

// Detect runs ffmpeg over audio and reduces the silencedetect log.
func (d *Decoder) Detect(ctx context.Context, audio []byte, p analyzer.Params) (*analyzer.Detection, error) {
	input, err := d.spool(audio)
	if err != nil {
		return nil, err
	}
	defer os.Remove(input)

	cmd := exec.CommandContext(ctx, d.binary, Args(input, p)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg: %w", ctx.Err())
	}
	if runErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", runErr, lastLine(stderr.String()))
	}

	events, err := Scan(&stderr)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: parse log: %w", err)
	}
	if len(events) == 0 && !strings.Contains(stderr.String(), "Stream #") {
		return nil, errors.New("ffmpeg: no audio stream detected")
	}
	return analyzer.Reduce(events), nil
}

// spool writes audio to a fresh temporary file and returns its path.
func (d *Decoder) spool(audio []byte) (string, error) {
	f, err := os.CreateTemp(d.tempDir, "transvox-*.audio")
	if err != nil {
		return "", fmt.Errorf("ffmpeg: spool recording: %w", err)
	}
	_, werr := f.Write(audio)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("ffmpeg: spool recording: %w", err)
	}
	return f.Name(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
