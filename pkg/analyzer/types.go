package analyzer

import (
	"context"
	"time"
)

// Params are the silence-detection parameters handed to a [Decoder].
type Params struct {
	// NoiseFloorDB is the amplitude (dBFS) below which a sample counts as
	// silent. Typically negative, e.g. -30.
	NoiseFloorDB float64

	// MinSilence is the shortest run of silent samples reported as a
	// silence interval.
	MinSilence time.Duration
}

// Interval is one detected silence span.
type Interval struct {
	Start time.Duration
	End   time.Duration

	// Open is set when the stream ended inside the silence and its total
	// duration is unknown, so End could not be determined.
	Open bool
}

// Duration returns End-Start, or zero for open or inverted intervals.
func (i Interval) Duration() time.Duration {
	if i.Open || i.End < i.Start {
		return 0
	}
	return i.End - i.Start
}

// EventKind discriminates silence detector events.
type EventKind int

const (
	// EventDuration reports the total stream duration from container metadata.
	EventDuration EventKind = iota + 1
	// EventSilenceStart marks the beginning of a silence run.
	EventSilenceStart
	// EventSilenceEnd marks the end of a silence run.
	EventSilenceEnd
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDuration:
		return "duration"
	case EventSilenceStart:
		return "silence_start"
	case EventSilenceEnd:
		return "silence_end"
	}
	return "unknown"
}

// Event is a single typed observation emitted by a silence detector.
type Event struct {
	Kind EventKind

	// At is the stream position of a start/end event, or the total duration
	// for EventDuration.
	At time.Duration

	// Length is the silence length reported alongside an EventSilenceEnd.
	// Zero means "derive from the matching start".
	Length time.Duration
}

// Detection is the reduced output of a decoder run.
type Detection struct {
	Duration      time.Duration
	DurationKnown bool
	Silences      []Interval
}

// SilenceTotal sums the durations of all closed silence intervals.
func (d *Detection) SilenceTotal() time.Duration {
	var total time.Duration
	for _, s := range d.Silences {
		total += s.Duration()
	}
	return total
}

// Decoder decodes an audio buffer of any supported container/codec and runs
// silence detection on it. Implementations must be safe for concurrent use.
type Decoder interface {
	Detect(ctx context.Context, audio []byte, p Params) (*Detection, error)
}

// Checker is optionally implemented by decoders that depend on external
// resources (e.g. a binary on PATH) and can verify them up front.
type Checker interface {
	Check(ctx context.Context) error
}
