package native

import (
	"math"
	"time"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

// detectSilence emits the same event sequence ffmpeg's silencedetect would
// for p: a duration event, then start/end pairs for every run of silent
// frames lasting at least p.MinSilence. A run still open at the end of the
// stream yields a trailing start event only.
func detectSilence(p *pcm, params analyzer.Params) []analyzer.Event {
	events := []analyzer.Event{{Kind: analyzer.EventDuration, At: p.length()}}
	if p.sampleRate == 0 || p.channels == 0 {
		return events
	}

	threshold := float32(math.Pow(10, params.NoiseFloorDB/20))
	minFrames := int(params.MinSilence.Seconds() * float64(p.sampleRate))
	if minFrames < 1 {
		minFrames = 1
	}

	at := func(frame int) time.Duration {
		return time.Duration(int64(frame) * int64(time.Second) / int64(p.sampleRate))
	}

	runStart := -1
	n := p.frames()
	for f := 0; f < n; f++ {
		silent := true
		base := f * p.channels
		for c := 0; c < p.channels; c++ {
			s := p.samples[base+c]
			if s < 0 {
				s = -s
			}
			if s >= threshold {
				silent = false
				break
			}
		}

		switch {
		case silent && runStart < 0:
			runStart = f
		case !silent && runStart >= 0:
			if f-runStart >= minFrames {
				events = append(events,
					analyzer.Event{Kind: analyzer.EventSilenceStart, At: at(runStart)},
					analyzer.Event{Kind: analyzer.EventSilenceEnd, At: at(f), Length: at(f - runStart)},
				)
			}
			runStart = -1
		}
	}
	if runStart >= 0 && n-runStart >= minFrames {
		events = append(events, analyzer.Event{Kind: analyzer.EventSilenceStart, At: at(runStart)})
	}
	return events
}
