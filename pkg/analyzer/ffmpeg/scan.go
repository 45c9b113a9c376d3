package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

// Scan parses an ffmpeg stderr log into analyzer events. It recognises the
// input "Duration:" header (N/A yields no event) and silencedetect's
// silence_start / silence_end lines. Unrelated lines are ignored.
func Scan(r io.Reader) ([]analyzer.Event, error) {
	var events []analyzer.Event
	sawDuration := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()

		if !sawDuration {
			if v, ok := field(line, "Duration:"); ok {
				sawDuration = true
				if d, ok := parseClock(v); ok {
					events = append(events, analyzer.Event{Kind: analyzer.EventDuration, At: d})
				}
				continue
			}
		}

		if !strings.Contains(line, "silencedetect") {
			continue
		}
		if v, ok := field(line, "silence_start:"); ok {
			if d, ok := parseSeconds(v); ok {
				events = append(events, analyzer.Event{Kind: analyzer.EventSilenceStart, At: d})
			}
			continue
		}
		if v, ok := field(line, "silence_end:"); ok {
			end, ok := parseSeconds(v)
			if !ok {
				continue
			}
			ev := analyzer.Event{Kind: analyzer.EventSilenceEnd, At: end}
			if l, ok := field(line, "silence_duration:"); ok {
				if d, ok := parseSeconds(l); ok {
					ev.Length = d
				}
			}
			events = append(events, ev)
		}
	}
	return events, sc.Err()
}

// field returns the token following key on line, trimmed of the separators
// ffmpeg uses ("," and "|").
func field(line, key string) (string, bool) {
	i := strings.Index(line, key)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[i+len(key):])
	if j := strings.IndexAny(rest, ", |"); j >= 0 {
		rest = rest[:j]
	}
	return rest, rest != ""
}

// parseSeconds parses a decimal seconds value such as "1.23456" or "-0.01".
// Negative values (ffmpeg reports pre-roll silence slightly below zero) are
// clamped to zero.
func parseSeconds(s string) (time.Duration, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	return time.Duration(f * float64(time.Second)), true
}

// parseClock parses ffmpeg's HH:MM:SS.ss duration. "N/A" is not a duration.
func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second))
	return d, d > 0
}
