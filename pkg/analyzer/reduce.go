package analyzer

import "time"

// Reduce folds a detector event stream into a [Detection].
//
// When a silence_end carries a length, the interval start is derived from it
// (ffmpeg rounds silence_start and silence_duration independently, the
// duration is the more precise of the two). A silence_end without a matching
// start and without a length starts at zero. A silence_start that is never
// closed is closed at the stream duration when known and left open
// otherwise; an open interval still counts as a detected silence.
func Reduce(events []Event) *Detection {
	d := &Detection{}
	var (
		open  bool
		start time.Duration
	)
	for _, ev := range events {
		switch ev.Kind {
		case EventDuration:
			if ev.At > 0 {
				d.Duration = ev.At
				d.DurationKnown = true
			}
		case EventSilenceStart:
			open = true
			start = ev.At
		case EventSilenceEnd:
			iv := Interval{End: ev.At}
			switch {
			case ev.Length > 0:
				iv.Start = max(ev.At-ev.Length, 0)
			case open:
				iv.Start = start
			}
			d.Silences = append(d.Silences, iv)
			open = false
		}
	}
	if open {
		iv := Interval{Start: start}
		if d.DurationKnown && d.Duration >= start {
			iv.End = d.Duration
		} else {
			iv.Open = true
		}
		d.Silences = append(d.Silences, iv)
	}
	return d
}
