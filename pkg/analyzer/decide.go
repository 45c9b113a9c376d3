package analyzer

import "time"

// Reason names the decision-policy branch that produced a [Result].
type Reason string

const (
	// ReasonMeasured: duration known, speech percentage compared against
	// the threshold.
	ReasonMeasured Reason = "measured"

	// ReasonDurationUnknownWithSilence: no duration metadata, but silence
	// was detected. Assume speech.
	ReasonDurationUnknownWithSilence Reason = "duration_unknown_with_silence"

	// ReasonDurationUnknown: no duration metadata and no silence. Assume
	// speech.
	ReasonDurationUnknown Reason = "duration_unknown"

	// ReasonAnalysisFailed: the decoder or filter failed. Assume silence.
	ReasonAnalysisFailed Reason = "analysis_failed"
)

// Result is the outcome of analysing one recording.
type Result struct {
	TotalDuration    time.Duration
	DurationKnown    bool
	SilenceDuration  time.Duration
	SilenceIntervals []Interval
	SpeechPercentage float64
	HasSpeech        bool
	Reason           Reason

	// Err is the recovered decode failure when Reason is ReasonAnalysisFailed.
	Err error
}

// Decide applies the speech decision policy to a detection. threshold is the
// minimum speech percentage (inclusive) for HasSpeech.
//
// The branches are evaluated in order:
//  1. duration unknown, at least one silence  -> speech (100%)
//  2. duration unknown, no silence            -> speech (100%)
//  3. otherwise speech% = 100*(total-silence)/total, speech iff >= threshold
func Decide(d *Detection, threshold float64) Result {
	silence := d.SilenceTotal()
	r := Result{
		TotalDuration:    d.Duration,
		DurationKnown:    d.DurationKnown && d.Duration > 0,
		SilenceDuration:  silence,
		SilenceIntervals: d.Silences,
	}

	if !r.DurationKnown {
		r.HasSpeech = true
		r.SpeechPercentage = 100
		if len(d.Silences) > 0 {
			r.Reason = ReasonDurationUnknownWithSilence
		} else {
			r.Reason = ReasonDurationUnknown
		}
		return r
	}

	// Trailing silence closed at the container duration can overshoot by a
	// frame; clamp so the percentage stays within [0, 100].
	silence = min(silence, d.Duration)
	r.SilenceDuration = silence
	speech := d.Duration - silence
	r.SpeechPercentage = 100 * speech.Seconds() / d.Duration.Seconds()
	r.HasSpeech = r.SpeechPercentage >= threshold
	r.Reason = ReasonMeasured
	return r
}

// failed builds the assume-silence result for a recovered analysis error.
func failed(err error) Result {
	return Result{
		HasSpeech:        false,
		SpeechPercentage: 0,
		Reason:           ReasonAnalysisFailed,
		Err:              err,
	}
}
