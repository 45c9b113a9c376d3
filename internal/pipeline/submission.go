package pipeline

import (
	"strings"

	"github.com/MrWong99/transvox/pkg/analyzer"
	"github.com/MrWong99/transvox/pkg/translate"
)

// Validation messages returned to callers.
const (
	MsgNoFile          = "No audio file provided"
	MsgLanguagesNeeded = "Source and target languages are required"
	MsgTooLarge        = "Audio file exceeds the maximum upload size"

	// MsgNoSpeech accompanies a successful run whose translation was
	// skipped.
	MsgNoSpeech = "No speech detected in the audio"
)

// Submission is one client upload.
type Submission struct {
	Audio      []byte
	Filename   string
	MIMEType   string
	SourceLang string
	TargetLang string
}

// Size returns the payload length in bytes.
func (s Submission) Size() int64 { return int64(len(s.Audio)) }

// Validate reports a [KindValidation] error when the audio is empty or a
// language code is blank.
func (s Submission) Validate() error {
	if len(s.Audio) == 0 {
		return NewValidationError(MsgNoFile)
	}
	if strings.TrimSpace(s.SourceLang) == "" || strings.TrimSpace(s.TargetLang) == "" {
		return NewValidationError(MsgLanguagesNeeded)
	}
	return nil
}

func (s Submission) normalized() Submission {
	s.SourceLang = strings.TrimSpace(s.SourceLang)
	s.TargetLang = strings.TrimSpace(s.TargetLang)
	return s
}

// Outcome is the result of a successful run. Skipped runs carry empty texts
// and [MsgNoSpeech].
type Outcome struct {
	translate.Result

	Message  string
	Skipped  bool
	Analysis analyzer.Result
}
