// Package translate defines the Provider interface for speech translation
// backends.
//
// A Provider accepts a complete audio recording together with the spoken
// (source) and desired (target) language codes and returns both the
// transcription in the source language and its translation. Providers are
// black boxes: whether they run a single speech-translation model or chain
// transcription and text translation is an implementation detail.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"fmt"
)

// Request is one translation job.
type Request struct {
	// Audio is the encoded recording in whatever container the client sent.
	Audio []byte

	// Filename is forwarded to backends that key codec detection on the
	// extension. Defaults to "audio" when empty.
	Filename string

	// MIMEType is the client-declared content type, possibly empty.
	MIMEType string

	// SourceLang is the language spoken in the recording (e.g. "en").
	SourceLang string

	// TargetLang is the language to translate into (e.g. "vi").
	TargetLang string
}

// Result is the output of a successful translation. Empty strings are valid
// (the service heard nothing intelligible).
type Result struct {
	TranscribedText string `json:"transcribed_text"`
	TranslatedText  string `json:"translated_text"`
}

// Provider is the abstraction over any speech-translation backend.
type Provider interface {
	// Translate transcribes and translates req. Errors from the remote
	// service should be returned as *ServiceError so callers can surface
	// the upstream message.
	Translate(ctx context.Context, req Request) (*Result, error)
}

// ServiceError is a failure reported by (or while talking to) the remote
// translation service.
type ServiceError struct {
	// StatusCode is the upstream HTTP status, or 0 for transport errors and
	// timeouts.
	StatusCode int

	// Message is the error the service itself reported in its JSON body
	// (message, error or detail). It is the only part safe to show to end
	// users.
	Message string

	// Detail is diagnostic context for logs: a local description of the
	// failure or a snippet of a non-JSON body.
	Detail string

	// Err is the underlying transport error, if any.
	Err error
}

func (e *ServiceError) Error() string {
	msg := "translate: service error"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("translate: service returned %d", e.StatusCode)
	}
	for _, part := range []string{e.Message, e.Detail} {
		if part != "" {
			msg += ": " + part
		}
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// FilenameOrDefault returns req.Filename, or "audio" when it is empty.
func (r Request) FilenameOrDefault() string {
	if r.Filename == "" {
		return "audio"
	}
	return r.Filename
}
