package pipeline

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/MrWong99/transvox/internal/resilience"
	"github.com/MrWong99/transvox/pkg/translate"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindUnknown is reported by [KindOf] for errors that did not come from
	// the pipeline.
	KindUnknown Kind = iota
	KindValidation
	KindStagingUpload
	KindStagingDownload
	KindAnalysis
	KindTranslation
	KindCleanup
)

// String returns the snake_case kind name used as a metric attribute.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStagingUpload:
		return "staging_upload"
	case KindStagingDownload:
		return "staging_download"
	case KindAnalysis:
		return "analysis"
	case KindTranslation:
		return "translation"
	case KindCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// genericMessage is shown to callers for internal failures that carry no
// upstream detail worth surfacing.
const genericMessage = "Error processing audio"

// Error is a classified pipeline failure. It unwraps to the cause.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error

	// Stack is the goroutine stack at the point of failure. Empty for
	// validation errors.
	Stack string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// PublicMessage returns the message safe to show to API callers. Stage
// identity never appears in it.
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindValidation:
		return e.Err.Error()
	case KindTranslation:
		var se *translate.ServiceError
		if errors.As(e.Err, &se) && se.Message != "" {
			return se.Message
		}
		if errors.Is(e.Err, resilience.ErrCircuitOpen) {
			return "Translation service unavailable"
		}
		return "Translation service error"
	default:
		return genericMessage
	}
}

// NewValidationError builds a [KindValidation] error whose message is shown
// to the caller verbatim.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Stage: StageValidating, Err: errors.New(msg)}
}

func newError(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err, Stack: string(debug.Stack())}
}

// KindOf returns the [Kind] of the first *Error in err's chain, or
// [KindUnknown].
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// PublicMessage returns the caller-safe message for any error, falling back
// to a generic text for errors outside the pipeline.
func PublicMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.PublicMessage()
	}
	return genericMessage
}

// StackOf returns the captured stack of a pipeline error, or the current
// stack for foreign errors.
func StackOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stack
	}
	return string(debug.Stack())
}
