// Package cascade provides a translate.Provider that chains a speech
// transcriber with a text translator.
//
// The stock pairing is a local whisper.cpp server for transcription
// ([NewWhisperServer]) and any chat model reachable through any-llm-go for
// translation ([NewAnyLLM]), but both halves are interfaces so either can be
// swapped.
//
// Usage:
//
//	stt, _ := cascade.NewWhisperServer("http://localhost:8081")
//	mt, _ := cascade.NewAnyLLM("ollama", "llama3.1")
//	p, _ := cascade.New(stt, mt)
package cascade

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/transvox/pkg/translate"
)

// Transcriber turns a recording into text in the spoken language.
type Transcriber interface {
	Transcribe(ctx context.Context, req translate.Request) (string, error)
}

// TextTranslator translates text between languages.
type TextTranslator interface {
	TranslateText(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Compile-time assertion that Provider implements translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// Provider runs Transcriber then TextTranslator.
type Provider struct {
	stt Transcriber
	mt  TextTranslator
}

// New creates a cascaded provider. Both halves are required.
func New(stt Transcriber, mt TextTranslator) (*Provider, error) {
	if stt == nil || mt == nil {
		return nil, errors.New("cascade: transcriber and translator are required")
	}
	return &Provider{stt: stt, mt: mt}, nil
}

// Translate implements translate.Provider. Failures from either half are
// reported as *translate.ServiceError.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	text, err := p.stt.Transcribe(ctx, req)
	if err != nil {
		return nil, asServiceError("transcription failed", err)
	}
	text = strings.TrimSpace(text)
	res := &translate.Result{TranscribedText: text}
	if text == "" {
		return res, nil
	}
	if req.SourceLang != "" && req.SourceLang == req.TargetLang {
		res.TranslatedText = text
		return res, nil
	}

	out, err := p.mt.TranslateText(ctx, text, req.SourceLang, req.TargetLang)
	if err != nil {
		return nil, asServiceError("translation failed", err)
	}
	res.TranslatedText = translate.CleanTranslation(out)
	return res, nil
}

func asServiceError(msg string, err error) error {
	var se *translate.ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &translate.ServiceError{Detail: msg, Err: err}
}
