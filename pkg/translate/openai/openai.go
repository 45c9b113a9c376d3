// Package openai provides a translate.Provider backed by the OpenAI API.
//
// The recording is first transcribed with the audio transcription endpoint
// (Whisper) in the declared source language, then the text is translated
// with a chat completion. An empty transcription short-circuits the second
// call.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/transvox/pkg/translate"
)

const (
	defaultTranscribeModel = "whisper-1"
	defaultChatModel       = "gpt-4o-mini"
)

// Compile-time assertion that Provider implements translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// Provider implements translate.Provider using the OpenAI API.
type Provider struct {
	client          oai.Client
	transcribeModel string
	chatModel       string
}

type config struct {
	baseURL         string
	timeout         time.Duration
	maxRetries      int
	transcribeModel string
	chatModel       string
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets the SDK's retry count for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithTranscribeModel selects the audio transcription model.
func WithTranscribeModel(m string) Option {
	return func(c *config) {
		if m != "" {
			c.transcribeModel = m
		}
	}
}

// WithChatModel selects the chat model used for translation.
func WithChatModel(m string) Option {
	return func(c *config) {
		if m != "" {
			c.chatModel = m
		}
	}
}

// New constructs an OpenAI translation provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{
		maxRetries:      -1,
		transcribeModel: defaultTranscribeModel,
		chatModel:       defaultChatModel,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:          oai.NewClient(reqOpts...),
		transcribeModel: cfg.transcribeModel,
		chatModel:       cfg.chatModel,
	}, nil
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	mime := req.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(req.Audio), req.FilenameOrDefault(), mime),
		Model: oai.AudioModel(p.transcribeModel),
	}
	if req.SourceLang != "" {
		params.Language = oai.String(req.SourceLang)
	}

	tr, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, serviceError("transcription", err)
	}

	text := strings.TrimSpace(tr.Text)
	res := &translate.Result{TranscribedText: text}
	if text == "" {
		return res, nil
	}
	if req.TargetLang == req.SourceLang {
		res.TranslatedText = text
		return res, nil
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.chatModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(translate.SystemPrompt(req.SourceLang, req.TargetLang)),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		return nil, serviceError("translation", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &translate.ServiceError{Detail: "openai: empty choices in response"}
	}
	res.TranslatedText = translate.CleanTranslation(resp.Choices[0].Message.Content)
	return res, nil
}

// serviceError maps SDK errors onto translate.ServiceError, keeping the
// API's own message when the failure came from the server.
func serviceError(stage string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &translate.ServiceError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Detail:     fmt.Sprintf("openai %s failed", stage),
			Err:        err,
		}
	}
	return &translate.ServiceError{Detail: fmt.Sprintf("openai %s failed", stage), Err: err}
}
