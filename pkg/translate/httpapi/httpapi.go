// Package httpapi provides a translate.Provider that forwards recordings to
// an external speech-translation HTTP service.
//
// The service contract is a multipart/form-data POST with fields "file",
// "srcLang" and "tgtLang", answered by a JSON object with "transcribed_text"
// and "translated_text". Missing fields decode as empty strings. Non-2xx
// responses become *translate.ServiceError carrying the upstream "message",
// "error" or "detail" field when the body is JSON, or the raw body otherwise.
//
// Usage:
//
//	p, err := httpapi.New("http://translator:8000/translate",
//	    httpapi.WithTimeout(60*time.Second),
//	)
//	res, err := p.Translate(ctx, translate.Request{...})
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/transvox/pkg/translate"
)

const (
	defaultTimeout  = 60 * time.Second
	maxErrorSnippet = 2048
)

// Compile-time assertion that Provider implements translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// Provider posts recordings to a remote translation endpoint.
type Provider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option is a functional option for [New].
type Option func(*Provider)

// WithTimeout sets the hard per-request timeout. The default is 60 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithAPIKey sends the key as a Bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithHTTPClient replaces the HTTP client. Its Timeout is kept as-is.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// New creates a Provider for endpoint, the full URL of the translate route.
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("httpapi: endpoint must not be empty")
	}
	p := &Provider{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("httpapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		msg := "translation service unreachable"
		var te interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &te) && te.Timeout()) {
			msg = "translation service timed out"
		}
		return nil, &translate.ServiceError{Detail: msg, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &translate.ServiceError{StatusCode: resp.StatusCode, Detail: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, detail := upstreamMessage(data)
		return nil, &translate.ServiceError{StatusCode: resp.StatusCode, Message: msg, Detail: detail}
	}

	var res translate.Result
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, &translate.ServiceError{StatusCode: resp.StatusCode, Detail: "malformed response", Err: err}
		}
	}
	return &res, nil
}

func encodeForm(req translate.Request) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.FilenameOrDefault()))
	ct := req.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("httpapi: create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("httpapi: write audio: %w", err)
	}
	if err := mw.WriteField("srcLang", req.SourceLang); err != nil {
		return nil, "", fmt.Errorf("httpapi: write srcLang: %w", err)
	}
	if err := mw.WriteField("tgtLang", req.TargetLang); err != nil {
		return nil, "", fmt.Errorf("httpapi: write tgtLang: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("httpapi: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// upstreamMessage splits a failed response into the message the service
// reported in its JSON body and, failing that, a trimmed body snippet that
// is only fit for logs.
func upstreamMessage(data []byte) (msg, detail string) {
	var obj map[string]any
	if json.Unmarshal(data, &obj) == nil {
		for _, k := range []string{"message", "error", "detail"} {
			if s, ok := obj[k].(string); ok && s != "" {
				return s, ""
			}
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet]
	}
	return "", s
}
