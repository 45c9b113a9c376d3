package cascade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/transvox/pkg/translate"
)

// Compile-time assertion that WhisperServer implements Transcriber.
var _ Transcriber = (*WhisperServer)(nil)

// WhisperServer transcribes through a running whisper.cpp server binary
// (POST /inference). The server must be started with --convert so it accepts
// compressed containers as well as WAV.
type WhisperServer struct {
	serverURL  string
	httpClient *http.Client
}

// WhisperOption is a functional option for [NewWhisperServer].
type WhisperOption func(*WhisperServer)

// WithWhisperTimeout sets the per-request HTTP timeout. Default 60 s.
func WithWhisperTimeout(d time.Duration) WhisperOption {
	return func(w *WhisperServer) {
		if d > 0 {
			w.httpClient.Timeout = d
		}
	}
}

// NewWhisperServer creates a transcriber for the server at serverURL
// (e.g. "http://localhost:8081").
func NewWhisperServer(serverURL string, opts ...WhisperOption) (*WhisperServer, error) {
	if serverURL == "" {
		return nil, errors.New("cascade: whisper serverURL must not be empty")
	}
	w := &WhisperServer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Transcribe posts the recording to /inference as multipart/form-data.
func (w *WhisperServer) Transcribe(ctx context.Context, req translate.Request) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", req.FilenameOrDefault())
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return "", fmt.Errorf("whisper: write audio: %w", err)
	}
	if req.SourceLang != "" {
		if err := mw.WriteField("language", req.SourceLang); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return "", &translate.ServiceError{Detail: "whisper server unreachable", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, detail := whisperError(data)
		return "", &translate.ServiceError{StatusCode: resp.StatusCode, Message: msg, Detail: detail}
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", &translate.ServiceError{StatusCode: resp.StatusCode, Message: result.Error}
	}
	return result.Text, nil
}

// whisperError returns the server's JSON error, or the raw body as log
// detail when there is none.
func whisperError(data []byte) (msg, detail string) {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error, ""
	}
	return "", strings.TrimSpace(string(data))
}
