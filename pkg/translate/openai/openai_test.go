package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/transvox/pkg/translate"
	"github.com/MrWong99/transvox/pkg/translate/openai"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func newServer(t *testing.T, transcript string, chatCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
			}
			if got := r.FormValue("language"); got != "en" {
				t.Errorf("language = %q, want en", got)
			}
			if got := r.FormValue("model"); got != "whisper-1" {
				t.Errorf("model = %q, want whisper-1", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"text": transcript})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			chatCalls.Add(1)
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "from en to de") {
				t.Errorf("chat request missing language pair: %s", body)
			}
			_ = json.NewEncoder(w).Encode(chatResponse(`"Hallo Welt"`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestTranslate_TranscribeThenTranslate(t *testing.T) {
	t.Parallel()
	var chatCalls atomic.Int32
	srv := newServer(t, "Hello world", &chatCalls)
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Translate(context.Background(), translate.Request{
		Audio: []byte("audio"), Filename: "clip.webm", MIMEType: "audio/webm",
		SourceLang: "en", TargetLang: "de",
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.TranscribedText != "Hello world" {
		t.Errorf("TranscribedText = %q", res.TranscribedText)
	}
	if res.TranslatedText != "Hallo Welt" {
		t.Errorf("TranslatedText = %q, want quotes stripped", res.TranslatedText)
	}
	if chatCalls.Load() != 1 {
		t.Errorf("chat calls = %d, want 1", chatCalls.Load())
	}
}

func TestTranslate_EmptyTranscriptSkipsChat(t *testing.T) {
	t.Parallel()
	var chatCalls atomic.Int32
	srv := newServer(t, "  ", &chatCalls)
	defer srv.Close()

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	res, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a"), SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.TranscribedText != "" || res.TranslatedText != "" {
		t.Errorf("result = %+v, want empty", res)
	}
	if chatCalls.Load() != 0 {
		t.Errorf("chat calls = %d, want 0", chatCalls.Load())
	}
}

func TestTranslate_APIErrorMessage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid language 'xx'","type":"invalid_request_error","param":"language","code":null}}`))
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	_, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a"), SourceLang: "xx", TargetLang: "de"})
	var se *translate.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *translate.ServiceError", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", se.StatusCode)
	}
	if !strings.Contains(se.Message, "Invalid language") {
		t.Errorf("Message = %q, want upstream message", se.Message)
	}
}
