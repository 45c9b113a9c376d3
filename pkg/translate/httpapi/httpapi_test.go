package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/transvox/pkg/translate"
	"github.com/MrWong99/transvox/pkg/translate/httpapi"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := httpapi.New(""); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestTranslate_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("srcLang"); got != "en" {
			t.Errorf("srcLang = %q, want en", got)
		}
		if got := r.FormValue("tgtLang"); got != "vi" {
			t.Errorf("tgtLang = %q, want vi", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "AUDIO" {
			t.Errorf("file = %q, want AUDIO", data)
		}
		if hdr.Filename != "clip.webm" {
			t.Errorf("filename = %q, want clip.webm", hdr.Filename)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/webm" {
			t.Errorf("part content type = %q, want audio/webm", ct)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transcribed_text": "hello",
			"translated_text":  "xin chào",
		})
	}))
	defer srv.Close()

	p, err := httpapi.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Translate(context.Background(), translate.Request{
		Audio:      []byte("AUDIO"),
		Filename:   "clip.webm",
		MIMEType:   "audio/webm",
		SourceLang: "en",
		TargetLang: "vi",
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.TranscribedText != "hello" || res.TranslatedText != "xin chào" {
		t.Errorf("result = %+v", res)
	}
}

func TestTranslate_MissingFieldsDefaultEmpty(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transcribed_text":"only this"}`))
	}))
	defer srv.Close()

	p, _ := httpapi.New(srv.URL)
	res, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a"), SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.TranscribedText != "only this" || res.TranslatedText != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestTranslate_UpstreamError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantDetail string
	}{
		{name: "json message", status: http.StatusBadGateway, body: `{"message":"model overloaded"}`, wantMsg: "model overloaded"},
		{name: "json error", status: http.StatusBadRequest, body: `{"error":"srcLang not supported"}`, wantMsg: "srcLang not supported"},
		{name: "json detail", status: http.StatusUnprocessableEntity, body: `{"detail":"unsupported language"}`, wantMsg: "unsupported language"},
		{name: "plain text", status: http.StatusInternalServerError, body: "boom\n", wantDetail: "boom"},
		{
			name:       "html error page",
			status:     http.StatusBadGateway,
			body:       "<html><body><h1>502 Bad Gateway</h1></body></html>",
			wantDetail: "<html><body><h1>502 Bad Gateway</h1></body></html>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := httpapi.New(srv.URL)
			_, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a")})
			var se *translate.ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v (%T), want *translate.ServiceError", err, err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.status)
			}
			if se.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", se.Message, tt.wantMsg)
			}
			if se.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", se.Detail, tt.wantDetail)
			}
		})
	}
}

func TestTranslate_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, _ := httpapi.New(srv.URL, httpapi.WithTimeout(50*time.Millisecond))
	_, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a")})
	var se *translate.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *translate.ServiceError", err)
	}
	if se.Message != "" {
		t.Errorf("Message = %q, want empty for a local failure", se.Message)
	}
	if !strings.Contains(se.Detail, "timed out") {
		t.Errorf("Detail = %q, want a timeout description", se.Detail)
	}
}

func TestTranslate_MalformedResponseIsDetailOnly(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"translated_text":`))
	}))
	defer srv.Close()

	p, _ := httpapi.New(srv.URL)
	_, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a")})
	var se *translate.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *translate.ServiceError", err)
	}
	if se.Message != "" || se.Detail != "malformed response" {
		t.Errorf("ServiceError = %+v, want only Detail set", se)
	}
	if !strings.Contains(err.Error(), "malformed response") {
		t.Errorf("Error() = %q, want the detail for logs", err.Error())
	}
}

func TestTranslate_BearerToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", got)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p, _ := httpapi.New(srv.URL, httpapi.WithAPIKey("secret"))
	if _, err := p.Translate(context.Background(), translate.Request{Audio: []byte("a")}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
}
