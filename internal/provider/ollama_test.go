package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/antoniostano/codeforge/internal/generation"
)

func newOllamaServer(t *testing.T, chat http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"version":"0.15.6"}`)
	})
	if chat != nil {
		mux.HandleFunc("/api/chat", chat)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaProviderStreamsChat(t *testing.T) {
	var gotModel string
	var gotMessages int
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string            `json:"model"`
			Messages []json.RawMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		gotMessages = len(req.Messages)

		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []string{
			`{"model":"m","message":{"role":"assistant","content":"<html>"},"done":false}`,
			`{"model":"m","message":{"role":"assistant","content":"</html>"},"done":false}`,
			`{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
		}
		for _, l := range lines {
			_, _ = io.WriteString(w, l+"\n")
		}
	})

	p, err := NewOllamaProvider(srv.URL, "qwen2.5-coder:7b", srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaProvider() error = %v", err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	var units []generation.Unit
	if err := p.Stream(context.Background(), generation.Request{Kind: generation.KindHTML, Prompt: "page"}, collectUnits(&units)); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if textOf(units) != "<html></html>" {
		t.Fatalf("text = %q", textOf(units))
	}
	if units[len(units)-1].Type != generation.UnitFinal {
		t.Fatalf("last unit = %s, want final", units[len(units)-1].Type)
	}
	if gotModel != "qwen2.5-coder:7b" || gotMessages != 2 {
		t.Fatalf("chat request model=%q messages=%d", gotModel, gotMessages)
	}
}

func TestOllamaProviderStatusError(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"model is loading"}`)
	})

	p, err := NewOllamaProvider(srv.URL, "m", srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaProvider() error = %v", err)
	}
	err = p.Stream(context.Background(), generation.Request{Kind: generation.KindHTML, Prompt: "x"}, collectUnits(new([]generation.Unit)))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Stream() error = %v, want *Error", err)
	}
	if perr.StatusCode != http.StatusServiceUnavailable || !perr.IsRetryable() {
		t.Fatalf("provider error = %+v, want retryable 503", perr)
	}
}

func TestNewOllamaProviderValidates(t *testing.T) {
	if _, err := NewOllamaProvider("localhost", "m", nil); err == nil {
		t.Fatalf("NewOllamaProvider(no scheme) error = nil")
	}
	if _, err := NewOllamaProvider("http://127.0.0.1:11434", " ", nil); err == nil {
		t.Fatalf("NewOllamaProvider(no model) error = nil")
	}
}
