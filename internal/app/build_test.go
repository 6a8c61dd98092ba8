package app

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/antoniostano/codeforge/internal/config"
	"github.com/antoniostano/codeforge/internal/logging"
)

func TestBuildWithLocalDefaults(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:   "test_app_" + strconv.FormatInt(time.Now().UnixNano(), 10),
		CodeOutputDir:      t.TempDir(),
		ProviderMode:       "mock",
		GenerateRateLimit:  7,
		GenerateRateWindow: time.Minute,
		StreamBuffer:       8,
		PromptMaxChars:     8000,
	}
	built, err := Build(t.Context(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if built.ProviderMode != "mock" {
		t.Fatalf("ProviderMode = %q, want mock", built.ProviderMode)
	}
	if built.HistoryMode != "in-memory" {
		t.Fatalf("HistoryMode = %q, want in-memory", built.HistoryMode)
	}

	ts := httptest.NewServer(built.API.Router())
	defer ts.Close()
	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", res.StatusCode)
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace: "test_app_bad_" + strconv.FormatInt(time.Now().UnixNano(), 10),
		CodeOutputDir:    t.TempDir(),
		ProviderMode:     "telepathy",
	}
	if _, err := Build(t.Context(), cfg, nil); err == nil {
		t.Fatalf("Build() error = nil, want provider error")
	}
}
