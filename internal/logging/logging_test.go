package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput("debug", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithOutput() error = %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("GetLevel() = %v, want debug", logger.GetLevel())
	}

	logger.WithField("app_id", 42).Info("generation registered")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "generation registered" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "generation registered")
	}
	if entry["app_id"] != float64(42) {
		t.Fatalf("app_id = %v, want 42", entry["app_id"])
	}
}

func TestNewWithOutputText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput("info", "text", &buf)
	if err != nil {
		t.Fatalf("NewWithOutput() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("New(loud) error = nil, want error")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("New(xml) error = nil, want error")
	}
}
