package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antoniostano/codeforge/internal/generation"
	"github.com/antoniostano/codeforge/internal/logging"
)

// Config controls provider construction.
type Config struct {
	Mode           string
	HTTPURL        string
	HTTPStrict     bool
	OllamaHost     string
	OllamaModel    string
	RequestTimeout time.Duration
}

// NewProvider returns the provider for cfg.Mode and the mode actually in
// use. In auto mode an explicit HTTP endpoint wins, then a reachable
// Ollama server, then the mock.
func NewProvider(ctx context.Context, cfg Config, log logrus.FieldLogger) (generation.Provider, string, error) {
	if log == nil {
		log = logging.Discard()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoProvider(ctx, cfg, log)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, "", errors.New("provider HTTP url is required for http mode")
		}
		return NewHTTPProvider(cfg.HTTPURL, cfg.HTTPStrict, httpClient(cfg)), "http", nil
	case "ollama":
		p, err := NewOllamaProvider(cfg.OllamaHost, cfg.OllamaModel, httpClient(cfg))
		if err != nil {
			return nil, "", err
		}
		return p, "ollama", nil
	case "mock":
		return NewMockProvider(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported provider mode %q", cfg.Mode)
	}
}

func newAutoProvider(ctx context.Context, cfg Config, log logrus.FieldLogger) (generation.Provider, string, error) {
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPProvider(cfg.HTTPURL, cfg.HTTPStrict, httpClient(cfg)), "http", nil
	}
	if strings.TrimSpace(cfg.OllamaHost) != "" {
		p, err := NewOllamaProvider(cfg.OllamaHost, cfg.OllamaModel, httpClient(cfg))
		if err == nil {
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err = p.Ping(probeCtx); err == nil {
				return p, "ollama", nil
			}
		}
		log.WithError(err).WithField("ollama_host", cfg.OllamaHost).Warn("ollama unavailable, using mock provider")
	}
	return NewMockProvider(), "mock", nil
}

// No overall client timeout: generations stream for as long as the model
// talks. RequestTimeout only bounds waiting for response headers.
func httpClient(cfg Config) *http.Client {
	headerTimeout := cfg.RequestTimeout
	if headerTimeout <= 0 {
		headerTimeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}
