package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the code generation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	DatabaseURL   string
	CodeOutputDir string

	ProviderMode       string
	ProviderHTTPURL    string
	ProviderHTTPStrict bool
	OllamaHost         string
	OllamaModel        string

	GenerateRateLimit  int
	GenerateRateWindow time.Duration
	StreamBuffer       int
	PromptMaxChars     int
}

var providerModes = map[string]bool{
	"auto":   true,
	"mock":   true,
	"http":   true,
	"ollama": true,
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "codeforge"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		CodeOutputDir:    envOrDefault("CODE_OUTPUT_DIR", "tmp/code_output"),
		ProviderMode:     strings.ToLower(envOrDefault("PROVIDER_MODE", "auto")),
		ProviderHTTPURL:  trimmedEnv("PROVIDER_HTTP_URL"),
		OllamaHost:       envOrDefault("OLLAMA_HOST", "http://127.0.0.1:11434"),
		// Small coder model that runs on a laptop.
		OllamaModel:        envOrDefault("OLLAMA_MODEL", "qwen2.5-coder:7b"),
		ShutdownTimeout:    15 * time.Second,
		GenerateRateLimit:  7,
		GenerateRateWindow: 60 * time.Second,
		StreamBuffer:       64,
		PromptMaxChars:     8000,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderHTTPStrict, err = boolFromEnv("PROVIDER_HTTP_STRICT", cfg.ProviderHTTPStrict)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateRateLimit, err = intFromEnv("GENERATE_RATE_LIMIT", cfg.GenerateRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateRateWindow, err = durationFromEnv("GENERATE_RATE_WINDOW", cfg.GenerateRateWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamBuffer, err = intFromEnv("STREAM_BUFFER", cfg.StreamBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.PromptMaxChars, err = intFromEnv("PROMPT_MAX_CHARS", cfg.PromptMaxChars)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !providerModes[c.ProviderMode] {
		return fmt.Errorf("PROVIDER_MODE %q is not one of auto, mock, http, ollama", c.ProviderMode)
	}
	if c.ProviderMode == "http" && c.ProviderHTTPURL == "" {
		return fmt.Errorf("PROVIDER_HTTP_URL is required when PROVIDER_MODE=http")
	}
	if c.ProviderHTTPURL != "" {
		if _, err := url.ParseRequestURI(c.ProviderHTTPURL); err != nil {
			return fmt.Errorf("PROVIDER_HTTP_URL parse error: %w", err)
		}
	}
	if _, err := url.ParseRequestURI(c.OllamaHost); err != nil {
		return fmt.Errorf("OLLAMA_HOST parse error: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.GenerateRateLimit <= 0 {
		return fmt.Errorf("GENERATE_RATE_LIMIT must be positive")
	}
	if c.GenerateRateWindow < time.Second {
		return fmt.Errorf("GENERATE_RATE_WINDOW must be at least 1s")
	}
	if c.StreamBuffer < 0 {
		return fmt.Errorf("STREAM_BUFFER must be >= 0")
	}
	if c.PromptMaxChars <= 0 {
		return fmt.Errorf("PROMPT_MAX_CHARS must be positive")
	}
	if strings.TrimSpace(c.CodeOutputDir) == "" {
		return fmt.Errorf("CODE_OUTPUT_DIR must not be blank")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := trimmedEnv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
