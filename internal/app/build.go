package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/antoniostano/codeforge/internal/artifact"
	"github.com/antoniostano/codeforge/internal/chathistory"
	"github.com/antoniostano/codeforge/internal/config"
	"github.com/antoniostano/codeforge/internal/generation"
	"github.com/antoniostano/codeforge/internal/httpapi"
	"github.com/antoniostano/codeforge/internal/logging"
	"github.com/antoniostano/codeforge/internal/observability"
	"github.com/antoniostano/codeforge/internal/provider"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Coordinator  *generation.Coordinator
	Metrics      *observability.Metrics
	ProviderMode string
	HistoryMode  string

	// Cleanup releases external resources (DB pool). Call after the
	// coordinator has drained.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*BuildResult, error) {
	if log == nil {
		log = logging.Discard()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	history, historyMode, err := chathistory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("chat history store init failed: %w", err)
	}

	gen, providerMode, err := provider.NewProvider(ctx, provider.Config{
		Mode:        cfg.ProviderMode,
		HTTPURL:     cfg.ProviderHTTPURL,
		HTTPStrict:  cfg.ProviderHTTPStrict,
		OllamaHost:  cfg.OllamaHost,
		OllamaModel: cfg.OllamaModel,
	}, log.WithField("component", "provider"))
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("provider init failed: %w", err)
	}

	builder := artifact.NewFileBuilder(cfg.CodeOutputDir, log.WithField("component", "artifact"))

	coord := generation.NewCoordinator(generation.Config{
		StreamBuffer: cfg.StreamBuffer,
	}, gen, history, builder, metrics, log.WithField("component", "coordinator"))

	api := httpapi.New(cfg, httpapi.Deps{
		Coordinator:  coord,
		History:      history,
		Metrics:      metrics,
		Logger:       log.WithField("component", "httpapi"),
		ProviderMode: providerMode,
		HistoryMode:  historyMode,
	})

	log.WithFields(logrus.Fields{
		"provider_mode": providerMode,
		"history_mode":  historyMode,
		"output_dir":    cfg.CodeOutputDir,
	}).Info("generation service assembled")

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Coordinator:  coord,
		Metrics:      metrics,
		ProviderMode: providerMode,
		HistoryMode:  historyMode,
		Cleanup:      history.Close,
	}, nil
}
