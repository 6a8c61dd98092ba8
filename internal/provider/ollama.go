package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/antoniostano/codeforge/internal/generation"
)

const ollamaProviderName = "ollama"

// OllamaProvider streams chat completions from an Ollama server.
type OllamaProvider struct {
	client *api.Client
	model  string
}

func NewOllamaProvider(host, model string, httpClient *http.Client) (*OllamaProvider, error) {
	base, err := url.Parse(strings.TrimSpace(host))
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama host %q must include scheme and host", host)
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("ollama model is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaProvider{
		client: api.NewClient(base, httpClient),
		model:  strings.TrimSpace(model),
	}, nil
}

func (p *OllamaProvider) Name() string { return ollamaProviderName }

// Ping checks that the server answers.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Version(ctx); err != nil {
		return p.wrapError(err)
	}
	return nil
}

func (p *OllamaProvider) Stream(ctx context.Context, req generation.Request, emit func(generation.Unit) error) error {
	stream := true
	chatReq := &api.ChatRequest{
		Model: p.model,
		Messages: []api.Message{
			{Role: "system", Content: SystemPrompt(req.Kind)},
			{Role: "user", Content: req.Prompt},
		},
		Stream: &stream,
	}

	var (
		emitErr error
		calls   int
	)
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			if err := emit(generation.TextUnit(resp.Message.Content)); err != nil {
				emitErr = err
				return err
			}
		}
		for _, call := range resp.Message.ToolCalls {
			calls++
			args, err := json.Marshal(call.Function.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			unit := generation.Unit{
				Type:       generation.UnitToolRequest,
				ToolCallID: fmt.Sprintf("%s-%d", req.GenerationID, calls),
				ToolName:   call.Function.Name,
				Arguments:  string(args),
			}
			if err := emit(unit); err != nil {
				emitErr = err
				return err
			}
		}
		if resp.Done {
			if err := emit(generation.Unit{Type: generation.UnitFinal}); err != nil {
				emitErr = err
				return err
			}
		}
		return nil
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.wrapError(err)
	}
	return nil
}

func (p *OllamaProvider) wrapError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		detail := statusErr.ErrorMessage
		if detail == "" {
			detail = statusErr.Status
		}
		return statusError(ollamaProviderName, statusErr.StatusCode, detail)
	}
	return transportError(ollamaProviderName, err)
}
