package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antoniostano/codeforge/internal/generation"
)

const httpProviderName = "http"

type httpRequest struct {
	GenerationID string `json:"generation_id"`
	AppID        int64  `json:"app_id"`
	UserID       int64  `json:"user_id"`
	Kind         string `json:"kind"`
	SystemPrompt string `json:"system_prompt"`
	Prompt       string `json:"prompt"`
}

// HTTPProvider posts the request to a model gateway and reads SSE, NDJSON
// or a single JSON document back.
type HTTPProvider struct {
	url    string
	strict bool
	client *http.Client
}

func NewHTTPProvider(url string, strict bool, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{
		url:    strings.TrimSpace(url),
		strict: strict,
		client: client,
	}
}

func (p *HTTPProvider) Name() string { return httpProviderName }

func (p *HTTPProvider) Stream(ctx context.Context, req generation.Request, emit func(generation.Unit) error) error {
	payload, err := json.Marshal(httpRequest{
		GenerationID: req.GenerationID,
		AppID:        req.AppID,
		UserID:       req.UserID,
		Kind:         string(req.Kind),
		SystemPrompt: SystemPrompt(req.Kind),
		Prompt:       req.Prompt,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson, application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transportError(httpProviderName, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return statusError(httpProviderName, res.StatusCode, strings.TrimSpace(string(body)))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		err = p.consumeSSE(res.Body, emit)
	case strings.Contains(ct, "application/x-ndjson"):
		err = p.consumeNDJSON(res.Body, emit)
	default:
		err = p.consumeDocument(res.Body, emit)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return emit(generation.Unit{Type: generation.UnitFinal})
}

func (p *HTTPProvider) consumeSSE(body io.Reader, emit func(generation.Unit) error) error {
	scanner := newLineScanner(body)
	var (
		event string
		data  []string
	)
	dispatch := func() (bool, error) {
		defer func() { event, data = "", nil }()
		if len(data) == 0 {
			return false, nil
		}
		payload := strings.Join(data, "\n")
		if strings.TrimSpace(payload) == "[DONE]" {
			return true, nil
		}
		if event == "error" {
			return false, &Error{Provider: httpProviderName, Detail: payload}
		}
		return false, p.emitPayload(payload, emit)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			done, err := dispatch()
			if err != nil || done {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return transportError(httpProviderName, fmt.Errorf("stream read: %w", err))
	}
	_, err := dispatch()
	return err
}

func (p *HTTPProvider) consumeNDJSON(body io.Reader, emit func(generation.Unit) error) error {
	scanner := newLineScanner(body)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "[DONE]" {
			return nil
		}
		if err := p.emitPayload(line, emit); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return transportError(httpProviderName, fmt.Errorf("stream read: %w", err))
	}
	return nil
}

func (p *HTTPProvider) consumeDocument(body io.Reader, emit func(generation.Unit) error) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return transportError(httpProviderName, fmt.Errorf("read response: %w", err))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return p.emitPayload(string(raw), emit)
}

// emitPayload maps one upstream message to a unit. Only a JSON object with
// a type, an error or a string text field is a structured message; any
// other payload is model text unless the provider is strict.
func (p *HTTPProvider) emitPayload(payload string, emit func(generation.Unit) error) error {
	obj, ok := structuredPayload(payload)
	if !ok {
		if p.strict {
			return &Error{Provider: httpProviderName, Detail: "stream payload is not a structured message"}
		}
		return emit(generation.TextUnit(payload))
	}

	if msg, ok := obj["error"].(string); ok && msg != "" {
		return &Error{Provider: httpProviderName, Detail: msg}
	}

	switch stringField(obj, "type") {
	case "tool_request":
		return emit(generation.Unit{
			Type:       generation.UnitToolRequest,
			ToolCallID: stringField(obj, "id"),
			ToolName:   stringField(obj, "name"),
			Arguments:  stringField(obj, "arguments"),
		})
	case "tool_result", "tool_executed":
		return emit(generation.Unit{
			Type:       generation.UnitToolResult,
			ToolCallID: stringField(obj, "id"),
			ToolName:   stringField(obj, "name"),
			Arguments:  stringField(obj, "arguments"),
			Result:     stringField(obj, "result"),
		})
	}

	text, ok := extractText(obj)
	if !ok || text == "" {
		// Typed control message without text, e.g. {"type":"done"}.
		return nil
	}
	return emit(generation.TextUnit(text))
}

func structuredPayload(payload string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}
	if _, ok := obj["type"].(string); ok {
		return obj, true
	}
	if _, ok := obj["error"]; ok {
		return obj, true
	}
	if _, ok := extractText(obj); ok {
		return obj, true
	}
	return nil, false
}

var textKeys = []string{"text", "delta", "output", "message", "content", "data"}

func extractText(obj map[string]any) (string, bool) {
	for _, k := range textKeys {
		if s, ok := obj[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

// stringField returns obj[key] as text; non-string values are re-encoded
// as JSON so tool arguments survive either representation.
func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func newLineScanner(body io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}
