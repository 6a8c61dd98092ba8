package provider

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/antoniostano/codeforge/internal/generation"
)

// MockProvider produces deterministic replies when no model is configured.
// Output is streamed in small pieces with a pause between them so local
// clients can exercise cancellation.
type MockProvider struct {
	ChunkSize int
	Delay     time.Duration
}

func NewMockProvider() *MockProvider {
	return &MockProvider{ChunkSize: 24, Delay: 15 * time.Millisecond}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Stream(ctx context.Context, req generation.Request, emit func(generation.Unit) error) error {
	for _, u := range mockUnits(req, p.ChunkSize) {
		if err := p.pause(ctx); err != nil {
			return err
		}
		if err := emit(u); err != nil {
			return err
		}
	}
	return emit(generation.Unit{Type: generation.UnitFinal})
}

func (p *MockProvider) pause(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func mockUnits(req generation.Request, chunkSize int) []generation.Unit {
	title := html.EscapeString(strings.TrimSpace(req.Prompt))
	if title == "" {
		title = "Untitled"
	}

	var text string
	switch req.Kind {
	case generation.KindVueProject:
		args := fmt.Sprintf(`{"path":"src/App.vue","content":"<template><h1>%s</h1></template>"}`, title)
		return []generation.Unit{
			generation.TextUnit("Scaffolding the project.\n"),
			{Type: generation.UnitToolRequest, ToolCallID: "mock-1", ToolName: "writeFile", Arguments: args},
			{Type: generation.UnitToolResult, ToolCallID: "mock-1", ToolName: "writeFile", Arguments: args, Result: "wrote src/App.vue"},
			generation.TextUnit("Project ready."),
		}
	case generation.KindMultiFile:
		text = "```html\n<!DOCTYPE html>\n<html>\n<head><link rel=\"stylesheet\" href=\"style.css\"></head>\n<body>\n<h1>" + title +
			"</h1>\n<script src=\"script.js\"></script>\n</body>\n</html>\n```\n" +
			"```css\nbody { font-family: sans-serif; margin: 2rem; }\n```\n" +
			"```js\ndocument.querySelector('h1').addEventListener('click', () => alert('hi'));\n```\n"
	default:
		text = "```html\n<!DOCTYPE html>\n<html>\n<head><title>" + title + "</title></head>\n<body>\n<h1>" + title +
			"</h1>\n</body>\n</html>\n```\n"
	}
	return chunkText(text, chunkSize)
}

func chunkText(text string, size int) []generation.Unit {
	if size <= 0 {
		size = len(text)
	}
	runes := []rune(text)
	var out []generation.Unit
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, generation.TextUnit(string(runes[start:end])))
	}
	return out
}
