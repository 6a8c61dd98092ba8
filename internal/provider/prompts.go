package provider

import "github.com/antoniostano/codeforge/internal/generation"

const (
	singleFilePrompt = `You are a senior front-end engineer. Produce one complete, self-contained HTML page for the user's request.
Put all CSS in a <style> element and all JavaScript in a <script> element.
Reply with a single fenced code block tagged html, optionally preceded by one short sentence.`

	multiFilePrompt = `You are a senior front-end engineer. Produce a small static site for the user's request as three files.
Reply with exactly three fenced code blocks tagged html, css and js, in that order.
The html must link style.css and script.js by those names.`

	projectPrompt = `You are a senior Vue 3 engineer scaffolding a Vite project for the user's request.
Use the provided tools to write each file of the project. Explain briefly what you are doing between tool calls.`
)

// SystemPrompt is the fixed instruction sent ahead of the user prompt.
func SystemPrompt(kind generation.Kind) string {
	switch kind {
	case generation.KindMultiFile:
		return multiFilePrompt
	case generation.KindVueProject:
		return projectPrompt
	default:
		return singleFilePrompt
	}
}
