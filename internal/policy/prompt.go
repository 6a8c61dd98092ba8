package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrPromptEmpty   = errors.New("prompt is empty")
	ErrPromptTooLong = errors.New("prompt is too long")
	ErrPromptBlocked = errors.New("prompt blocked by policy")
)

// Prompts asking the model to leak host secrets or wipe the output tree
// are refused before a generation slot is taken.
var blockedPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/(?:\s|$)`),
	regexp.MustCompile(`(?i)\b(sudo\s+)?cat\s+.*(?:id_rsa|id_ed25519|\.env|auth\.json)`),
	regexp.MustCompile(`(?i)\b(exfiltrate|steal|dump credentials|leak secrets?)\b`),
	regexp.MustCompile(`(?i)\b(print|show|reveal)\b.*\b(api[_ -]?key|password|secret)s?\b.*\b(server|host|environment|env)\b`),
}

// CheckPrompt normalizes a user prompt and rejects it when it is blank,
// longer than maxChars runes, or matches a blocked pattern.
func CheckPrompt(prompt string, maxChars int) (string, error) {
	p := strings.TrimSpace(prompt)
	if p == "" {
		return "", ErrPromptEmpty
	}
	if maxChars > 0 {
		if n := utf8.RuneCountInString(p); n > maxChars {
			return "", fmt.Errorf("%w: %d characters, limit %d", ErrPromptTooLong, n, maxChars)
		}
	}
	for _, re := range blockedPromptPatterns {
		if re.MatchString(p) {
			return "", ErrPromptBlocked
		}
	}
	return p, nil
}
