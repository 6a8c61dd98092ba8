package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242 with sk-abcdefghijklmnop1234."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]", "[REDACTED_KEY]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "sam@example.com") {
		t.Fatalf("email survived redaction: %q", out)
	}
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	input := "make the header blue and add 3 columns"
	out, changed := RedactPII(input)
	if changed || out != input {
		t.Fatalf("RedactPII() = (%q, %v), want unchanged input", out, changed)
	}
}
