package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIISpokenAddress(t *testing.T) {
	out, changed := RedactPII("i live at 42 maple street near the park")
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if !strings.Contains(out, "[REDACTED_ADDRESS]") {
		t.Fatalf("output missing address marker: %q", out)
	}
}

func TestRedactPIICleanTextUnchanged(t *testing.T) {
	input := "three fourths plus one half is five fourths"
	out, changed := RedactPII(input)
	if changed || out != input {
		t.Fatalf("RedactPII(%q) = %q, changed=%v", input, out, changed)
	}
}

func TestRedactTranscriptClampsLength(t *testing.T) {
	long := strings.Repeat("numerator denominator ", 40)
	out := RedactTranscript(long)
	if len([]rune(out)) > maxTranscriptLen+1 {
		t.Fatalf("transcript not clamped, len = %d", len([]rune(out)))
	}
	if !strings.HasSuffix(out, "…") {
		t.Fatalf("clamped transcript missing marker: %q", out[len(out)-10:])
	}
}
