package policy

import (
	"regexp"
	"unicode/utf8"
)

// maxTranscriptLen bounds transcript text carried into telemetry records.
const maxTranscriptLen = 240

type piiRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Card redaction runs before phone so a card number is not matched as a
// phone number first.
var piiRules = []piiRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
	{regexp.MustCompile(`(?i)\b\d{1,5}\s+[a-z][a-z ]{2,30}\s(?:street|st|avenue|ave|road|rd|lane|ln|drive|dr|court|ct|boulevard|blvd)\b`), "[REDACTED_ADDRESS]"},
}

// RedactPII masks common high-risk PII patterns in spoken text.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range piiRules {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// RedactTranscript prepares spoken text for telemetry: PII masked and the
// length clamped.
func RedactTranscript(input string) string {
	out, _ := RedactPII(input)
	if utf8.RuneCountInString(out) <= maxTranscriptLen {
		return out
	}
	runes := []rune(out)
	return string(runes[:maxTranscriptLen]) + "…"
}
