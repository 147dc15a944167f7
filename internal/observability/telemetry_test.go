package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTelemetryRedactsText(t *testing.T) {
	var buf bytes.Buffer
	tel := NewTelemetry(&buf)
	tel.Emit(Event{
		Kind:      "turn.committed",
		SessionID: "sess-1",
		Text:      "my email is kid@example.com and my number is 415-555-0199",
	})

	line := buf.String()
	if strings.Contains(line, "kid@example.com") || strings.Contains(line, "415-555-0199") {
		t.Fatalf("telemetry leaked PII: %s", line)
	}
	var ev Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("emitted line is not JSON: %v", err)
	}
	if !strings.Contains(ev.Text, "[REDACTED_EMAIL]") {
		t.Fatalf("Text = %q, want redaction marker", ev.Text)
	}
	if ev.Time.IsZero() {
		t.Fatal("event timestamp not stamped")
	}
}

func TestNilTelemetryDropsEvents(t *testing.T) {
	var tel *Telemetry
	tel.Emit(Event{Kind: "session.created"})
}
