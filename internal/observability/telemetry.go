package observability

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Pollis22/voicecore/internal/policy"
)

// Event is one telemetry record. Transcript text is redacted before it is
// written anywhere.
type Event struct {
	Time       time.Time `json:"ts"`
	Kind       string    `json:"kind"`
	SessionID  string    `json:"session_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	TurnID     string    `json:"turn_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Text       string    `json:"text,omitempty"`
	DurationMS float64   `json:"duration_ms,omitempty"`
}

// Telemetry emits one JSON line per event.
type Telemetry struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewTelemetry writes events to out, defaulting to stderr.
func NewTelemetry(out io.Writer) *Telemetry {
	if out == nil {
		out = os.Stderr
	}
	return &Telemetry{out: out, now: time.Now}
}

// Emit redacts the event text and writes the record. A nil Telemetry drops
// events so callers never guard.
func (t *Telemetry) Emit(ev Event) {
	if t == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = t.now().UTC()
	}
	if ev.Text != "" {
		redacted, _ := policy.RedactPII(ev.Text)
		ev.Text = redacted
	}
	line, err := json.Marshal(ev)
	if err != nil {
		log.Printf("telemetry: marshal event: %v", err)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out.Write(append(line, '\n'))
}
