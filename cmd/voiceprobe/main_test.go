package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Pollis22/voicecore/internal/audio"
)

func TestTonePCM16Silence(t *testing.T) {
	pcm := tonePCM16(16000, 20*time.Millisecond, 0)
	if len(pcm) != 640 {
		t.Fatalf("len(pcm) = %d, want 640", len(pcm))
	}
	if rms, peak := audio.Measure(pcm); rms != 0 || peak != 0 {
		t.Fatalf("silence measured rms=%v peak=%v, want 0", rms, peak)
	}
}

func TestTonePCM16Loud(t *testing.T) {
	pcm := tonePCM16(16000, 20*time.Millisecond, 0.5)
	if len(pcm) != 640 {
		t.Fatalf("len(pcm) = %d, want 640", len(pcm))
	}
	rms, peak := audio.Measure(pcm)
	if peak < 0.45 || peak > 0.51 {
		t.Fatalf("peak = %v, want ~0.5", peak)
	}
	// Sine RMS is amplitude/sqrt(2).
	if rms < 0.30 || rms > 0.40 {
		t.Fatalf("rms = %v, want ~0.35", rms)
	}
}

func TestSessJSONShape(t *testing.T) {
	rotated := time.UnixMilli(1756100000000).UTC()
	expires := rotated.Add(time.Hour)
	raw, err := sessJSON("student-7", rotated, expires)
	if err != nil {
		t.Fatalf("sessJSON() error = %v", err)
	}

	var decoded struct {
		Cookie struct {
			Expires string `json:"expires"`
		} `json:"cookie"`
		Passport struct {
			User string `json:"user"`
		} `json:"passport"`
		LastRotatedAt int64 `json:"lastRotatedAt"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Passport.User != "student-7" {
		t.Fatalf("passport.user = %q, want student-7", decoded.Passport.User)
	}
	if decoded.LastRotatedAt != rotated.UnixMilli() {
		t.Fatalf("lastRotatedAt = %d, want %d", decoded.LastRotatedAt, rotated.UnixMilli())
	}
	parsed, err := time.Parse(time.RFC3339Nano, decoded.Cookie.Expires)
	if err != nil {
		t.Fatalf("cookie.expires %q does not parse: %v", decoded.Cookie.Expires, err)
	}
	if !parsed.Equal(expires) {
		t.Fatalf("cookie.expires = %v, want %v", parsed, expires)
	}
}

func TestWSSessionURL(t *testing.T) {
	got, err := wsSessionURL("http://127.0.0.1:8080", "3-5", "long division")
	if err != nil {
		t.Fatalf("wsSessionURL() error = %v", err)
	}
	if !strings.HasPrefix(got, "ws://127.0.0.1:8080/v1/voice/session/ws?") {
		t.Fatalf("url = %q, want ws scheme and session path", got)
	}
	if !strings.Contains(got, "grade_band=3-5") {
		t.Fatalf("url = %q, missing grade_band", got)
	}
	if !strings.Contains(got, "subject=long+division") {
		t.Fatalf("url = %q, missing encoded subject", got)
	}

	got, err = wsSessionURL("https://tutor.example.com/api/", "adult", "")
	if err != nil {
		t.Fatalf("wsSessionURL() https error = %v", err)
	}
	if !strings.HasPrefix(got, "wss://tutor.example.com/api/v1/voice/session/ws") {
		t.Fatalf("url = %q, want wss scheme with base path kept", got)
	}
	if strings.Contains(got, "subject=") {
		t.Fatalf("url = %q, empty subject must be omitted", got)
	}

	if _, err := wsSessionURL("ftp://example.com", "3-5", ""); err == nil {
		t.Fatalf("wsSessionURL() with ftp scheme: expected error")
	}
}
