package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.SessionCookieName != "connect.sid" {
		t.Fatalf("SessionCookieName = %q, want %q", cfg.SessionCookieName, "connect.sid")
	}
	if cfg.SessionRotationWindow != 30*time.Minute {
		t.Fatalf("SessionRotationWindow = %v, want 30m", cfg.SessionRotationWindow)
	}
	if cfg.SessionTakeover != "supersede" {
		t.Fatalf("SessionTakeover = %q, want supersede", cfg.SessionTakeover)
	}
	if !cfg.CoherenceEnabled {
		t.Fatal("CoherenceEnabled = false, want true")
	}
	if cfg.CoherenceThreshold != 0.15 {
		t.Fatalf("CoherenceThreshold = %v, want 0.15", cfg.CoherenceThreshold)
	}
	if cfg.SpeechDetectionMode != "adaptive" {
		t.Fatalf("SpeechDetectionMode = %q, want adaptive", cfg.SpeechDetectionMode)
	}
	if cfg.MinTurnChars != 3 {
		t.Fatalf("MinTurnChars = %d, want 3", cfg.MinTurnChars)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Fatalf("ReconnectMaxAttempts = %d, want 5", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectJitter != 0.25 {
		t.Fatalf("ReconnectJitter = %v, want 0.25", cfg.ReconnectJitter)
	}
}

func TestLoadRequiresSessionSecret(t *testing.T) {
	setCoreEnvEmpty(t)

	if _, err := Load(); err == nil {
		t.Fatal("Load() without SESSION_SECRET succeeded, want error")
	}
}

func TestLoadRejectsBadTakeoverPolicy(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("SESSION_TAKEOVER", "steal")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with bad SESSION_TAKEOVER succeeded, want error")
	}
}

func TestLoadRejectsBadDetectionMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("SPEECH_DETECTION_MODE", "psychic")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with bad SPEECH_DETECTION_MODE succeeded, want error")
	}
}

func TestLoadRejectsReconnectDelayInversion(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("RECONNECT_INITIAL_DELAY", "10s")
	t.Setenv("RECONNECT_MAX_DELAY", "1s")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with max delay below initial succeeded, want error")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("SESSION_ROTATION_WINDOW", "45m")
	t.Setenv("COHERENCE_ENABLED", "false")
	t.Setenv("COHERENCE_THRESHOLD", "0.3")
	t.Setenv("SPEECH_DETECTION_MODE", "fixed")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionRotationWindow != 45*time.Minute {
		t.Fatalf("SessionRotationWindow = %v, want 45m", cfg.SessionRotationWindow)
	}
	if cfg.CoherenceEnabled {
		t.Fatal("CoherenceEnabled = true, want false")
	}
	if cfg.CoherenceThreshold != 0.3 {
		t.Fatalf("CoherenceThreshold = %v, want 0.3", cfg.CoherenceThreshold)
	}
	if cfg.SpeechDetectionMode != "fixed" {
		t.Fatalf("SpeechDetectionMode = %q, want fixed", cfg.SpeechDetectionMode)
	}
	if cfg.ReconnectMaxAttempts != 8 {
		t.Fatalf("ReconnectMaxAttempts = %d, want 8", cfg.ReconnectMaxAttempts)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"SESSION_COOKIE_NAME",
		"SESSION_SECRET",
		"SESSION_ROTATION_WINDOW",
		"SESSION_TAKEOVER",
		"SESSION_INACTIVITY_TIMEOUT",
		"DATABASE_URL",
		"COHERENCE_ENABLED",
		"COHERENCE_THRESHOLD",
		"SPEECH_DETECTION_MODE",
		"MIN_TURN_CHARS",
		"RECONNECT_INITIAL_DELAY",
		"RECONNECT_MAX_DELAY",
		"RECONNECT_MAX_ATTEMPTS",
		"RECONNECT_JITTER",
		"TUNING_CONFIG_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
