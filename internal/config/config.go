package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the tutoring voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	SessionCookieName        string
	SessionSecret            string
	SessionRotationWindow    time.Duration
	SessionTakeover          string
	SessionInactivityTimeout time.Duration

	DatabaseURL string

	CoherenceEnabled    bool
	CoherenceThreshold  float64
	SpeechDetectionMode string
	MinTurnChars        int

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMaxAttempts  int
	ReconnectJitter       float64

	TuningPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "voicecore"),
		AllowAnyOrigin:           false,
		SessionCookieName:        envOrDefault("SESSION_COOKIE_NAME", "connect.sid"),
		SessionSecret:            stringsTrimSpace("SESSION_SECRET"),
		SessionTakeover:          envOrDefault("SESSION_TAKEOVER", "supersede"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		CoherenceEnabled:         true,
		CoherenceThreshold:       0.15,
		SpeechDetectionMode:      envOrDefault("SPEECH_DETECTION_MODE", "adaptive"),
		MinTurnChars:             3,
		TuningPath:               stringsTrimSpace("TUNING_CONFIG_PATH"),
		ShutdownTimeout:          15 * time.Second,
		SessionRotationWindow:    30 * time.Minute,
		SessionInactivityTimeout: 2 * time.Minute,
		ReconnectInitialDelay:    time.Second,
		ReconnectMaxDelay:        30 * time.Second,
		ReconnectMaxAttempts:     5,
		ReconnectJitter:          0.25,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRotationWindow, err = durationFromEnv("SESSION_ROTATION_WINDOW", cfg.SessionRotationWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CoherenceEnabled, err = boolFromEnv("COHERENCE_ENABLED", cfg.CoherenceEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.CoherenceThreshold, err = floatFromEnv("COHERENCE_THRESHOLD", cfg.CoherenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MinTurnChars, err = intFromEnv("MIN_TURN_CHARS", cfg.MinTurnChars)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectInitialDelay, err = durationFromEnv("RECONNECT_INITIAL_DELAY", cfg.ReconnectInitialDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectMaxDelay, err = durationFromEnv("RECONNECT_MAX_DELAY", cfg.ReconnectMaxDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectMaxAttempts, err = intFromEnv("RECONNECT_MAX_ATTEMPTS", cfg.ReconnectMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectJitter, err = floatFromEnv("RECONNECT_JITTER", cfg.ReconnectJitter)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}
	switch cfg.SessionTakeover {
	case "supersede", "reject":
	default:
		return Config{}, fmt.Errorf("SESSION_TAKEOVER must be supersede or reject, got %q", cfg.SessionTakeover)
	}
	switch cfg.SpeechDetectionMode {
	case "fixed", "adaptive":
	default:
		return Config{}, fmt.Errorf("SPEECH_DETECTION_MODE must be fixed or adaptive, got %q", cfg.SpeechDetectionMode)
	}
	if cfg.SessionRotationWindow < time.Minute {
		return Config{}, fmt.Errorf("SESSION_ROTATION_WINDOW must be at least 1m")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.CoherenceThreshold <= 0 || cfg.CoherenceThreshold > 1 {
		return Config{}, fmt.Errorf("COHERENCE_THRESHOLD must be in (0, 1]")
	}
	if cfg.MinTurnChars < 1 {
		return Config{}, fmt.Errorf("MIN_TURN_CHARS must be positive")
	}
	if cfg.ReconnectInitialDelay <= 0 {
		return Config{}, fmt.Errorf("RECONNECT_INITIAL_DELAY must be positive")
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectInitialDelay {
		return Config{}, fmt.Errorf("RECONNECT_MAX_DELAY must be at least RECONNECT_INITIAL_DELAY")
	}
	if cfg.ReconnectMaxAttempts < 1 {
		return Config{}, fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.ReconnectJitter < 0 || cfg.ReconnectJitter >= 1 {
		return Config{}, fmt.Errorf("RECONNECT_JITTER must be in [0, 1)")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
