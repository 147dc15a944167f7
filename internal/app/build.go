package app

import (
	"context"
	"fmt"

	"github.com/Pollis22/voicecore/internal/auth"
	"github.com/Pollis22/voicecore/internal/coherence"
	"github.com/Pollis22/voicecore/internal/config"
	"github.com/Pollis22/voicecore/internal/farewell"
	"github.com/Pollis22/voicecore/internal/gradeband"
	"github.com/Pollis22/voicecore/internal/httpapi"
	"github.com/Pollis22/voicecore/internal/observability"
	"github.com/Pollis22/voicecore/internal/session"
)

// BuildResult carries the wired subsystems.
type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Metrics   *observability.Metrics
	Telemetry *observability.Telemetry

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires every subsystem from config. A tuning file, when configured,
// overlays grade-band thresholds and the farewell/coherence lexicons before
// anything consumes them.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	telemetry := observability.NewTelemetry(nil)

	bands := gradeband.DefaultTable()
	sets := farewell.DefaultSets()
	gateCfg := coherence.Config{
		Enabled:   cfg.CoherenceEnabled,
		Threshold: cfg.CoherenceThreshold,
	}

	if cfg.TuningPath != "" {
		tuning, err := config.LoadTuning(cfg.TuningPath)
		if err != nil {
			return nil, fmt.Errorf("tuning config: %w", err)
		}
		overrides, err := tuning.BandOverrides()
		if err != nil {
			return nil, fmt.Errorf("tuning config: %w", err)
		}
		if len(overrides) > 0 {
			bands, err = bands.WithOverrides(overrides)
			if err != nil {
				return nil, fmt.Errorf("tuning config: %w", err)
			}
		}
		sets = overlayFarewell(sets, tuning.Farewell)
		gateCfg.EducationalVocabulary = tuning.Coherence.EducationalVocabulary
		gateCfg.HouseholdChatter = tuning.Coherence.HouseholdChatter
		gateCfg.Stopwords = tuning.Coherence.Stopwords
	}

	goodbye, err := farewell.NewDetector(sets)
	if err != nil {
		return nil, fmt.Errorf("farewell detector init failed: %w", err)
	}
	gate, err := coherence.NewGate(gateCfg)
	if err != nil {
		return nil, fmt.Errorf("coherence gate init failed: %w", err)
	}

	store, err := auth.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("auth store init failed: %w", err)
	}
	authn, err := auth.NewAuthenticator(auth.Config{
		CookieName:     cfg.SessionCookieName,
		Secret:         cfg.SessionSecret,
		RotationWindow: cfg.SessionRotationWindow,
	}, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("authenticator init failed: %w", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, session.TakeoverPolicy(cfg.SessionTakeover))

	api := httpapi.New(cfg, sessions, authn, bands, gate, goodbye, metrics, telemetry)

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Metrics:   metrics,
		Telemetry: telemetry,
		Cleanup:   store.Close,
	}, nil
}

// overlayFarewell replaces each built-in phrase list the tuning file sets.
// An absent list keeps its default.
func overlayFarewell(base, overlay farewell.Sets) farewell.Sets {
	if len(overlay.Termination) > 0 {
		base.Termination = overlay.Termination
	}
	if len(overlay.Ambiguous) > 0 {
		base.Ambiguous = overlay.Ambiguous
	}
	if len(overlay.Fillers) > 0 {
		base.Fillers = overlay.Fillers
	}
	return base
}
