package gradeband

import (
	"fmt"
	"strings"
	"time"
)

// Band identifies one of the five supported grade bands, youngest first.
type Band string

const (
	BandK2    Band = "k-2"
	Band35    Band = "3-5"
	Band68    Band = "6-8"
	Band912   Band = "9-12"
	BandAdult Band = "adult"
)

// FallbackBand is assumed when a session carries an unknown band label.
const FallbackBand = Band35

// Profile carries the turn-taking thresholds tuned for one grade band.
// Younger bands get longer confirm and immunity windows: early-grade speakers
// pause mid-thought more and trigger more spurious interruption flags.
type Profile struct {
	Band              Band
	MinSpeechDuration time.Duration
	DuckGain          float64
	DuckFade          time.Duration
	ConfirmWindow     time.Duration
	ImmunityWindow    time.Duration
	AdaptiveRatio     float64
	RMSThreshold      float64
	PeakThreshold     float64
}

var bandOrder = []Band{BandK2, Band35, Band68, Band912, BandAdult}

var bandAliases = map[string]Band{
	"k":            BandK2,
	"k2":           BandK2,
	"kindergarten": BandK2,
	"elementary":   Band35,
	"middle":       Band68,
	"high":         Band912,
	"high-school":  Band912,
	"college":      BandAdult,
	"adults":       BandAdult,
}

var defaultProfiles = map[Band]Profile{
	BandK2: {
		Band:              BandK2,
		MinSpeechDuration: 850 * time.Millisecond,
		DuckGain:          0.15,
		DuckFade:          60 * time.Millisecond,
		ConfirmWindow:     1200 * time.Millisecond,
		ImmunityWindow:    1000 * time.Millisecond,
		AdaptiveRatio:     2.6,
		RMSThreshold:      0.022,
		PeakThreshold:     0.060,
	},
	Band35: {
		Band:              Band35,
		MinSpeechDuration: 700 * time.Millisecond,
		DuckGain:          0.15,
		DuckFade:          60 * time.Millisecond,
		ConfirmWindow:     1000 * time.Millisecond,
		ImmunityWindow:    850 * time.Millisecond,
		AdaptiveRatio:     2.4,
		RMSThreshold:      0.020,
		PeakThreshold:     0.055,
	},
	Band68: {
		Band:              Band68,
		MinSpeechDuration: 550 * time.Millisecond,
		DuckGain:          0.18,
		DuckFade:          50 * time.Millisecond,
		ConfirmWindow:     850 * time.Millisecond,
		ImmunityWindow:    700 * time.Millisecond,
		AdaptiveRatio:     2.2,
		RMSThreshold:      0.018,
		PeakThreshold:     0.050,
	},
	Band912: {
		Band:              Band912,
		MinSpeechDuration: 450 * time.Millisecond,
		DuckGain:          0.20,
		DuckFade:          50 * time.Millisecond,
		ConfirmWindow:     700 * time.Millisecond,
		ImmunityWindow:    550 * time.Millisecond,
		AdaptiveRatio:     2.0,
		RMSThreshold:      0.017,
		PeakThreshold:     0.045,
	},
	BandAdult: {
		Band:              BandAdult,
		MinSpeechDuration: 350 * time.Millisecond,
		DuckGain:          0.20,
		DuckFade:          40 * time.Millisecond,
		ConfirmWindow:     600 * time.Millisecond,
		ImmunityWindow:    400 * time.Millisecond,
		AdaptiveRatio:     1.8,
		RMSThreshold:      0.015,
		PeakThreshold:     0.040,
	},
}

// Table resolves grade-band labels to immutable threshold profiles.
type Table struct {
	profiles map[Band]Profile
}

// DefaultTable returns the built-in five-band table.
func DefaultTable() *Table {
	profiles := make(map[Band]Profile, len(defaultProfiles))
	for band, p := range defaultProfiles {
		profiles[band] = p
	}
	return &Table{profiles: profiles}
}

// Bands lists the supported bands youngest first.
func Bands() []Band {
	out := make([]Band, len(bandOrder))
	copy(out, bandOrder)
	return out
}

// NormalizeBand canonicalizes a raw band label. ok is false when the label
// does not resolve to a known band.
func NormalizeBand(label string) (Band, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(label))
	if trimmed == "" {
		return FallbackBand, false
	}
	if _, exists := defaultProfiles[Band(trimmed)]; exists {
		return Band(trimmed), true
	}
	if alias, exists := bandAliases[trimmed]; exists {
		return alias, true
	}
	return FallbackBand, false
}

// Lookup resolves a raw band label to its profile. Unknown labels fall back
// to FallbackBand and report ok=false so callers can log the mismatch.
func (t *Table) Lookup(label string) (Profile, bool) {
	band, ok := NormalizeBand(label)
	profile, exists := t.profiles[band]
	if !exists {
		return t.profiles[FallbackBand], false
	}
	return profile, ok
}

// Profile returns the profile for an already-normalized band.
func (t *Table) Profile(band Band) (Profile, bool) {
	profile, exists := t.profiles[band]
	return profile, exists
}

// Override replaces a subset of one band's thresholds. Nil fields keep the
// current value. Durations are expressed in milliseconds for tuning files.
type Override struct {
	MinSpeechMS   *int     `yaml:"min_speech_ms"`
	DuckGain      *float64 `yaml:"duck_gain"`
	DuckFadeMS    *int     `yaml:"duck_fade_ms"`
	ConfirmMS     *int     `yaml:"confirm_window_ms"`
	ImmunityMS    *int     `yaml:"immunity_window_ms"`
	AdaptiveRatio *float64 `yaml:"adaptive_ratio"`
	RMSThreshold  *float64 `yaml:"rms_threshold"`
	PeakThreshold *float64 `yaml:"peak_threshold"`
}

// WithOverrides returns a copy of the table with per-band overrides applied.
// The result is re-validated so a tuning file cannot break band monotonicity.
func (t *Table) WithOverrides(overrides map[Band]Override) (*Table, error) {
	profiles := make(map[Band]Profile, len(t.profiles))
	for band, p := range t.profiles {
		profiles[band] = p
	}
	for band, ov := range overrides {
		profile, exists := profiles[band]
		if !exists {
			return nil, fmt.Errorf("override references unknown band %q", band)
		}
		if ov.MinSpeechMS != nil {
			profile.MinSpeechDuration = time.Duration(*ov.MinSpeechMS) * time.Millisecond
		}
		if ov.DuckGain != nil {
			profile.DuckGain = *ov.DuckGain
		}
		if ov.DuckFadeMS != nil {
			profile.DuckFade = time.Duration(*ov.DuckFadeMS) * time.Millisecond
		}
		if ov.ConfirmMS != nil {
			profile.ConfirmWindow = time.Duration(*ov.ConfirmMS) * time.Millisecond
		}
		if ov.ImmunityMS != nil {
			profile.ImmunityWindow = time.Duration(*ov.ImmunityMS) * time.Millisecond
		}
		if ov.AdaptiveRatio != nil {
			profile.AdaptiveRatio = *ov.AdaptiveRatio
		}
		if ov.RMSThreshold != nil {
			profile.RMSThreshold = *ov.RMSThreshold
		}
		if ov.PeakThreshold != nil {
			profile.PeakThreshold = *ov.PeakThreshold
		}
		profiles[band] = profile
	}
	next := &Table{profiles: profiles}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// Validate checks one profile's thresholds for internal consistency.
func (p Profile) Validate() error {
	if p.MinSpeechDuration <= 0 {
		return fmt.Errorf("band %q: min speech duration must be positive", p.Band)
	}
	if p.DuckGain <= 0 || p.DuckGain >= 1 {
		return fmt.Errorf("band %q: duck gain must be in (0, 1), got %.3f", p.Band, p.DuckGain)
	}
	if p.DuckFade <= 0 {
		return fmt.Errorf("band %q: duck fade must be positive", p.Band)
	}
	if p.ConfirmWindow <= 0 || p.ImmunityWindow <= 0 {
		return fmt.Errorf("band %q: confirm and immunity windows must be positive", p.Band)
	}
	if p.MinSpeechDuration > p.ConfirmWindow {
		return fmt.Errorf("band %q: min speech %v exceeds confirm window %v", p.Band, p.MinSpeechDuration, p.ConfirmWindow)
	}
	if p.AdaptiveRatio <= 1 {
		return fmt.Errorf("band %q: adaptive ratio must exceed 1, got %.2f", p.Band, p.AdaptiveRatio)
	}
	if p.RMSThreshold <= 0 || p.PeakThreshold <= 0 {
		return fmt.Errorf("band %q: energy thresholds must be positive", p.Band)
	}
	return nil
}

// Validate checks every profile and that confirm and immunity windows only
// tighten as band age increases.
func (t *Table) Validate() error {
	for _, band := range bandOrder {
		p, exists := t.profiles[band]
		if !exists {
			return fmt.Errorf("band %q missing from table", band)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for i := 1; i < len(bandOrder); i++ {
		younger := t.profiles[bandOrder[i-1]]
		older := t.profiles[bandOrder[i]]
		if older.ConfirmWindow > younger.ConfirmWindow {
			return fmt.Errorf("confirm window widens from band %q to %q", younger.Band, older.Band)
		}
		if older.ImmunityWindow > younger.ImmunityWindow {
			return fmt.Errorf("immunity window widens from band %q to %q", younger.Band, older.Band)
		}
	}
	return nil
}
