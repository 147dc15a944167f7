package voice

import (
	"github.com/Pollis22/voicecore/internal/gradeband"
)

// DetectionMode selects how competing speech is flagged from chunk energy.
type DetectionMode string

const (
	// ModeFixed flags a chunk when its RMS energy exceeds the band's fixed
	// threshold.
	ModeFixed DetectionMode = "fixed"
	// ModeAdaptive flags a chunk when its peak exceeds a rolling noise
	// baseline scaled by the band's ratio. The band's peak threshold acts
	// as an absolute floor so a near-silent room cannot trip the detector.
	ModeAdaptive DetectionMode = "adaptive"
)

const (
	// baselineWarmupChunks observe-only chunks calibrate the noise floor
	// before adaptive detection starts flagging.
	baselineWarmupChunks = 5
	// baselineAlpha is the EMA weight for baseline updates. Only unflagged
	// chunks feed the baseline so sustained speech cannot raise it.
	baselineAlpha = 0.05
)

type energyDetector struct {
	mode     DetectionMode
	profile  gradeband.Profile
	baseline float64
	seen     int
}

func newEnergyDetector(mode DetectionMode, profile gradeband.Profile) *energyDetector {
	if mode != ModeFixed && mode != ModeAdaptive {
		mode = ModeAdaptive
	}
	return &energyDetector{mode: mode, profile: profile}
}

// flag reports whether a chunk with the given RMS and peak counts as
// speech, updating the rolling baseline as a side effect.
func (d *energyDetector) flag(rms, peak float64) bool {
	if d.mode == ModeFixed {
		return rms > d.profile.RMSThreshold
	}
	if d.seen < baselineWarmupChunks {
		d.seen++
		d.observe(rms)
		return false
	}
	threshold := d.baseline * d.profile.AdaptiveRatio
	if threshold < d.profile.PeakThreshold {
		threshold = d.profile.PeakThreshold
	}
	flagged := peak > threshold
	if !flagged {
		d.observe(rms)
	}
	return flagged
}

func (d *energyDetector) observe(rms float64) {
	if d.baseline == 0 {
		d.baseline = rms
		return
	}
	d.baseline = d.baseline*(1-baselineAlpha) + rms*baselineAlpha
}
