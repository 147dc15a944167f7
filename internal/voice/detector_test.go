package voice

import (
	"testing"
)

func TestFixedModeComparesRMS(t *testing.T) {
	d := newEnergyDetector(ModeFixed, testProfile())
	if !d.flag(0.03, 0.1) {
		t.Fatal("rms above threshold not flagged")
	}
	if d.flag(0.01, 0.1) {
		t.Fatal("rms below threshold flagged")
	}
}

func TestAdaptiveWarmupNeverFlags(t *testing.T) {
	d := newEnergyDetector(ModeAdaptive, testProfile())
	for i := 0; i < baselineWarmupChunks; i++ {
		if d.flag(0.5, 0.5) {
			t.Fatalf("chunk %d flagged during warmup", i)
		}
	}
}

func TestAdaptiveFlagsPeakAboveBaselineRatio(t *testing.T) {
	d := newEnergyDetector(ModeAdaptive, testProfile())
	for i := 0; i < baselineWarmupChunks; i++ {
		d.flag(0.04, 0.04)
	}
	// baseline 0.04 with ratio 2.0 puts the threshold at 0.08
	if !d.flag(0.05, 0.09) {
		t.Fatal("peak above baseline ratio not flagged")
	}
	if d.flag(0.03, 0.07) {
		t.Fatal("peak below baseline ratio flagged")
	}
}

func TestAdaptiveFloorHoldsInQuietRoom(t *testing.T) {
	d := newEnergyDetector(ModeAdaptive, testProfile())
	for i := 0; i < baselineWarmupChunks; i++ {
		d.flag(0.001, 0.001)
	}
	// baseline ratio would put the threshold near zero; the peak floor
	// keeps faint noise below it
	if d.flag(0.01, 0.03) {
		t.Fatal("faint noise flagged in quiet room")
	}
	if !d.flag(0.2, 0.2) {
		t.Fatal("clear speech not flagged in quiet room")
	}
}

func TestAdaptiveBaselineIgnoresSpeech(t *testing.T) {
	d := newEnergyDetector(ModeAdaptive, testProfile())
	for i := 0; i < baselineWarmupChunks; i++ {
		d.flag(0.04, 0.04)
	}
	for i := 0; i < 50; i++ {
		if !d.flag(0.5, 0.5) {
			t.Fatal("sustained speech not flagged")
		}
	}
	// if speech fed the baseline the threshold would now be near 1.0
	if !d.flag(0.05, 0.09) {
		t.Fatal("speech chunks raised the noise baseline")
	}
}
