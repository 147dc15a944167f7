package voice

import (
	"sync"
	"time"
)

const fadeStepInterval = 10 * time.Millisecond

// Fader tracks the tutor output gain envelope as a cancellable ramp. At
// most one fade is in flight; starting a new one replaces it. The ramp runs
// on its own timer so other session work cannot stall a transition.
type Fader struct {
	mu     sync.Mutex
	gain   float64
	target float64
	step   float64
	timer  *time.Timer
}

// NewFader starts at unity gain.
func NewFader() *Fader {
	return &Fader{gain: 1.0, target: 1.0}
}

// FadeTo ramps the gain toward target over the given duration, replacing
// any fade in flight.
func (f *Fader) FadeTo(target float64, over time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.target = clampGain(target)
	if over <= fadeStepInterval {
		f.gain = f.target
		return
	}
	steps := int(over / fadeStepInterval)
	f.step = (f.target - f.gain) / float64(steps)
	f.timer = time.AfterFunc(fadeStepInterval, f.tick)
}

func (f *Fader) tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer == nil {
		return
	}
	f.gain = clampGain(f.gain + f.step)
	if (f.step >= 0 && f.gain >= f.target) || (f.step < 0 && f.gain <= f.target) {
		f.gain = f.target
		f.timer = nil
		return
	}
	f.timer = time.AfterFunc(fadeStepInterval, f.tick)
}

// Cancel stops any fade in flight, freezing the gain at its current level.
func (f *Fader) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

// Reset snaps the gain back to unity, cancelling any fade.
func (f *Fader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.gain = 1.0
	f.target = 1.0
}

// Gain returns the current gain level.
func (f *Fader) Gain() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gain
}

// Fading reports whether a ramp is in flight.
func (f *Fader) Fading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer != nil
}

func (f *Fader) stopLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func clampGain(g float64) float64 {
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}
