package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// RMS returns the root-mean-square amplitude of raw PCM16LE mono audio,
// normalized to [0, 1]. A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	rms, _ := Measure(pcm)
	return rms
}

// Peak returns the largest absolute sample amplitude normalized to [0, 1].
func Peak(pcm []byte) float64 {
	_, peak := Measure(pcm)
	return peak
}

// Measure computes RMS and peak amplitude in a single pass.
func Measure(pcm []byte) (rms, peak float64) {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0, 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		sumSquares += s * s
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
	}
	return math.Sqrt(sumSquares / float64(samples)), peak
}

// ChunkDuration converts a PCM16LE mono byte count at the given sample rate
// into wall time.
func ChunkDuration(pcmBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	samples := pcmBytes / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
