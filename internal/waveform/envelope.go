// Package waveform reduces decoded audio to a fixed-resolution peak envelope
// for timeline display.
package waveform

import (
	"math"
)

// DefaultResolution is the number of peak bars in an envelope.
const DefaultResolution = 1000

// Envelope is the visual summary of an audio resource.
type Envelope struct {
	Peaks    []float64 `json:"peaks"`
	Duration float64   `json:"duration"`
}

// Clone returns a copy that shares no memory with e.
func (e Envelope) Clone() Envelope {
	peaks := make([]float64, len(e.Peaks))
	copy(peaks, e.Peaks)
	return Envelope{Peaks: peaks, Duration: e.Duration}
}

// Peaks splits samples into n equal contiguous blocks of
// floor(len(samples)/n) samples and returns the maximum absolute value of
// each block, clamped to [0, 1]. Trailing samples that do not fill a block
// are ignored. The result always has length n.
func Peaks(samples []float32, n int) []float64 {
	if n <= 0 {
		return nil
	}
	peaks := make([]float64, n)
	blockSize := len(samples) / n
	if blockSize == 0 {
		return peaks
	}

	for i := range peaks {
		block := samples[i*blockSize : (i+1)*blockSize]
		var peak float64
		for _, s := range block {
			v := math.Abs(float64(s))
			if v > peak {
				peak = v
			}
		}
		if peak > 1 || math.IsNaN(peak) {
			peak = 1
		}
		peaks[i] = peak
	}
	return peaks
}
