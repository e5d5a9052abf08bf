// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate drops buffers whose peak amplitude does not exceed a threshold before
// they reach the detector. It is safe to adjust while a stream is running.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32 // math.Float32bits of the threshold.
}

// NewGate returns an enabled gate. The threshold is clamped to [0, 1].
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled.Store(true)
	return g
}

func (g *Gate) Enable() {
	g.enabled.Store(true)
}

func (g *Gate) Disable() {
	g.enabled.Store(false)
}

func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current threshold in [0, 1].
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Pass reports whether a buffer with the given peak should be analysed.
func (g *Gate) Pass(peak float32) bool {
	if !g.enabled.Load() {
		return true
	}
	return peak > math.Float32frombits(g.threshold.Load())
}

// Peak returns the largest absolute sample value.
func Peak(buf []float32) float32 {
	var peak float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
