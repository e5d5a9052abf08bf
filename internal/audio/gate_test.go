// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"testing"
)

func TestGateEnable(t *testing.T) {
	gate := NewGate(0.5)
	if !gate.Enabled() {
		t.Error("Gate should be enabled initially")
	}

	gate.Disable()
	gate.Disable() // Multiple calls should be idempotent
	if gate.Enabled() {
		t.Error("Gate should be disabled after Disable()")
	}
	if !gate.Pass(0) {
		t.Error("Disabled gate should pass silence")
	}

	gate.Enable()
	gate.Enable()
	if !gate.Enabled() {
		t.Error("Gate should remain enabled after multiple Enable()")
	}
	if gate.Pass(0.25) {
		t.Error("Enabled gate should block a peak below threshold")
	}
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},  // Minimum
		{0.5, 0.5},  // Middle
		{1.0, 1.0},  // Maximum
		{1.5, 1.0},  // Above max
	}

	gate := NewGate(0)
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.1f", tt.input), func(t *testing.T) {
			gate.SetThreshold(tt.input)
			if got := gate.Threshold(); math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Threshold() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGatePass(t *testing.T) {
	gate := NewGate(0.01)

	tests := []struct {
		peak float32
		want bool
	}{
		{0, false},
		{0.005, false},
		{0.01, false}, // Threshold itself is closed
		{0.02, true},
		{1, true},
	}
	for _, tt := range tests {
		if got := gate.Pass(tt.peak); got != tt.want {
			t.Errorf("Pass(%v) = %v, want %v", tt.peak, got, tt.want)
		}
	}
}

func TestPeak(t *testing.T) {
	if got := Peak(nil); got != 0 {
		t.Errorf("Peak(nil) = %v", got)
	}
	if got := Peak([]float32{0.1, -0.7, 0.3}); got != 0.7 {
		t.Errorf("Peak = %v, want 0.7", got)
	}
}

// TestPeakHotPath verifies the peak scan used in the audio callback does not allocate.
func TestPeakHotPath(t *testing.T) {
	buffer := make([]float32, 1024)
	for i := range buffer {
		buffer[i] = float32(i%100) / 100
		if i%2 == 1 {
			buffer[i] = -buffer[i]
		}
	}
	gate := NewGate(0.1)

	allocs := testing.AllocsPerRun(100, func() {
		_ = gate.Pass(Peak(buffer))
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in gate hot path, got %.1f", allocs)
	}
}

func BenchmarkGate(b *testing.B) {
	buffer := make([]float32, 2048)
	for i := range buffer {
		buffer[i] = float32(math.Sin(float64(i) * 0.05))
	}
	gate := NewGate(0.01)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		gate.Pass(Peak(buffer))
	}
}
