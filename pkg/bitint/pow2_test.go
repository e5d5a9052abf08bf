// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

// Detection windows run from 256 to 8192 frames; the spectrum is taken over
// the next power of two.
const (
	minWindow = 256
	maxWindow = 8192
)

func TestNextPowerOfTwoWindowSizes(t *testing.T) {
	tests := []struct {
		frames int
		size   int
	}{
		{minWindow, 256},
		{1764, 2048}, // Two periods of 50 Hz at 44.1 kHz.
		{1920, 2048}, // Same at 48 kHz.
		{2048, 2048},
		{2049, 4096},
		{3840, 4096}, // 96 kHz.
		{7680, 8192}, // 192 kHz.
		{maxWindow, 8192},
		{1, 1},
		{0, 1},
		{-512, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.frames), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.frames); got != tt.size {
				t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.frames, got, tt.size)
			}
		})
	}
}

func TestNextPowerOfTwoIsTight(t *testing.T) {
	for n := minWindow; n <= maxWindow; n++ {
		size := NextPowerOfTwo(n)
		if !IsPowerOfTwo(size) || size < n || size/2 >= n {
			t.Fatalf("NextPowerOfTwo(%d) = %d, want the smallest power of two >= %d", n, size, n)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for size := minWindow; size <= maxWindow; size *= 2 {
		if !IsPowerOfTwo(size) {
			t.Errorf("IsPowerOfTwo(%d) = false", size)
		}
	}
	for _, n := range []int{0, -2048, 1764, 1920, 3000} {
		if IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = true", n)
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	n := minWindow
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(n)
		if n++; n > maxWindow {
			n = minWindow
		}
	}
}
