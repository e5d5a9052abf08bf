// SPDX-License-Identifier: MIT
// Package utils generates synthetic signals for tests and demos.
package utils

import (
	"math"
	"math/rand/v2"
)

// SineWave returns size float32 samples of a sine at frequency with the given
// peak amplitude.
func SineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// VoiceWave is a fundamental plus two decaying harmonics, closer to a sung
// vowel than a pure tone. Peak amplitude stays below 1.
func VoiceWave(size int, sampleRate, fundamental float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*fundamental*tm)*0.5 +
			math.Sin(2*math.Pi*2*fundamental*tm)*0.3 +
			math.Sin(2*math.Pi*3*fundamental*tm)*0.15
		buffer[i] = float32(signal)
	}
	return buffer
}

// Noise returns uniform white noise in [-amplitude, amplitude].
func Noise(size int, amplitude float64, r *rand.Rand) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(amplitude * (2*r.Float64() - 1))
	}
	return buffer
}

// Mix adds b into a sample by sample and returns a.
func Mix(a, b []float32) []float32 {
	for i := range a {
		if i < len(b) {
			a[i] += b[i]
		}
	}
	return a
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
