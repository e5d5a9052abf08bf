// SPDX-License-Identifier: MIT
/*
Package pitch estimates the fundamental frequency of a monophonic voice from
a short buffer of samples.

Detection runs in three stages:
  - Silence gate on the mean absolute amplitude.
  - Normalized square difference (autocorrelation) with peak picking and
    parabolic interpolation. Accepted when clarity reaches MinConfidence and
    the frequency lies in the voice band.
  - Fallback to the windowed magnitude spectrum, taking the strongest bin in
    the voice band when it clears the noise floor.

A Detector holds only configuration; every call is independent.
*/
package pitch

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyBuffer = errors.New("empty audio buffer")
	ErrSilence     = errors.New("signal below silence threshold")
	ErrAmbiguous   = errors.New("no confident pitch estimate")
)

// Method identifies which stage produced an estimate.
type Method int

const (
	MethodAutocorrelation Method = iota
	MethodSpectrum
)

func (m Method) String() string {
	switch m {
	case MethodAutocorrelation:
		return "autocorrelation"
	case MethodSpectrum:
		return "spectrum"
	default:
		return "unknown"
	}
}

// Estimate is a single (frequency, confidence) reading.
type Estimate struct {
	FrequencyHz float64
	Confidence  float64 // Clarity in [0,1].
	Method      Method
}

// Config holds the detector thresholds.
type Config struct {
	SilenceThreshold float64    // Mean absolute amplitude below which a buffer is silent.
	MinConfidence    float64    // Minimum autocorrelation clarity.
	MinFrequencyHz   float64    // Lower edge of the plausible voice band.
	MaxFrequencyHz   float64    // Upper edge of the plausible voice band.
	NoiseFloor       float64    // Minimum normalized spectral magnitude for the fallback.
	Window           WindowFunc // Window applied before the spectrum fallback.
}

// DefaultConfig returns thresholds tuned for a single human voice.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold: 0.005,
		MinConfidence:    0.5,
		MinFrequencyHz:   50,
		MaxFrequencyHz:   1500,
		NoiseFloor:       0.01,
		Window:           Hann,
	}
}

// Detector implements two-stage pitch detection.
type Detector struct {
	cfg Config
}

// NewDetector validates cfg and returns a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.MinFrequencyHz <= 0 || cfg.MaxFrequencyHz <= cfg.MinFrequencyHz {
		return nil, fmt.Errorf("invalid voice band [%.1f, %.1f] Hz", cfg.MinFrequencyHz, cfg.MaxFrequencyHz)
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return nil, fmt.Errorf("min confidence must be in [0,1], got %.2f", cfg.MinConfidence)
	}
	if cfg.SilenceThreshold < 0 || cfg.NoiseFloor < 0 {
		return nil, fmt.Errorf("silence threshold and noise floor must not be negative")
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect estimates the fundamental frequency of samples captured at sampleRate.
// It returns ErrSilence for quiet buffers and ErrAmbiguous when neither stage
// is confident; both mean "no estimate" rather than failure.
func (d *Detector) Detect(samples []float32, sampleRate float64) (Estimate, error) {
	if len(samples) == 0 {
		return Estimate{}, ErrEmptyBuffer
	}
	if sampleRate <= 0 {
		return Estimate{}, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	if MeanAbsAmplitude(samples) < d.cfg.SilenceThreshold {
		return Estimate{}, ErrSilence
	}

	x := removeDC(samples)

	if freq, clarity, ok := d.autocorrelate(x, sampleRate); ok {
		if clarity >= d.cfg.MinConfidence && d.inBand(freq) {
			return Estimate{FrequencyHz: freq, Confidence: clarity, Method: MethodAutocorrelation}, nil
		}
	}

	if freq, confidence, ok := d.spectrumPeak(x, sampleRate); ok {
		return Estimate{FrequencyHz: freq, Confidence: confidence, Method: MethodSpectrum}, nil
	}

	return Estimate{}, ErrAmbiguous
}

func (d *Detector) inBand(f float64) bool {
	return f >= d.cfg.MinFrequencyHz && f <= d.cfg.MaxFrequencyHz
}

// MeanAbsAmplitude returns the mean of |x| over the buffer.
func MeanAbsAmplitude(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// removeDC converts to float64 and subtracts the buffer mean.
func removeDC(samples []float32) []float64 {
	x := make([]float64, len(samples))
	var mean float64
	for i, s := range samples {
		x[i] = float64(s)
		mean += x[i]
	}
	mean /= float64(len(x))
	for i := range x {
		x[i] -= mean
	}
	return x
}
