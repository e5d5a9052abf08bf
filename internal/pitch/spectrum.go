// SPDX-License-Identifier: MIT
package pitch

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"pitchcoach/pkg/bitint"
	"pitchcoach/pkg/utils"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied before the spectrum fallback.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Hann together with an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// windowCoefficients returns n coefficients of the selected window.
func windowCoefficients(n int, w WindowFunc) []float64 {
	coeffs := make([]float64, n)
	// Window funcs scale in place; start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs
}

// Spectrum computes single-sided magnitudes of x after windowing and
// zero-padding to the next power of two. Magnitudes are normalized so that a
// full-scale sine of amplitude A peaks at roughly A. It also returns the
// transform size used for bin-to-frequency conversion.
func Spectrum(x []float64, w WindowFunc) (magnitudes []float64, size int) {
	size = bitint.NextPowerOfTwo(len(x))
	coeffs := windowCoefficients(len(x), w)

	input := make([]float64, size)
	var gain float64
	for i, v := range x {
		input[i] = v * coeffs[i]
		gain += coeffs[i]
	}
	if gain == 0 {
		gain = 1
	}

	fft := fourier.NewFFT(size)
	out := fft.Coefficients(nil, input)

	magnitudes = make([]float64, len(out))
	for i, c := range out {
		magnitudes[i] = 2 * cmplx.Abs(c) / gain
	}
	return magnitudes, size
}

// BinFrequency returns the frequency of bin for a transform of size points.
func BinFrequency(bin, size int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(size)
}

// semitoneWidth is the width of one equal-tempered semitone relative to its
// lower edge.
var semitoneWidth = math.Exp2(1.0/12) - 1

// spectrumPeak picks the strongest bin inside the voice band. Confidence is
// the peak's share of the in-band energy. A peak whose bin is wider than a
// semitone at its own frequency cannot name a note and is rejected.
func (d *Detector) spectrumPeak(x []float64, sampleRate float64) (freq, confidence float64, ok bool) {
	mags, size := Spectrum(x, d.cfg.Window)

	lo := int(math.Ceil(d.cfg.MinFrequencyHz * float64(size) / sampleRate))
	hi := int(math.Floor(d.cfg.MaxFrequencyHz * float64(size) / sampleRate))
	if lo < 1 {
		lo = 1
	}
	if hi > len(mags)-1 {
		hi = len(mags) - 1
	}
	if lo > hi {
		return 0, 0, false
	}

	peak := utils.FindPeakBin(mags, lo, hi)
	if mags[peak] <= d.cfg.NoiseFloor {
		return 0, 0, false
	}

	var energy float64
	for _, m := range mags[lo : hi+1] {
		energy += m * m
	}
	if energy == 0 {
		return 0, 0, false
	}

	freq = BinFrequency(peak, size, sampleRate)
	if sampleRate/float64(size) > freq*semitoneWidth {
		return 0, 0, false
	}
	return freq, mags[peak] * mags[peak] / energy, true
}
