// SPDX-License-Identifier: MIT
package pitch

import "math"

// keyMaxThreshold selects the first key maximum whose height is within this
// fraction of the highest one. Lower values favour shorter periods.
const keyMaxThreshold = 0.9

// autocorrelate runs the normalized square difference function over lags up
// to the period of MinFrequencyHz and returns the frequency of the chosen key
// maximum together with its clarity. ok is false when no periodicity exists.
func (d *Detector) autocorrelate(x []float64, sampleRate float64) (freq, clarity float64, ok bool) {
	n := len(x)
	maxLag := int(math.Ceil(sampleRate / d.cfg.MinFrequencyHz))
	if maxLag > n/2 {
		maxLag = n / 2
	}
	if maxLag < 3 {
		return 0, 0, false
	}

	nsdf := make([]float64, maxLag+1)
	for tau := 0; tau <= maxLag; tau++ {
		var acf, m float64
		for j := 0; j < n-tau; j++ {
			acf += x[j] * x[j+tau]
			m += x[j]*x[j] + x[j+tau]*x[j+tau]
		}
		if m > 0 {
			nsdf[tau] = 2 * acf / m
		}
	}

	peaks := keyMaxima(nsdf)
	if len(peaks) == 0 {
		return 0, 0, false
	}

	highest := 0.0
	for _, p := range peaks {
		if nsdf[p] > highest {
			highest = nsdf[p]
		}
	}

	chosen := peaks[0]
	for _, p := range peaks {
		if nsdf[p] >= keyMaxThreshold*highest {
			chosen = p
			break
		}
	}

	period, height := parabolicPeak(nsdf, chosen)
	if period <= 0 {
		return 0, 0, false
	}
	if height > 1 {
		height = 1
	}
	return sampleRate / period, height, true
}

// keyMaxima returns the index of the highest point of every positive lobe
// after the zero-lag lobe. A lobe still open at the end is included.
func keyMaxima(nsdf []float64) []int {
	var peaks []int

	i := 1
	for i < len(nsdf) && nsdf[i] > 0 {
		i++
	}

	inLobe := false
	best := -1
	for ; i < len(nsdf); i++ {
		v := nsdf[i]
		if v > 0 {
			if !inLobe {
				inLobe = true
				best = i
			} else if v > nsdf[best] {
				best = i
			}
			continue
		}
		if inLobe {
			peaks = append(peaks, best)
			inLobe = false
		}
	}
	if inLobe && best > 0 && best < len(nsdf)-1 {
		peaks = append(peaks, best)
	}
	return peaks
}

// parabolicPeak refines the position and height of the maximum at i by
// fitting a parabola through its neighbours.
func parabolicPeak(y []float64, i int) (pos, height float64) {
	if i <= 0 || i >= len(y)-1 {
		return float64(i), y[i]
	}
	a, b, c := y[i-1], y[i], y[i+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(i), b
	}
	shift := 0.5 * (a - c) / den
	return float64(i) + shift, b - 0.25*(a-c)*shift
}
