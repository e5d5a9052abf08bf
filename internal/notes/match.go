// SPDX-License-Identifier: MIT
package notes

import "math"

// Match is the result of mapping a frequency onto the table.
type Match struct {
	Note  NoteRange
	Index int

	// InBand is false when no band contained the frequency and the nearest
	// band edge was used instead.
	InBand bool

	// CentsFromCenter is 1200*log2(f/center) against the matched band center.
	CentsFromCenter float64

	// DeviationHz is f minus the matched band center.
	DeviationHz float64
}

// Cents returns the interval from ref to f in cents. It is zero at f == ref,
// +1200 for one octave up and antisymmetric in its arguments.
func Cents(f, ref float64) float64 {
	return 1200 * math.Log2(f/ref)
}

// Match maps f to the note whose band contains it, or, failing that, to the
// note with the closest band edge. Ties go to the lower-indexed note.
//
// A non-finite f is never in band: +Inf maps to the highest note, -Inf and
// NaN to the lowest, with zero deviation so the result stays encodable.
func (t *Table) Match(f float64) Match {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		idx := 0
		if math.IsInf(f, 1) {
			idx = len(t.notes) - 1
		}
		return Match{Note: t.notes[idx], Index: idx}
	}

	idx := -1
	inBand := false
	for i, n := range t.notes {
		if n.Contains(f) {
			idx = i
			inBand = true
			break
		}
	}

	if idx < 0 {
		best := math.Inf(1)
		for i, n := range t.notes {
			d := math.Min(math.Abs(f-n.MinFrequencyHz), math.Abs(f-n.MaxFrequencyHz))
			if d < best {
				best = d
				idx = i
			}
		}
	}

	note := t.notes[idx]
	center := note.CenterHz()
	return Match{
		Note:            note,
		Index:           idx,
		InBand:          inBand,
		CentsFromCenter: Cents(f, center),
		DeviationHz:     f - center,
	}
}
