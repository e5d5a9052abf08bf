// SPDX-License-Identifier: MIT
/*
Package notes holds the static Note Range Table used by the ear-training
exercises and the matcher that maps a detected frequency onto it.

Each note owns an inclusive frequency band. Bands are ordered by pitch and
tile the table's range: the next band starts one centihertz above the
previous band's maximum, so a frequency is claimed by at most one note.
*/
package notes

import (
	"fmt"
	"math/rand/v2"
)

// maxGapHz is the largest allowed distance between the maximum of one band
// and the minimum of the next. Band edges are stored with 0.01 Hz resolution.
const maxGapHz = 0.011

// NoteRange is a single row of the table.
type NoteRange struct {
	ID             string  `json:"id" yaml:"id"`
	DisplayName    string  `json:"displayName" yaml:"display_name"`
	MinFrequencyHz float64 `json:"minFrequencyHz" yaml:"min_hz"`
	MaxFrequencyHz float64 `json:"maxFrequencyHz" yaml:"max_hz"`
}

// CenterHz returns the midpoint of the band.
func (n NoteRange) CenterHz() float64 {
	return (n.MinFrequencyHz + n.MaxFrequencyHz) / 2
}

// Contains reports whether f lies inside the inclusive band.
func (n NoteRange) Contains(f float64) bool {
	return f >= n.MinFrequencyHz && f <= n.MaxFrequencyHz
}

// String renders the band for logs and coaching text.
func (n NoteRange) String() string {
	return fmt.Sprintf("%s [%.2f-%.2f Hz]", n.DisplayName, n.MinFrequencyHz, n.MaxFrequencyHz)
}

// Table is an ordered, immutable set of note bands.
type Table struct {
	notes []NoteRange
	index map[string]int
}

// defaultRanges covers the natural notes C3..B4. Whole-tone neighbours meet at
// the intervening sharp, E-F and B-C meet at the quarter-tone point.
var defaultRanges = []NoteRange{
	{ID: "C3", DisplayName: "Do 3 (C3)", MinFrequencyHz: 127.09, MaxFrequencyHz: 138.59},
	{ID: "D3", DisplayName: "Re 3 (D3)", MinFrequencyHz: 138.60, MaxFrequencyHz: 155.56},
	{ID: "E3", DisplayName: "Mi 3 (E3)", MinFrequencyHz: 155.57, MaxFrequencyHz: 169.64},
	{ID: "F3", DisplayName: "Fa 3 (F3)", MinFrequencyHz: 169.65, MaxFrequencyHz: 184.98},
	{ID: "G3", DisplayName: "Sol 3 (G3)", MinFrequencyHz: 184.99, MaxFrequencyHz: 207.65},
	{ID: "A3", DisplayName: "La 3 (A3)", MinFrequencyHz: 207.66, MaxFrequencyHz: 233.08},
	{ID: "B3", DisplayName: "Si 3 (B3)", MinFrequencyHz: 233.09, MaxFrequencyHz: 254.17},
	{ID: "C4", DisplayName: "Do 4 (C4)", MinFrequencyHz: 254.18, MaxFrequencyHz: 277.18},
	{ID: "D4", DisplayName: "Re 4 (D4)", MinFrequencyHz: 277.19, MaxFrequencyHz: 311.12},
	{ID: "E4", DisplayName: "Mi 4 (E4)", MinFrequencyHz: 311.13, MaxFrequencyHz: 339.28},
	{ID: "F4", DisplayName: "Fa 4 (F4)", MinFrequencyHz: 339.29, MaxFrequencyHz: 369.99},
	{ID: "G4", DisplayName: "Sol 4 (G4)", MinFrequencyHz: 370.00, MaxFrequencyHz: 415.30},
	{ID: "A4", DisplayName: "La 4 (A4)", MinFrequencyHz: 415.31, MaxFrequencyHz: 466.16},
	{ID: "B4", DisplayName: "Si 4 (B4)", MinFrequencyHz: 466.17, MaxFrequencyHz: 508.35},
}

var defaultTable = mustTable(defaultRanges)

// DefaultTable returns the built-in table. The returned value is shared and
// must be treated as read-only; Notes returns a copy.
func DefaultTable() *Table {
	return defaultTable
}

// NewTable validates ranges and builds a table from them.
func NewTable(ranges []NoteRange) (*Table, error) {
	t := &Table{
		notes: make([]NoteRange, len(ranges)),
		index: make(map[string]int, len(ranges)),
	}
	copy(t.notes, ranges)
	for i, n := range t.notes {
		if _, dup := t.index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate note id %q", n.ID)
		}
		t.index[n.ID] = i
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func mustTable(ranges []NoteRange) *Table {
	t, err := NewTable(ranges)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate checks the ordering and tiling invariants.
func (t *Table) Validate() error {
	if len(t.notes) == 0 {
		return fmt.Errorf("note table is empty")
	}
	for i, n := range t.notes {
		if n.ID == "" {
			return fmt.Errorf("note %d has empty id", i)
		}
		if !(n.MinFrequencyHz < n.MaxFrequencyHz) {
			return fmt.Errorf("note %s: min %.2f Hz must be below max %.2f Hz", n.ID, n.MinFrequencyHz, n.MaxFrequencyHz)
		}
		if i == 0 {
			continue
		}
		prev := t.notes[i-1]
		gap := n.MinFrequencyHz - prev.MaxFrequencyHz
		if gap <= 0 {
			return fmt.Errorf("note %s overlaps %s", n.ID, prev.ID)
		}
		if gap > maxGapHz {
			return fmt.Errorf("gap of %.3f Hz between %s and %s", gap, prev.ID, n.ID)
		}
	}
	return nil
}

// Len returns the number of notes.
func (t *Table) Len() int {
	return len(t.notes)
}

// At returns the note at index i.
func (t *Table) At(i int) NoteRange {
	return t.notes[i]
}

// Notes returns a copy of the ordered rows.
func (t *Table) Notes() []NoteRange {
	out := make([]NoteRange, len(t.notes))
	copy(out, t.notes)
	return out
}

// Lookup finds a note by id.
func (t *Table) Lookup(id string) (NoteRange, bool) {
	i, ok := t.index[id]
	if !ok {
		return NoteRange{}, false
	}
	return t.notes[i], true
}

// IndexOf returns the position of id in the table, or -1.
func (t *Table) IndexOf(id string) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	return -1
}

// Random picks a note uniformly at random, never returning excludeID unless it
// is the only note in the table.
func (t *Table) Random(r *rand.Rand, excludeID string) NoteRange {
	if len(t.notes) == 1 {
		return t.notes[0]
	}
	skip := t.IndexOf(excludeID)
	if skip < 0 {
		return t.notes[r.IntN(len(t.notes))]
	}
	i := r.IntN(len(t.notes) - 1)
	if i >= skip {
		i++
	}
	return t.notes[i]
}
