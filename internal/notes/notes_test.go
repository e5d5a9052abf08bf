// SPDX-License-Identifier: MIT
package notes

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestDefaultTableValid(t *testing.T) {
	table := DefaultTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	if table.Len() != 14 {
		t.Errorf("expected 14 notes, got %d", table.Len())
	}

	g3, ok := table.Lookup("G3")
	if !ok {
		t.Fatal("G3 missing from default table")
	}
	if g3.MinFrequencyHz != 184.99 || g3.MaxFrequencyHz != 207.65 {
		t.Errorf("G3 band = [%.2f, %.2f], want [184.99, 207.65]", g3.MinFrequencyHz, g3.MaxFrequencyHz)
	}
	if math.Abs(g3.CenterHz()-196.32) > 0.001 {
		t.Errorf("G3 center = %.3f, want 196.32", g3.CenterHz())
	}
}

func TestNewTableRejectsBadRanges(t *testing.T) {
	tests := []struct {
		name   string
		ranges []NoteRange
		substr string
	}{
		{"Empty", nil, "empty"},
		{"Inverted band", []NoteRange{{ID: "X", MinFrequencyHz: 200, MaxFrequencyHz: 100}}, "must be below"},
		{"Overlap", []NoteRange{
			{ID: "A", MinFrequencyHz: 100, MaxFrequencyHz: 200},
			{ID: "B", MinFrequencyHz: 150, MaxFrequencyHz: 300},
		}, "overlaps"},
		{"Gap", []NoteRange{
			{ID: "A", MinFrequencyHz: 100, MaxFrequencyHz: 200},
			{ID: "B", MinFrequencyHz: 210, MaxFrequencyHz: 300},
		}, "gap"},
		{"Duplicate id", []NoteRange{
			{ID: "A", MinFrequencyHz: 100, MaxFrequencyHz: 200},
			{ID: "A", MinFrequencyHz: 200.01, MaxFrequencyHz: 300},
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.ranges)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.substr)
			}
		})
	}
}

func TestMatchInBandIncludingEdges(t *testing.T) {
	table := DefaultTable()
	for i, n := range table.Notes() {
		for _, f := range []float64{n.MinFrequencyHz, n.CenterHz(), n.MaxFrequencyHz} {
			m := table.Match(f)
			if !m.InBand {
				t.Errorf("%s: f=%.2f reported out of band", n.ID, f)
			}
			if m.Note.ID != n.ID || m.Index != i {
				t.Errorf("f=%.2f matched %s (index %d), want %s (index %d)", f, m.Note.ID, m.Index, n.ID, i)
			}
		}
	}
}

func TestMatchNearestEdge(t *testing.T) {
	table := DefaultTable()
	first := table.At(0)
	last := table.At(table.Len() - 1)

	tests := []struct {
		name string
		f    float64
		want string
	}{
		{"Below table", 60, first.ID},
		{"Just below table", first.MinFrequencyHz - 0.5, first.ID},
		{"Above table", 1200, last.ID},
		{"Centihertz gap", 184.983, "F3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := table.Match(tt.f)
			if m.InBand {
				t.Errorf("f=%.3f should not be in band", tt.f)
			}
			if m.Note.ID != tt.want {
				t.Errorf("f=%.3f matched %s, want %s", tt.f, m.Note.ID, tt.want)
			}
		})
	}
}

func TestMatchNonFinite(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name string
		f    float64
		want int
	}{
		{"+Inf", math.Inf(1), table.Len() - 1},
		{"-Inf", math.Inf(-1), 0},
		{"NaN", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := table.Match(tt.f)
			if m.InBand {
				t.Error("non-finite frequency reported in band")
			}
			if m.Index != tt.want || m.Note.ID != table.At(tt.want).ID {
				t.Errorf("matched %s at %d, want index %d", m.Note.ID, m.Index, tt.want)
			}
			if m.CentsFromCenter != 0 || m.DeviationHz != 0 {
				t.Errorf("deviation = %v cents, %v Hz; want zero", m.CentsFromCenter, m.DeviationHz)
			}
		})
	}
}

func TestMatchTieGoesToLowerIndex(t *testing.T) {
	table, err := NewTable([]NoteRange{
		{ID: "lo", MinFrequencyHz: 100, MaxFrequencyHz: 110},
		{ID: "hi", MinFrequencyHz: 110.0078125, MaxFrequencyHz: 120},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Dyadic edges keep both distances exactly equal.
	m := table.Match(110.00390625)
	if m.Note.ID != "lo" {
		t.Errorf("tie matched %s, want lo", m.Note.ID)
	}
}

func TestCents(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		ref  float64
		want float64
	}{
		{"Unison", 196.32, 196.32, 0},
		{"Octave up", 440, 220, 1200},
		{"Octave down", 220, 440, -1200},
		{"Semitone", 440 * math.Pow(2, 1.0/12), 440, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cents(tt.f, tt.ref)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cents(%.3f, %.3f) = %.6f, want %.6f", tt.f, tt.ref, got, tt.want)
			}
			if back := Cents(tt.ref, tt.f); math.Abs(back+got) > 1e-9 {
				t.Errorf("Cents not antisymmetric: %.6f vs %.6f", got, back)
			}
		})
	}
}

func TestMatchAtCenterIsZeroCents(t *testing.T) {
	table := DefaultTable()
	for _, n := range table.Notes() {
		m := table.Match(n.CenterHz())
		if math.Abs(m.CentsFromCenter) > 1e-9 || math.Abs(m.DeviationHz) > 1e-9 {
			t.Errorf("%s: center produced %.6f cents / %.6f Hz", n.ID, m.CentsFromCenter, m.DeviationHz)
		}
	}
}

func TestRandomExcludesCompletedNote(t *testing.T) {
	table := DefaultTable()
	r := rand.New(rand.NewPCG(1, 2))
	seen := map[string]bool{}
	for range 2000 {
		n := table.Random(r, "G3")
		if n.ID == "G3" {
			t.Fatal("Random returned the excluded note")
		}
		seen[n.ID] = true
	}
	if len(seen) != table.Len()-1 {
		t.Errorf("expected every other note to be picked, saw %d of %d", len(seen), table.Len()-1)
	}
}

func TestMatchNoAllocs(t *testing.T) {
	table := DefaultTable()
	allocs := testing.AllocsPerRun(100, func() {
		_ = table.Match(215)
		_ = table.Match(42)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations in Match, got %.1f", allocs)
	}
}
