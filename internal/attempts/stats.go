// SPDX-License-Identifier: MIT
package attempts

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats describes how a learner has been missing the target.
type Stats struct {
	Count int `json:"count"`

	MeanDeviationHz float64 `json:"meanDeviationHz"`
	StdDevHz        float64 `json:"stdDevHz"` // Population standard deviation.
	MinDeviationHz  float64 `json:"minDeviationHz"`
	MaxDeviationHz  float64 `json:"maxDeviationHz"`

	// DominantWrongNoteID is the most frequently detected wrong note. Ties go
	// to the note recorded first.
	DominantWrongNoteID    string `json:"dominantWrongNoteId,omitempty"`
	DominantWrongNoteCount int    `json:"dominantWrongNoteCount"`

	// DriftHz is the mean absolute change in deviation between consecutive
	// attempts. Zero with fewer than two attempts.
	DriftHz float64 `json:"driftHz"`

	// Pace is the mean time between consecutive attempts. Zero with fewer
	// than two attempts.
	Pace time.Duration `json:"pace"`
}

// Compute derives Stats from attempts ordered oldest first.
func Compute(attempts []Attempt) Stats {
	n := len(attempts)
	if n == 0 {
		return Stats{}
	}

	devs := make([]float64, n)
	for i, a := range attempts {
		devs[i] = a.FrequencyDeviationHz
	}

	mean, std := stat.PopMeanStdDev(devs, nil)
	s := Stats{
		Count:           n,
		MeanDeviationHz: mean,
		StdDevHz:        std,
		MinDeviationHz:  floats.Min(devs),
		MaxDeviationHz:  floats.Max(devs),
	}
	s.DominantWrongNoteID, s.DominantWrongNoteCount = dominantNote(attempts)

	if n < 2 {
		return s
	}

	steps := make([]float64, n-1)
	floats.SubTo(steps, devs[1:], devs[:n-1])
	for i, d := range steps {
		steps[i] = math.Abs(d)
	}
	s.DriftHz = stat.Mean(steps, nil)

	gaps := make([]float64, n-1)
	for i := 1; i < n; i++ {
		gaps[i-1] = float64(attempts[i].Timestamp.Sub(attempts[i-1].Timestamp))
	}
	s.Pace = time.Duration(math.Round(stat.Mean(gaps, nil)))

	return s
}

func dominantNote(attempts []Attempt) (string, int) {
	counts := make(map[string]int, len(attempts))
	order := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if _, seen := counts[a.DetectedNoteID]; !seen {
			order = append(order, a.DetectedNoteID)
		}
		counts[a.DetectedNoteID]++
	}

	best, bestCount := "", 0
	for _, id := range order {
		if counts[id] > bestCount {
			best, bestCount = id, counts[id]
		}
	}
	return best, bestCount
}
