// SPDX-License-Identifier: MIT
/*
Package coaching turns attempt statistics into a diagnosis of how a learner
is missing a target note, with suggestions sized to the error.

Analyze is pure: the same statistics and target always give the same text.
*/
package coaching

import (
	"fmt"
	"math"
	"time"

	"pitchcoach/internal/attempts"
	"pitchcoach/internal/notes"
)

// Kind is the diagnosis branch that matched.
type Kind int

const (
	KindEncouragement Kind = iota
	KindSharp
	KindFlat
	KindUnstable
	KindDrifting
	KindRushing
	KindWrongNote
)

func (k Kind) String() string {
	switch k {
	case KindSharp:
		return "sharp"
	case KindFlat:
		return "flat"
	case KindUnstable:
		return "unstable"
	case KindDrifting:
		return "drifting"
	case KindRushing:
		return "rushing"
	case KindWrongNote:
		return "wrong_note"
	default:
		return "encouragement"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind := KindEncouragement; kind <= KindWrongNote; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown diagnosis kind %q", text)
}

// Diagnosis is the coaching output for one trigger.
type Diagnosis struct {
	Kind        Kind           `json:"kind"`
	Message     string         `json:"message"`
	Suggestions []string       `json:"suggestions"`
	Stats       attempts.Stats `json:"stats"`
}

// Thresholds tune the classification.
type Thresholds struct {
	// OffsetToleranceHz allows a consistently sharp (flat) learner to dip this
	// far below (above) center on some attempts.
	OffsetToleranceHz float64
	MinConsistency    float64 // 1/max(stddev,1) below this is unstable.
	MaxDriftHz        float64
	MinPace           time.Duration
	SlightHz          float64 // |mean| up to this is a slight offset.
	ModerateHz        float64 // |mean| up to this is a moderate offset.
}

// DefaultThresholds returns the stock classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OffsetToleranceHz: 2,
		MinConsistency:    0.2,
		MaxDriftHz:        5,
		MinPace:           time.Second,
		SlightHz:          5,
		ModerateHz:        15,
	}
}

// Analyzer classifies attempt statistics against a target.
type Analyzer struct {
	table *notes.Table
	th    Thresholds
}

// NewAnalyzer returns an analyzer resolving wrong notes in table.
func NewAnalyzer(table *notes.Table, th Thresholds) *Analyzer {
	return &Analyzer{table: table, th: th}
}

const exerciseTip = "Exercise: play the reference tone, hum it with your mouth closed, then open to a relaxed \"ah\" and hold the note for three seconds."

// Analyze picks the first matching branch in order: sharp, flat, unstable,
// drifting, rushing, dominant wrong note, encouragement.
func (a *Analyzer) Analyze(s attempts.Stats, target notes.NoteRange) Diagnosis {
	d := a.classify(s, target)
	d.Stats = s
	d.Suggestions = append(d.Suggestions,
		fmt.Sprintf("Target %s: center %.2f Hz, band %.2f-%.2f Hz.",
			target.DisplayName, target.CenterHz(), target.MinFrequencyHz, target.MaxFrequencyHz),
		exerciseTip,
	)
	return d
}

// Consistency is 1/stddev with stddev floored at 1 Hz.
func Consistency(stddev float64) float64 {
	return 1 / math.Max(stddev, 1)
}

func (a *Analyzer) classify(s attempts.Stats, target notes.NoteRange) Diagnosis {
	th := a.th

	switch {
	case s.MeanDeviationHz > 0 && s.MinDeviationHz >= -th.OffsetToleranceHz:
		return Diagnosis{
			Kind:        KindSharp,
			Message:     fmt.Sprintf("You are singing above the pitch, about %.1f Hz high on average.", s.MeanDeviationHz),
			Suggestions: a.offsetSuggestions(s.MeanDeviationHz, "lower", "down"),
		}

	case s.MeanDeviationHz < 0 && s.MaxDeviationHz <= th.OffsetToleranceHz:
		return Diagnosis{
			Kind:        KindFlat,
			Message:     fmt.Sprintf("You are singing below the pitch, about %.1f Hz low on average.", -s.MeanDeviationHz),
			Suggestions: a.offsetSuggestions(s.MeanDeviationHz, "raise", "up"),
		}

	case Consistency(s.StdDevHz) < th.MinConsistency:
		return Diagnosis{
			Kind:    KindUnstable,
			Message: fmt.Sprintf("Your pitch is unstable: attempts vary by about %.1f Hz.", s.StdDevHz),
			Suggestions: []string{
				"Take a full breath before each attempt and support the sound from your diaphragm.",
				"Sing more quietly; volume swings pull the pitch around.",
			},
		}

	case s.DriftHz > th.MaxDriftHz:
		return Diagnosis{
			Kind:    KindDrifting,
			Message: fmt.Sprintf("Your pitch wanders while you sustain, shifting about %.1f Hz between attempts.", s.DriftHz),
			Suggestions: []string{
				"Hold one steady vowel and listen to whether the note stays put.",
				"Keep your jaw and tongue still once the note starts.",
			},
		}

	case s.Count >= 2 && s.Pace < th.MinPace:
		return Diagnosis{
			Kind:    KindRushing,
			Message: fmt.Sprintf("You are attempting very quickly, every %.1f s. Slow down and listen first.", s.Pace.Seconds()),
			Suggestions: []string{
				"Play the reference tone and wait until it has finished before singing.",
				"Imagine the note in your head for a moment, then sing.",
			},
		}

	case s.DominantWrongNoteCount >= 2 && 2*s.DominantWrongNoteCount >= s.Count:
		return a.wrongNote(s, target)
	}

	return Diagnosis{
		Kind:    KindEncouragement,
		Message: "Keep going, you are getting closer.",
		Suggestions: []string{
			"Listen to the reference tone once more before your next attempt.",
		},
	}
}

func (a *Analyzer) offsetSuggestions(mean float64, verb, direction string) []string {
	magnitude := math.Abs(mean)
	switch {
	case magnitude <= a.th.SlightHz:
		return []string{
			fmt.Sprintf("You are very close. Relax and %s the pitch just a touch.", verb),
		}
	case magnitude <= a.th.ModerateHz:
		return []string{
			fmt.Sprintf("%s the pitch a little: hum the reference, then match it without pushing.", capitalize(verb)),
			"Check your posture; tension in the neck shifts the pitch.",
		}
	default:
		return []string{
			fmt.Sprintf("You are far from the note. Start from a comfortable pitch and slide %s slowly until it matches the reference.", direction),
			"Play the reference several times and hum along before singing.",
			"Record yourself and compare with the reference.",
		}
	}
}

func (a *Analyzer) wrongNote(s attempts.Stats, target notes.NoteRange) Diagnosis {
	name := s.DominantWrongNoteID
	relation := "different from"
	if n, ok := a.table.Lookup(s.DominantWrongNoteID); ok {
		name = n.DisplayName
		switch {
		case n.CenterHz() > target.CenterHz():
			relation = "higher than"
		case n.CenterHz() < target.CenterHz():
			relation = "lower than"
		}
	}
	return Diagnosis{
		Kind: KindWrongNote,
		Message: fmt.Sprintf("You keep landing on %s, which is %s %s.",
			name, relation, target.DisplayName),
		Suggestions: []string{
			fmt.Sprintf("Sing %s and then %s back to back to feel the difference.", name, target.DisplayName),
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
