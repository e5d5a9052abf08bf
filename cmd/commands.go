// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"pitchcoach/internal/attempts"
	"pitchcoach/internal/audio"
	"pitchcoach/internal/coaching"
	"pitchcoach/internal/config"
	"pitchcoach/internal/notes"
	"pitchcoach/internal/pitch"
	"pitchcoach/pkg/build"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// PrintNotes writes the note range table.
func PrintNotes(w io.Writer, t *notes.Table) error {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "Name", "Min Hz", "Center Hz", "Max Hz").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for i, n := range t.Notes() {
		tbl.Row(fmt.Sprint(i), n.ID, n.DisplayName,
			fmt.Sprintf("%.2f", n.MinFrequencyHz),
			fmt.Sprintf("%.2f", n.CenterHz()),
			fmt.Sprintf("%.2f", n.MaxFrequencyHz))
	}
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

// PrintVersion writes the build information.
func PrintVersion(w io.Writer) error {
	_, err := fmt.Fprintln(w, build.GetBuildFlags())
	return err
}

// TraceLine is the detection result for one buffer of an analysed file.
type TraceLine struct {
	Offset   time.Duration
	Estimate pitch.Estimate
	Match    notes.Match
	Err      error // Silence or ambiguity; Estimate and Match are unset.
}

// Report is the outcome of analysing a recording.
type Report struct {
	Path      string
	Duration  time.Duration
	Lines     []TraceLine
	Voiced    int
	Target    *notes.NoteRange
	Matched   bool // A buffer landed in the target band.
	Stats     attempts.Stats
	Diagnosis *coaching.Diagnosis
}

// Analyze runs the detector over path one buffer at a time. When the
// configuration names a start note, in-band misses before the first match
// are scored against it the way a live session would.
func Analyze(path string, cfg *config.Config, t *notes.Table) (*Report, error) {
	dc, err := cfg.DetectorConfig()
	if err != nil {
		return nil, err
	}
	det, err := pitch.NewDetector(dc)
	if err != nil {
		return nil, err
	}

	clip, err := audio.ReadWAV(path)
	if err != nil {
		return nil, err
	}
	frames := cfg.Audio.FramesPerBuffer
	if need := cfg.MinFramesPerBuffer(clip.SampleRate); frames < need {
		return nil, fmt.Errorf("frames_per_buffer %d is too short for a %.0f Hz recording, need at least %d", frames, clip.SampleRate, need)
	}

	rep := &Report{Path: path, Duration: clip.Duration()}

	var tracker *attempts.Tracker
	if id := cfg.Session.StartNote; id != "" {
		target, ok := t.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown note %q", id)
		}
		rep.Target = &target
		if tracker, err = attempts.NewTracker(cfg.Session.AttemptCapacity); err != nil {
			return nil, err
		}
	}

	start := time.Unix(0, 0)
	var lastMiss time.Duration = -1

	for i, buf := range clip.Buffers(frames) {
		offset := time.Duration(float64(i*frames) / clip.SampleRate * float64(time.Second))
		line := TraceLine{Offset: offset}

		est, err := det.Detect(buf, clip.SampleRate)
		if err != nil {
			line.Err = err
			rep.Lines = append(rep.Lines, line)
			continue
		}
		line.Estimate = est
		line.Match = t.Match(est.FrequencyHz)
		rep.Lines = append(rep.Lines, line)
		rep.Voiced++

		if rep.Target == nil || rep.Matched || !line.Match.InBand {
			continue
		}
		if line.Match.Note.ID == rep.Target.ID {
			rep.Matched = true
			continue
		}
		if lastMiss >= 0 && offset-lastMiss < cfg.Session.DebounceWindow {
			continue
		}
		lastMiss = offset
		tracker.Record(attempts.Attempt{
			Timestamp:            start.Add(offset),
			TargetNoteID:         rep.Target.ID,
			DetectedNoteID:       line.Match.Note.ID,
			FrequencyDeviationHz: line.Match.DeviationHz,
		})
	}

	if tracker != nil && tracker.Len() > 0 {
		rep.Stats = tracker.Stats()
		d := coaching.NewAnalyzer(t, cfg.CoachingThresholds()).Analyze(rep.Stats, *rep.Target)
		rep.Diagnosis = &d
	}
	return rep, nil
}

// Print writes the trace followed by a summary.
func (r *Report) Print(w io.Writer) error {
	fmt.Fprintf(w, "%s: %v, %d buffers, %d voiced\n\n", r.Path, r.Duration.Round(time.Millisecond), len(r.Lines), r.Voiced)

	for _, l := range r.Lines {
		at := fmt.Sprintf("%8.3fs", l.Offset.Seconds())
		switch {
		case errors.Is(l.Err, pitch.ErrSilence):
			fmt.Fprintf(w, "%s  silence\n", at)
		case l.Err != nil:
			fmt.Fprintf(w, "%s  -        %v\n", at, l.Err)
		default:
			band := "in band"
			if !l.Match.InBand {
				band = "nearest"
			}
			fmt.Fprintf(w, "%s  %7.2f Hz  conf %.2f  %-15s  %-3s %+6.1f cents  %s\n",
				at, l.Estimate.FrequencyHz, l.Estimate.Confidence, l.Estimate.Method,
				l.Match.Note.ID, l.Match.CentsFromCenter, band)
		}
	}

	if r.Target == nil {
		return nil
	}
	fmt.Fprintf(w, "\nTarget %s: ", r.Target.DisplayName)
	if r.Matched {
		fmt.Fprint(w, "matched")
	} else {
		fmt.Fprint(w, "not matched")
	}
	fmt.Fprintf(w, " after %d counted miss(es)\n", r.Stats.Count)

	if d := r.Diagnosis; d != nil {
		fmt.Fprintf(w, "%s: %s\n", d.Kind, d.Message)
		for _, s := range d.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	return nil
}
