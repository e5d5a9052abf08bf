// SPDX-License-Identifier: MIT
// Package tui renders the trainer in the terminal with Bubble Tea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"pitchcoach/internal/session"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	actionTimeout = 2 * time.Second
	levelInterval = 100 * time.Millisecond
	centsBarWidth = 41 // Odd so the center has its own cell.
	centsRange    = 50.0
)

var (
	targetStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7D7D"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E8A33D")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5534B"))
	coachStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#E8A33D")).
			Padding(0, 1)
)

// Controller is the subset of the session runtime the exercise screen drives.
type Controller interface {
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
	ChangeNote(ctx context.Context, noteID string) error
	RetryCurrentNote(ctx context.Context) error
	AdvanceToNext(ctx context.Context) error
	PlayReference()
}

// Feed delivers snapshots from the session goroutine to the UI, keeping only
// the newest. It implements session.Observer.
type Feed struct {
	ch chan session.Snapshot
}

var _ session.Observer = (*Feed)(nil)

func NewFeed() *Feed {
	return &Feed{ch: make(chan session.Snapshot, 1)}
}

// Observe never blocks; an unread snapshot is replaced.
func (f *Feed) Observe(s session.Snapshot) {
	for {
		select {
		case f.ch <- s:
			return
		default:
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

type keyMap struct {
	Toggle  key.Binding
	Change  key.Binding
	Retry   key.Binding
	Advance key.Binding
	Play    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Change, k.Retry, k.Advance, k.Play, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Toggle:  key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "start/stop")),
	Change:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new note")),
	Retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
	Advance: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "advance")),
	Play:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play note")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ExerciseOptions tunes the exercise screen.
type ExerciseOptions struct {
	FailureThreshold int
	CooldownUnits    int
	Level            func() float32 // Input meter; nil hides it.
}

type (
	snapshotMsg session.Snapshot
	actionMsg   struct{ err error }
	levelMsg    time.Time
)

// ExerciseModel is the main training screen.
type ExerciseModel struct {
	ctl      Controller
	feed     *Feed
	opts     ExerciseOptions
	snap     session.Snapshot
	status   string
	level    float32
	width    int
	help     help.Model
	cooldown progress.Model
}

// NewExerciseModel builds the screen around a controller and its feed.
// initial is shown until the first snapshot arrives.
func NewExerciseModel(ctl Controller, feed *Feed, initial session.Snapshot, opts ExerciseOptions) ExerciseModel {
	if opts.CooldownUnits < 1 {
		opts.CooldownUnits = 1
	}
	return ExerciseModel{
		ctl:      ctl,
		feed:     feed,
		opts:     opts,
		snap:     initial,
		help:     help.New(),
		cooldown: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
}

// Snapshot returns the state currently displayed.
func (m ExerciseModel) Snapshot() session.Snapshot {
	return m.snap
}

func (m ExerciseModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForSnapshot()}
	if m.opts.Level != nil {
		cmds = append(cmds, levelTick())
	}
	return tea.Batch(cmds...)
}

func (m ExerciseModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.feed.ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func levelTick() tea.Cmd {
	return tea.Tick(levelInterval, func(t time.Time) tea.Msg { return levelMsg(t) })
}

// act runs a controller call off the UI goroutine.
func (m ExerciseModel) act(f func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{err: f(ctx)}
	}
}

func (m ExerciseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, m.waitForSnapshot()

	case actionMsg:
		m.status = ""
		if msg.err != nil {
			m.status = msg.err.Error()
		}

	case levelMsg:
		if m.opts.Level != nil {
			m.level = m.opts.Level()
		}
		return m, levelTick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			if m.snap.State == session.Listening {
				return m, m.act(m.ctl.StopListening)
			}
			return m, m.act(m.ctl.StartListening)
		case key.Matches(msg, keys.Change):
			return m, m.act(func(ctx context.Context) error { return m.ctl.ChangeNote(ctx, "") })
		case key.Matches(msg, keys.Retry):
			return m, m.act(m.ctl.RetryCurrentNote)
		case key.Matches(msg, keys.Advance):
			return m, m.act(m.ctl.AdvanceToNext)
		case key.Matches(msg, keys.Play):
			m.ctl.PlayReference()
		}
	}
	return m, nil
}

func (m ExerciseModel) View() string {
	var sb strings.Builder
	s := m.snap

	sb.WriteString(titleStyle.Render("Pitch Coach"))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Sing %s  %s\n",
		targetStyle.Render(s.Target.DisplayName),
		mutedStyle.Render(fmt.Sprintf("center %.2f Hz, band %.2f-%.2f Hz",
			s.Target.CenterHz(), s.Target.MinFrequencyHz, s.Target.MaxFrequencyHz)))
	fmt.Fprintf(&sb, "State: %s\n\n", stateLabel(s.State))

	if d := s.LastDetection; d != nil {
		heard := d.MatchedNoteID
		if heard == "" {
			heard = "?"
		}
		fmt.Fprintf(&sb, "Heard %s at %.1f Hz (%+.0f cents)\n", heard, d.FrequencyHz, d.DeviationCents)
		if heard == s.Target.ID {
			sb.WriteString(CentsBar(d.DeviationCents, centsBarWidth))
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString(mutedStyle.Render("Nothing heard yet"))
		sb.WriteString("\n")
	}

	if m.opts.Level != nil {
		fmt.Fprintf(&sb, "Input %s\n", LevelMeter(m.level, 20))
	}

	if m.opts.FailureThreshold > 0 {
		fmt.Fprintf(&sb, "Misses: %d/%d", s.ConsecutiveFailures, m.opts.FailureThreshold)
	} else {
		fmt.Fprintf(&sb, "Misses: %d", s.ConsecutiveFailures)
	}
	fmt.Fprintf(&sb, "  Attempts: %d\n", s.Attempts)

	if s.State == session.MatchConfirmed || s.State == session.Cooldown {
		ratio := float64(s.CooldownRemaining) / float64(m.opts.CooldownUnits)
		fmt.Fprintf(&sb, "\n%s Next note in %d  %s\n", goodStyle.Render("Match!"), s.CooldownRemaining, m.cooldown.ViewAs(ratio))
	}

	if dg := s.Diagnosis; dg != nil && s.State == session.CoachingShown {
		var body strings.Builder
		body.WriteString(warnStyle.Render(dg.Message))
		for _, line := range dg.Suggestions {
			body.WriteString("\n• " + line)
		}
		sb.WriteString("\n")
		sb.WriteString(coachStyle.Render(body.String()))
		sb.WriteString("\n")
	}

	if s.Error != "" {
		sb.WriteString("\n" + errorStyle.Render(s.Error) + "\n")
	}
	if m.status != "" {
		sb.WriteString("\n" + errorStyle.Render(m.status) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

func stateLabel(s session.State) string {
	switch s {
	case session.Listening:
		return goodStyle.Render("listening")
	case session.MatchConfirmed, session.Cooldown:
		return goodStyle.Render("matched")
	case session.CoachingShown:
		return warnStyle.Render("coaching")
	default:
		return mutedStyle.Render("idle (space to start)")
	}
}

// CentsBar draws a ±50 cent gauge with a marker at cents. Values beyond the
// range pin to the ends.
func CentsBar(cents float64, width int) string {
	if width < 3 {
		width = 3
	}
	mid := width / 2
	pos := mid + int(math.Round(cents/centsRange*float64(mid)))
	pos = max(0, min(width-1, pos))

	cells := []rune(strings.Repeat("─", width))
	cells[mid] = '┼'
	cells[pos] = '●'
	return "♭ " + string(cells) + " ♯"
}

// LevelMeter draws a peak level in [0, 1] as a bar of width cells.
func LevelMeter(level float32, width int) string {
	lvl := math.Max(0, math.Min(1, float64(level)))
	filled := int(math.Round(lvl * float64(width)))
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}

// RunExercise runs the exercise screen until the user quits or ctx ends.
func RunExercise(ctx context.Context, m ExerciseModel) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
