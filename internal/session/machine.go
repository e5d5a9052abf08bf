// SPDX-License-Identifier: MIT
/*
Package session drives a single ear-training exercise.

Machine is the pure transition function: Apply takes an event, updates the
state and returns the side effects to perform (open or close the capture
device, arm or cancel the cooldown timer, notify observers). It never touches
a device or a timer itself, so every transition is testable in isolation.

Runtime is the adapter that owns a Machine on one goroutine, feeds it audio
ticks and control actions, and executes the effects it returns.
*/
package session

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"pitchcoach/internal/attempts"
	"pitchcoach/internal/coaching"
	"pitchcoach/internal/log"
	"pitchcoach/internal/notes"
)

// Config holds the exercise timing and thresholds.
type Config struct {
	FailureThreshold int           // Counted mismatches before coaching.
	DebounceWindow   time.Duration // Minimum spacing between counted mismatches.
	CooldownUnits    int           // Countdown length after a match.
	CooldownUnit     time.Duration // Duration of one countdown unit.
	AttemptCapacity  int           // Attempt ring buffer size.
	StartNoteID      string        // Initial target; empty picks one at random.
}

// DefaultConfig returns the stock exercise settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		DebounceWindow:   time.Second,
		CooldownUnits:    5,
		CooldownUnit:     time.Second,
		AttemptCapacity:  attempts.DefaultCapacity,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("debounce window must not be negative, got %v", c.DebounceWindow)
	}
	if c.CooldownUnits < 1 {
		return fmt.Errorf("cooldown units must be at least 1, got %d", c.CooldownUnits)
	}
	if c.CooldownUnit <= 0 {
		return fmt.Errorf("cooldown unit must be positive, got %v", c.CooldownUnit)
	}
	if c.AttemptCapacity < 1 {
		return fmt.Errorf("attempt capacity must be at least 1, got %d", c.AttemptCapacity)
	}
	return nil
}

// LastDetection is the most recent tick as seen by observers.
type LastDetection struct {
	FrequencyHz    float64   `json:"frequencyHz"`
	Confidence     float64   `json:"confidence"`
	MatchedNoteID  string    `json:"matchedNoteId"`
	DeviationCents float64   `json:"deviationCents"`
	InBand         bool      `json:"inBand"`
	At             time.Time `json:"at"`
}

// Snapshot is the observable session state.
type Snapshot struct {
	Target              notes.NoteRange     `json:"target"`
	State               State               `json:"state"`
	LastDetection       *LastDetection      `json:"lastDetection,omitempty"`
	Diagnosis           *coaching.Diagnosis `json:"diagnosis,omitempty"`
	CooldownRemaining   int                 `json:"cooldownRemaining"`
	ConsecutiveFailures int                 `json:"consecutiveFailures"`
	Attempts            int                 `json:"attempts"`
	Error               string              `json:"error,omitempty"`
}

// Machine is the session state machine. It is not safe for concurrent use
// apart from its Latch.
type Machine struct {
	cfg      Config
	table    *notes.Table
	analyzer *coaching.Analyzer
	rng      *rand.Rand
	tracker  *attempts.Tracker
	latch    Latch

	state        State
	target       notes.NoteRange
	failures     int
	cooldown     int
	lastMismatch time.Time

	deviceOpen    bool
	cooldownArmed bool

	diagnosis *coaching.Diagnosis
	last      *LastDetection
	err       error
}

// NewMachine returns a machine in Idle with its first target chosen.
func NewMachine(cfg Config, table *notes.Table, analyzer *coaching.Analyzer, rng *rand.Rand) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("session needs a non-empty note table")
	}
	tracker, err := attempts.NewTracker(cfg.AttemptCapacity)
	if err != nil {
		return nil, err
	}
	if analyzer == nil {
		analyzer = coaching.NewAnalyzer(table, coaching.DefaultThresholds())
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	m := &Machine{
		cfg:      cfg,
		table:    table,
		analyzer: analyzer,
		rng:      rng,
		tracker:  tracker,
		state:    Idle,
	}

	if cfg.StartNoteID != "" {
		n, ok := table.Lookup(cfg.StartNoteID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNote, cfg.StartNoteID)
		}
		m.target = n
	} else {
		m.target = table.Random(rng, "")
	}
	return m, nil
}

// Latch returns the match latch for the audio callback.
func (m *Machine) Latch() *Latch { return &m.latch }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Target returns the current target note.
func (m *Machine) Target() notes.NoteRange { return m.target }

// ConsecutiveFailures returns the counted mismatches since the last reset.
func (m *Machine) ConsecutiveFailures() int { return m.failures }

// CooldownRemaining returns the units left before auto-advance.
func (m *Machine) CooldownRemaining() int { return m.cooldown }

// Attempts returns the recorded attempts, oldest first.
func (m *Machine) Attempts() []attempts.Attempt { return m.tracker.Attempts() }

// Diagnosis returns the current diagnosis, or nil.
func (m *Machine) Diagnosis() *coaching.Diagnosis { return m.diagnosis }

// Snapshot returns a copy of the observable state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		Target:              m.target,
		State:               m.state,
		CooldownRemaining:   m.cooldown,
		ConsecutiveFailures: m.failures,
		Attempts:            m.tracker.Len(),
	}
	if m.last != nil {
		last := *m.last
		s.LastDetection = &last
	}
	if m.diagnosis != nil {
		d := *m.diagnosis
		d.Suggestions = append([]string(nil), m.diagnosis.Suggestions...)
		s.Diagnosis = &d
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	return s
}

// Apply performs one transition. Actions that do not apply to the current
// state return ErrInvalidTransition and change nothing.
func (m *Machine) Apply(ev Event) ([]Effect, error) {
	switch e := ev.(type) {
	case Start:
		return m.start()
	case Stop:
		return m.stop(), nil
	case Tick:
		return m.tick(e.Detection), nil
	case CooldownTick:
		return m.cooldownTick(), nil
	case Advance:
		return m.advanceAction()
	case Retry:
		return m.retry()
	case ChangeNote:
		return m.changeNote(e.NoteID)
	case DeviceOpened:
		return m.deviceOpened(), nil
	case DeviceFailed:
		return m.deviceFailed(e.Err), nil
	case DeviceLost:
		return m.deviceLost(e.Err), nil
	default:
		return nil, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
}

func (m *Machine) invalid(action string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, action, m.state)
}

func (m *Machine) start() ([]Effect, error) {
	if m.state != Idle {
		return nil, m.invalid("start")
	}
	m.state = Listening
	m.latch.Reset()
	m.lastMismatch = time.Time{}
	m.err = nil
	return []Effect{EffectOpenDevice, EffectNotify}, nil
}

func (m *Machine) stop() []Effect {
	if m.state != Listening {
		return nil
	}
	m.state = Idle
	return m.closeDevice(EffectNotify)
}

func (m *Machine) deviceOpened() []Effect {
	if m.state != Listening {
		// Opened after the session moved on.
		return []Effect{EffectCloseDevice}
	}
	m.deviceOpen = true
	return nil
}

func (m *Machine) deviceFailed(err error) []Effect {
	if m.state != Listening {
		return nil
	}
	if err == nil {
		err = ErrDevicePermissionDenied
	}
	m.state = Idle
	m.deviceOpen = false
	m.err = err
	log.Warnf("Session: Could not open audio device: %v", err)
	return []Effect{EffectNotify}
}

func (m *Machine) deviceLost(err error) []Effect {
	if !m.deviceOpen {
		return nil
	}
	switch {
	case err == nil:
		err = ErrDeviceUnavailable
	case !errors.Is(err, ErrDeviceUnavailable):
		err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	m.err = err
	log.Warnf("Session: %v", err)
	if m.state == Listening {
		m.state = Idle
	}
	return m.closeDevice(EffectNotify)
}

// closeDevice emits CloseDevice once per open device, followed by extra.
func (m *Machine) closeDevice(extra ...Effect) []Effect {
	var effects []Effect
	if m.deviceOpen {
		m.deviceOpen = false
		effects = append(effects, EffectCloseDevice)
	}
	return append(effects, extra...)
}

func (m *Machine) tick(d Detection) []Effect {
	if m.latch.IsSet() || m.state != Listening {
		return nil
	}

	match := m.table.Match(d.FrequencyHz)
	m.last = &LastDetection{
		FrequencyHz:    d.FrequencyHz,
		Confidence:     d.Confidence,
		MatchedNoteID:  match.Note.ID,
		DeviationCents: match.CentsFromCenter,
		InBand:         match.InBand,
		At:             d.At,
	}

	if !match.InBand {
		return []Effect{EffectNotify}
	}

	if match.Note.ID == m.target.ID {
		if !m.latch.Set() {
			return nil
		}
		m.state = MatchConfirmed
		m.cooldown = m.cfg.CooldownUnits
		m.cooldownArmed = true
		m.diagnosis = nil
		log.Infof("Session: Matched %s at %.2f Hz", m.target.ID, d.FrequencyHz)
		return m.closeDevice(EffectStartCooldown, EffectNotify)
	}

	if !m.lastMismatch.IsZero() && d.At.Sub(m.lastMismatch) < m.cfg.DebounceWindow {
		return []Effect{EffectNotify}
	}
	m.lastMismatch = d.At
	m.tracker.Record(attempts.Attempt{
		Timestamp:            d.At,
		TargetNoteID:         m.target.ID,
		DetectedNoteID:       match.Note.ID,
		FrequencyDeviationHz: match.DeviationHz,
	})
	m.failures++
	log.Debugf("Session: Mismatch %d/%d, heard %s (%.2f Hz) for %s",
		m.failures, m.cfg.FailureThreshold, match.Note.ID, d.FrequencyHz, m.target.ID)

	if m.failures < m.cfg.FailureThreshold {
		return []Effect{EffectNotify}
	}

	diag := m.analyzer.Analyze(m.tracker.Stats(), m.target)
	m.diagnosis = &diag
	m.state = CoachingShown
	log.Infof("Session: Coaching after %d misses on %s: %s", m.failures, m.target.ID, diag.Kind)
	return m.closeDevice(EffectNotify)
}

func (m *Machine) cooldownTick() []Effect {
	if !m.cooldownArmed || (m.state != MatchConfirmed && m.state != Cooldown) {
		return nil
	}
	m.state = Cooldown
	if m.cooldown > 0 {
		m.cooldown--
	}
	if m.cooldown > 0 {
		return []Effect{EffectNotify}
	}
	m.advance("")
	return []Effect{EffectCancelCooldown, EffectNotify}
}

func (m *Machine) advanceAction() ([]Effect, error) {
	if m.state != MatchConfirmed && m.state != Cooldown {
		return nil, m.invalid("advance")
	}
	m.advance("")
	return []Effect{EffectCancelCooldown, EffectNotify}, nil
}

func (m *Machine) retry() ([]Effect, error) {
	if m.state != CoachingShown {
		return nil, m.invalid("retry")
	}
	m.failures = 0
	m.diagnosis = nil
	m.lastMismatch = time.Time{}
	m.state = Listening
	m.latch.Reset()
	m.err = nil
	return []Effect{EffectOpenDevice, EffectNotify}, nil
}

func (m *Machine) changeNote(id string) ([]Effect, error) {
	if id != "" {
		if _, ok := m.table.Lookup(id); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNote, id)
		}
	}

	var effects []Effect
	if m.cooldownArmed {
		effects = append(effects, EffectCancelCooldown)
	}
	effects = append(effects, m.closeDevice(EffectNotify)...)
	m.advance(id)
	return effects, nil
}

// advance installs a new target and resets all per-target progress. An empty
// id picks uniformly among the other notes.
func (m *Machine) advance(id string) {
	completed := m.target
	if id != "" {
		m.target, _ = m.table.Lookup(id)
	} else {
		m.target = m.table.Random(m.rng, completed.ID)
	}

	m.state = Idle
	m.failures = 0
	m.cooldown = 0
	m.cooldownArmed = false
	m.deviceOpen = false
	m.lastMismatch = time.Time{}
	m.diagnosis = nil
	m.last = nil
	m.err = nil
	m.tracker.Clear()
	m.latch.Reset()
	log.Debugf("Session: Target %s -> %s", completed.ID, m.target.ID)
}
