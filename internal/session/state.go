// SPDX-License-Identifier: MIT
package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDevicePermissionDenied means the audio source could not be opened.
	ErrDevicePermissionDenied = errors.New("audio device permission denied")
	// ErrDeviceUnavailable means an open device went away mid-session.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrInvalidTransition marks an action that does not apply in the
	// current state. It is always recovered as a no-op.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrUnknownNote is returned by ChangeNote for an id not in the table.
	ErrUnknownNote = errors.New("unknown note")
)

// State is the session's position in the exercise loop.
type State int

const (
	Idle State = iota
	Listening
	MatchConfirmed
	Cooldown
	CoachingShown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case MatchConfirmed:
		return "match_confirmed"
	case Cooldown:
		return "cooldown"
	case CoachingShown:
		return "coaching_shown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= CoachingShown; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Detection is one pitch estimate delivered by the audio path.
type Detection struct {
	FrequencyHz float64
	Confidence  float64
	At          time.Time
}

// Event is an input to Machine.Apply.
type Event interface {
	event()
}

type (
	// Start begins listening on the current target.
	Start struct{}
	// Stop ends listening. Stopping while not listening is a no-op.
	Stop struct{}
	// Tick carries a detection from the audio path.
	Tick struct{ Detection Detection }
	// CooldownTick is one unit of the post-match countdown.
	CooldownTick struct{}
	// Advance skips the rest of the countdown.
	Advance struct{}
	// Retry resumes listening on the same target after coaching.
	Retry struct{}
	// ChangeNote switches target. An empty NoteID picks one at random.
	ChangeNote struct{ NoteID string }
	// DeviceOpened confirms an OpenDevice effect.
	DeviceOpened struct{}
	// DeviceFailed reports that an OpenDevice effect failed.
	DeviceFailed struct{ Err error }
	// DeviceLost reports that an open device stopped delivering audio.
	DeviceLost struct{ Err error }
)

func (Start) event()        {}
func (Stop) event()         {}
func (Tick) event()         {}
func (CooldownTick) event() {}
func (Advance) event()      {}
func (Retry) event()        {}
func (ChangeNote) event()   {}
func (DeviceOpened) event() {}
func (DeviceFailed) event() {}
func (DeviceLost) event()   {}

// Effect is a side effect requested by a transition, executed in order by
// the runtime.
type Effect int

const (
	EffectOpenDevice Effect = iota
	EffectCloseDevice
	EffectStartCooldown
	EffectCancelCooldown
	EffectNotify
)

func (e Effect) String() string {
	switch e {
	case EffectOpenDevice:
		return "open_device"
	case EffectCloseDevice:
		return "close_device"
	case EffectStartCooldown:
		return "start_cooldown"
	case EffectCancelCooldown:
		return "cancel_cooldown"
	case EffectNotify:
		return "notify"
	default:
		return fmt.Sprintf("effect(%d)", int(e))
	}
}
