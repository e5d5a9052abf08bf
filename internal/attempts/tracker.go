// SPDX-License-Identifier: MIT
/*
Package attempts records failed pitch attempts in a bounded ring buffer and
derives the statistics the coaching analyzer works from.

The tracker is owned by a single session goroutine and is not safe for
concurrent use. Statistics are recomputed from the whole buffer on every call.
*/
package attempts

import (
	"fmt"
	"time"
)

// DefaultCapacity is the number of attempts kept before the oldest is evicted.
const DefaultCapacity = 20

// Attempt is one stably detected mismatch.
type Attempt struct {
	Timestamp      time.Time `json:"timestamp"`
	TargetNoteID   string    `json:"targetNoteId"`
	DetectedNoteID string    `json:"detectedNoteId"`

	// FrequencyDeviationHz is the detected frequency minus the center of the
	// detected (wrong) note's band.
	FrequencyDeviationHz float64 `json:"frequencyDeviationHz"`
}

// Tracker is a fixed-capacity FIFO of attempts.
type Tracker struct {
	buf   []Attempt
	start int
	size  int
}

// NewTracker returns a tracker holding at most capacity attempts.
func NewTracker(capacity int) (*Tracker, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("attempt capacity must be positive, got %d", capacity)
	}
	return &Tracker{buf: make([]Attempt, capacity)}, nil
}

// Record appends a, evicting the oldest attempt when full.
func (t *Tracker) Record(a Attempt) {
	if t.size < len(t.buf) {
		t.buf[(t.start+t.size)%len(t.buf)] = a
		t.size++
		return
	}
	t.buf[t.start] = a
	t.start = (t.start + 1) % len(t.buf)
}

// Len returns the number of attempts held.
func (t *Tracker) Len() int { return t.size }

// Cap returns the buffer capacity.
func (t *Tracker) Cap() int { return len(t.buf) }

// Clear drops every attempt.
func (t *Tracker) Clear() {
	clear(t.buf)
	t.start = 0
	t.size = 0
}

// Attempts returns the held attempts, oldest first.
func (t *Tracker) Attempts() []Attempt {
	out := make([]Attempt, t.size)
	for i := range t.size {
		out[i] = t.buf[(t.start+i)%len(t.buf)]
	}
	return out
}

// Stats summarises the current buffer.
func (t *Tracker) Stats() Stats {
	return Compute(t.Attempts())
}
