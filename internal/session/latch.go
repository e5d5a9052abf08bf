// SPDX-License-Identifier: MIT
package session

import "sync/atomic"

// Latch is a one-shot flag shared between the session loop and the audio
// callback. It is set when a match is confirmed; the callback reads it before
// doing any work so that buffers still in flight are discarded.
type Latch struct {
	set atomic.Bool
}

// Set arms the latch. It reports true only for the call that armed it.
func (l *Latch) Set() bool {
	return l.set.CompareAndSwap(false, true)
}

// IsSet reports whether the latch is armed.
func (l *Latch) IsSet() bool {
	return l.set.Load()
}

// Reset disarms the latch.
func (l *Latch) Reset() {
	l.set.Store(false)
}
