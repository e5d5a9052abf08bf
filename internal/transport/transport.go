// SPDX-License-Identifier: MIT
// Package transport exposes the session to the outside world: snapshots go
// out, control actions come in.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pitchcoach/internal/session"
)

// ErrUnknownAction is returned for action messages that name no action.
var ErrUnknownAction = errors.New("unknown action")

// Transport defines a generic interface for sending session data.
// Implementations should be thread-safe and must not block in Send.
type Transport interface {
	Send(data any) error
	Close() error
}

// Controller is the control surface of a running session.
// *session.Runtime implements it.
type Controller interface {
	Snapshot() session.Snapshot
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
	ChangeNote(ctx context.Context, noteID string) error
	RetryCurrentNote(ctx context.Context) error
	AdvanceToNext(ctx context.Context) error
	PlayReference()
}

var _ Controller = (*session.Runtime)(nil)

// Message types.
const (
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ActionMessage is the JSON a client sends to control the session.
type ActionMessage struct {
	Action string `json:"action"` // start, stop, change, retry, advance or play.
	NoteID string `json:"noteId,omitempty"`
}

// Dispatch routes an action to the controller.
func Dispatch(ctx context.Context, ctl Controller, msg ActionMessage) error {
	switch strings.ToLower(strings.TrimSpace(msg.Action)) {
	case "start":
		return ctl.StartListening(ctx)
	case "stop":
		return ctl.StopListening(ctx)
	case "change":
		return ctl.ChangeNote(ctx, msg.NoteID)
	case "retry":
		return ctl.RetryCurrentNote(ctx)
	case "advance":
		return ctl.AdvanceToNext(ctx)
	case "play":
		ctl.PlayReference()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
}

// Observe adapts a Transport to a session observer that sends every
// snapshot wrapped in a Message.
func Observe(t Transport) session.Observer {
	return session.ObserverFunc(func(s session.Snapshot) {
		_ = t.Send(Message{Type: TypeSnapshot, Snapshot: &s})
	})
}
