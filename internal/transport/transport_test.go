// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"pitchcoach/internal/log"
	"pitchcoach/internal/notes"
	"pitchcoach/internal/session"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeController records the actions it receives.
type fakeController struct {
	mu       sync.Mutex
	calls    []string
	snapshot session.Snapshot
	err      error
}

func newFakeController() *fakeController {
	target, _ := notes.DefaultTable().Lookup("A3")
	return &fakeController{snapshot: session.Snapshot{Target: target, State: session.Idle}}
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Snapshot() session.Snapshot { return f.snapshot }
func (f *fakeController) StartListening(context.Context) error { return f.record("start") }
func (f *fakeController) StopListening(context.Context) error { return f.record("stop") }
func (f *fakeController) ChangeNote(_ context.Context, id string) error { return f.record("change:" + id) }
func (f *fakeController) RetryCurrentNote(context.Context) error { return f.record("retry") }
func (f *fakeController) AdvanceToNext(context.Context) error { return f.record("advance") }
func (f *fakeController) PlayReference() { f.record("play") }

func TestDispatch(t *testing.T) {
	tests := []struct {
		msg  ActionMessage
		want string
	}{
		{ActionMessage{Action: "start"}, "start"},
		{ActionMessage{Action: "STOP"}, "stop"},
		{ActionMessage{Action: " change ", NoteID: "C4"}, "change:C4"},
		{ActionMessage{Action: "retry"}, "retry"},
		{ActionMessage{Action: "advance"}, "advance"},
		{ActionMessage{Action: "play"}, "play"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ctl := newFakeController()
			if err := Dispatch(context.Background(), ctl, tt.msg); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if calls := ctl.Calls(); len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", calls, tt.want)
			}
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	ctl := newFakeController()
	if err := Dispatch(context.Background(), ctl, ActionMessage{Action: "sing"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action = %v, want ErrUnknownAction", err)
	}

	ctl.err = session.ErrInvalidTransition
	if err := Dispatch(context.Background(), ctl, ActionMessage{Action: "retry"}); !errors.Is(err, session.ErrInvalidTransition) {
		t.Errorf("controller error not returned: %v", err)
	}
}

type captureTransport struct {
	mu   sync.Mutex
	sent []any
}

func (c *captureTransport) Send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *captureTransport) Close() error { return nil }

func TestObserve(t *testing.T) {
	ct := &captureTransport{}
	obs := Observe(ct)

	obs.Observe(session.Snapshot{State: session.Listening, ConsecutiveFailures: 2})

	if len(ct.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(ct.sent))
	}
	msg, ok := ct.sent[0].(Message)
	if !ok || msg.Type != TypeSnapshot || msg.Snapshot == nil {
		t.Fatalf("sent %#v", ct.sent[0])
	}
	if msg.Snapshot.State != session.Listening || msg.Snapshot.ConsecutiveFailures != 2 {
		t.Errorf("snapshot = %+v", msg.Snapshot)
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetLevel(log.LevelDebug)
	t.Cleanup(func() {
		log.SetOutput(io.Discard)
		log.SetLevel(log.LevelInfo)
	})

	lt := NewLoggingTransport()
	target, _ := notes.DefaultTable().Lookup("G3")

	inputs := []any{
		Message{Type: TypeSnapshot, Snapshot: &session.Snapshot{Target: target}},
		Message{Type: TypeSnapshot, Snapshot: &session.Snapshot{
			Target:        target,
			LastDetection: &session.LastDetection{FrequencyHz: 196, MatchedNoteID: "G3"},
		}},
		map[string]int{"x": 1},
		func() {}, // Not marshalable.
	}
	for _, in := range inputs {
		if err := lt.Send(in); err != nil {
			t.Errorf("Send(%T) = %v", in, err)
		}
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if !strings.Contains(buf.String(), "heard=196.00Hz note=G3") {
		t.Errorf("detection not logged:\n%s", buf.String())
	}

	// Nothing is formatted above debug level.
	buf.Reset()
	log.SetLevel(log.LevelInfo)
	if err := lt.Send(inputs[1]); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("logged at info level: %q", buf.String())
	}
}
