// SPDX-License-Identifier: MIT
package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pitchcoach/internal/session"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestServer(t *testing.T, ctl Controller) (*WebSocketTransport, *httptest.Server) {
	t.Helper()
	wst := NewWebSocketTransport("127.0.0.1:0", ctl)
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(func() {
		wst.Close()
		srv.Close()
	})
	return wst, srv
}

func TestWebSocketInitialSnapshot(t *testing.T) {
	ctl := newFakeController()
	_, srv := newTestServer(t, ctl)

	msg := readMessage(t, dial(t, srv))
	if msg.Type != TypeSnapshot || msg.Snapshot == nil {
		t.Fatalf("first message = %+v", msg)
	}
	if msg.Snapshot.Target.ID != "A3" || msg.Snapshot.State != session.Idle {
		t.Errorf("snapshot = %+v", msg.Snapshot)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	ctl := newFakeController()
	wst, srv := newTestServer(t, ctl)

	a, b := dial(t, srv), dial(t, srv)
	readMessage(t, a)
	readMessage(t, b)
	waitFor(t, func() bool { return wst.Clients() == 2 })

	obs := Observe(wst)
	obs.Observe(session.Snapshot{State: session.Cooldown, CooldownRemaining: 4})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		if msg.Snapshot == nil || msg.Snapshot.State != session.Cooldown || msg.Snapshot.CooldownRemaining != 4 {
			t.Errorf("broadcast = %+v", msg)
		}
	}
}

func TestWebSocketActions(t *testing.T) {
	ctl := newFakeController()
	_, srv := newTestServer(t, ctl)

	conn := dial(t, srv)
	readMessage(t, conn)

	for _, action := range []string{
		`{"action":"start"}`,
		`{"action":"change","noteId":"C4"}`,
		`{"action":"play"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(action)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}

	waitFor(t, func() bool { return len(ctl.Calls()) == 3 })
	calls := ctl.Calls()
	if calls[0] != "start" || calls[1] != "change:C4" || calls[2] != "play" {
		t.Errorf("calls = %v", calls)
	}
}

func TestWebSocketActionErrors(t *testing.T) {
	ctl := newFakeController()
	ctl.err = session.ErrInvalidTransition
	_, srv := newTestServer(t, ctl)

	conn := dial(t, srv)
	readMessage(t, conn)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"retry"}`))
	if msg := readMessage(t, conn); msg.Type != TypeError || !strings.Contains(msg.Error, "invalid session transition") {
		t.Errorf("reply = %+v", msg)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	if msg := readMessage(t, conn); msg.Type != TypeError || !strings.Contains(msg.Error, "invalid action message") {
		t.Errorf("reply = %+v", msg)
	}
}

func TestWebSocketWithoutController(t *testing.T) {
	_, srv := newTestServer(t, nil)

	conn := dial(t, srv)
	conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"start"}`))
	if msg := readMessage(t, conn); msg.Type != TypeError {
		t.Errorf("reply = %+v, want error", msg)
	}
}

func TestWebSocketDisconnectAndClose(t *testing.T) {
	wst, srv := newTestServer(t, newFakeController())

	conn := dial(t, srv)
	readMessage(t, conn)
	waitFor(t, func() bool { return wst.Clients() == 1 })

	conn.Close()
	waitFor(t, func() bool { return wst.Clients() == 0 })

	if err := wst.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := wst.Send(Message{Type: TypeSnapshot}); err == nil {
		t.Error("Send after Close should fail")
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestWebSocketStart(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0", newFakeController())
	defer wst.Close()

	if err := wst.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := wst.Addr()
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("Addr() = %s, want resolved port", addr)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if msg := readMessage(t, conn); msg.Type != TypeSnapshot {
		t.Errorf("first message = %+v", msg)
	}
}
