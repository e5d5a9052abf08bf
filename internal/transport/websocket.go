// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"pitchcoach/internal/log"

	"github.com/gorilla/websocket"
)

const (
	broadcastQueueSize = 256
	actionTimeout      = 2 * time.Second
	writeTimeout       = time.Second
)

// WebSocketTransport serves /ws. Every message passed to Send is broadcast
// as JSON to all clients; clients may send ActionMessages to control the
// session.
type WebSocketTransport struct {
	addr      string
	ctl       Controller
	upgrader  websocket.Upgrader
	clients   map[*client]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
	listener  net.Listener
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer.
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// NewWebSocketTransport creates a transport. ctl may be nil, in which case
// client actions are rejected. Call Start to listen, or mount Handler.
func NewWebSocketTransport(addr string, ctl Controller) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		ctl:  ctl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool; any page may connect.
			},
		},
		clients:   make(map[*client]struct{}),
		broadcast: make(chan any, broadcastQueueSize),
		done:      make(chan struct{}),
	}

	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving /ws.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// Start begins listening on the configured address.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("WebSocketTransport: failed to listen on %s: %w", wst.addr, err)
	}
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("WebSocketTransport: Serving ws://%s/ws", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener == nil {
		return wst.addr
	}
	return wst.listener.Addr().String()
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades the connection, sends the current snapshot and
// then reads actions until the client goes away.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}
	c := &client{conn: conn}

	if wst.ctl != nil {
		s := wst.ctl.Snapshot()
		if err := c.write(Message{Type: TypeSnapshot, Snapshot: &s}); err != nil {
			conn.Close()
			return
		}
	}

	wst.clientsMu.Lock()
	wst.clients[c] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected, total: %d", total)

	defer func() {
		wst.clientsMu.Lock()
		delete(wst.clients, c)
		total := len(wst.clients)
		wst.clientsMu.Unlock()
		conn.Close()
		log.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := wst.handleAction(data); err != nil {
			if werr := c.write(Message{Type: TypeError, Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

func (wst *WebSocketTransport) handleAction(data []byte) error {
	var msg ActionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid action message: %w", err)
	}
	if wst.ctl == nil {
		return fmt.Errorf("no session attached")
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	log.Debugf("WebSocketTransport: Action %q", msg.Action)
	return Dispatch(ctx, wst.ctl, msg)
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for c := range wst.clients {
				if err := c.write(data); err != nil {
					log.Warnf("WebSocketTransport: Error sending to client: %v", err)
					c.conn.Close()
					delete(wst.clients, c)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. A full queue drops the message.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return fmt.Errorf("WebSocketTransport: closed")
	default:
	}

	select {
	case wst.broadcast <- data:
	default:
		log.Debugf("WebSocketTransport: Broadcast queue full, dropping message")
	}
	return nil
}

// Close shuts down the WebSocket server
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Debugf("WebSocketTransport: Closing server")
		close(wst.done)

		// Close all client connections
		wst.clientsMu.Lock()
		for c := range wst.clients {
			c.conn.Close()
		}
		wst.clients = make(map[*client]struct{})
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
