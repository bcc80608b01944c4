package server

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/ipc"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// wsMessage is a frame pushed to clients: either a snapshot or the error of
// a command the client sent.
type wsMessage struct {
	Type     string      `json:"type"` // "snapshot" or "error"
	Snapshot interface{} `json:"snapshot,omitempty"`
	Error    string      `json:"error,omitempty"`
	Command  string      `json:"command,omitempty"`
}

// Hub tracks WebSocket clients. Each client owns a session subscription and
// receives a fresh snapshot on every change signal.
type Hub struct {
	srv      *Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn   *websocket.Conn
	errors chan wsMessage
	done   chan struct{}
	once   sync.Once
}

func newHub(srv *Server, origins []string) *Hub {
	h := &Hub{srv: srv, clients: make(map[*wsClient]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[origin] || u.Host == r.Host
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	c := &wsClient{conn: conn, errors: make(chan wsMessage, 8), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.srv.log(diaglog.LogEntry{Event: diaglog.EventWSConnect, Payload: map[string]interface{}{"clients": n}})

	go h.readLoop(c)
	h.writeLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.srv.log(diaglog.LogEntry{Event: diaglog.EventWSDisconnect})
}

// readLoop accepts {"command": "..."} frames in command-file syntax.
func (h *Hub) readLoop(c *wsClient) {
	defer c.close()
	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg struct {
			Command string `json:"command"`
		}
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		cmd, err := ipc.Parse(msg.Command)
		if err == nil && cmd.Verb == ipc.CmdQuit {
			err = errQuitOverWS
		}
		if err == nil && cmd.Verb != "" {
			err = h.srv.disp.Dispatch(cmd)
		}
		if err != nil {
			select {
			case c.errors <- wsMessage{Type: "error", Error: err.Error(), Command: msg.Command}:
			default:
			}
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	sess := h.srv.opts.Session
	changed, cancel := sess.Subscribe()
	defer cancel()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.close()

	send := func(m wsMessage) bool {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteJSON(m) == nil
	}

	if !send(wsMessage{Type: "snapshot", Snapshot: sess.Snapshot()}) {
		return
	}
	for {
		select {
		case <-changed:
			if !send(wsMessage{Type: "snapshot", Snapshot: sess.Snapshot()}) {
				return
			}
		case m := <-c.errors:
			if !send(m) {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}
