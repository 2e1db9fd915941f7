// Package live streams run progress to websocket clients.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

const (
	writeWait  = 5 * time.Second
	clientSend = 16
)

// Message is one frame of the feed.
type Message struct {
	Type             string  `json:"type"`
	RunID            string  `json:"runId"`
	ElapsedMS        int64   `json:"elapsedMs"`
	TargetVUs        int     `json:"targetVUs"`
	ActiveVUs        int     `json:"activeVUs"`
	Iterations       int64   `json:"iterations"`
	FailedIterations int64   `json:"failedIterations"`
	HTTPReqs         int64   `json:"httpReqs"`
	HTTPReqFailed    float64 `json:"httpReqFailed"`
	P95MS            float64 `json:"p95Ms"`
	ChecksRate       float64 `json:"checksRate"`
	Passed           *bool   `json:"passed,omitempty"`
}

func newMessage(typ, runID string, elapsed time.Duration, report *metrics.Report) Message {
	m := Message{Type: typ, RunID: runID, ElapsedMS: elapsed.Milliseconds()}
	if report == nil {
		return m
	}
	m.Iterations = report.Iterations
	m.FailedIterations = report.FailedIterations
	m.ChecksRate = report.ChecksRate()
	if t, ok := report.Trend(metrics.HTTPReqDuration); ok {
		m.HTTPReqs = t.Count
		m.HTTPReqFailed = t.FailRate()
		m.P95MS = float64(t.P95) / float64(time.Millisecond)
	}
	return m
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans progress messages out to every connected client. A client that
// falls behind loses messages rather than slowing the run down.
type Hub struct {
	upgrader websocket.Upgrader
	logger   log.FieldLogger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub creates a hub.
func NewHub(logger log.FieldLogger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.WithField("component", "live"),
		clients: make(map[*client]struct{}),
	}
}

// Publish sends a progress update. It has the signature of an
// engine.Observer.
func (h *Hub) Publish(p engine.Progress) {
	m := newMessage("progress", p.RunID, p.Elapsed, p.Report)
	m.TargetVUs = p.Target
	m.ActiveVUs = p.Active
	h.broadcast(m)
}

// Finish sends the final summary of a run.
func (h *Hub) Finish(result *engine.Result) {
	m := newMessage("summary", result.RunID, result.Duration, result.Report)
	m.ActiveVUs = 0
	m.TargetVUs = result.MaxVUs
	passed := result.Passed
	m.Passed = &passed
	h.broadcast(m)
}

func (h *Hub) broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode live message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client with a going-away close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.conn.Close()
	}
}

// ServeHTTP upgrades the connection and streams messages until the client
// goes away. The latest message is sent right after connecting.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSend)}

	h.mu.Lock()
	if h.last != nil {
		c.send <- h.last
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("live client connected")

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Reads only detect the close; clients have nothing to say.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("live client error")
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// Server serves the hub on /ws.
type Server struct {
	hub    *Hub
	server *http.Server
	ln     net.Listener
}

// Listen starts serving on addr, e.g. ":8089" or "127.0.0.1:0".
func Listen(addr string, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	s := &Server{
		hub:    hub,
		server: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hub.logger.WithError(err).Error("live server stopped")
		}
	}()
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops the server and disconnects websocket clients, which
// http.Server.Shutdown leaves alone once hijacked.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.hub.Close()
	return err
}
