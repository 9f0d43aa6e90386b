package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livelist/livelist/pkg/types"
	"github.com/livelist/livelist/server/internal/hub"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultSendBuffer is the per-client outgoing message buffer depth.
	DefaultSendBuffer = 16
)

// ErrSlowClient is returned to the hub when a client's buffer is full.
var ErrSlowClient = errors.New("ws: send buffer full, client disconnected")

var errClientClosed = errors.New("ws: client closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream manages WebSocket client connections, each backed by one hub
// subscription.
type Stream struct {
	hub     *hub.Hub
	bufSize int

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	sub  atomic.Pointer[hub.Subscription]

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// New creates a Stream over hb. A non-positive bufSize uses
// DefaultSendBuffer.
func New(hb *hub.Hub, bufSize int) *Stream {
	if bufSize <= 0 {
		bufSize = DefaultSendBuffer
	}
	return &Stream{
		hub:     hb,
		bufSize: bufSize,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (s *Stream) Run(ctx context.Context) {
	<-ctx.Done()
	s.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// The initial snapshot is queued before the write pump starts, so it is
// always the first message. Blocks until the connection closes.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, s.bufSize),
	}
	s.register(c)
	defer s.unregister(c)

	sub := s.hub.Subscribe(func(ev types.ChangeEvent) error {
		return s.push(c, ev)
	})
	c.sub.Store(sub)
	defer s.hub.Unsubscribe(sub)
	slog.Debug("ws: client connected", "remote", r.RemoteAddr, "subscription", sub.ID())

	go c.writePump()
	c.readPump() // blocks until connection closes
	slog.Debug("ws: client disconnected", "remote", r.RemoteAddr, "subscription", sub.ID())
}

// Count returns the number of currently connected clients.
func (s *Stream) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// --- internal ---------------------------------------------------------------

func (s *Stream) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Stream) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

// push encodes ev and queues it for c. The first time c's buffer is full, c
// is disconnected and its subscription removed. Events that still reach a
// closed client are discarded.
func (s *Stream) push(c *client, ev types.ChangeEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	switch err := c.offer(data); err {
	case nil, errClientClosed:
		return nil
	default:
		s.unregister(c)
		s.hub.Unsubscribe(c.sub.Load())
		return err
	}
}

func (s *Stream) closeAll() {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.close()
	}
}

// offer queues data without blocking.
func (c *client) offer(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowClient
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (stream is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
