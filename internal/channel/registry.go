package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size.
	maxMessageSize = 64 << 10
)

// Dispatcher handles one inbound text message from a connection. It is called
// on the connection's read goroutine and must not block for long.
type Dispatcher func(connectionID string, msg []byte)

// Registry tracks live WebSocket connections by id and implements Channel on
// top of them.
type Registry struct {
	logger   *slog.Logger
	encoder  Encoder
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

type conn struct {
	id string
	ws *websocket.Conn

	// gorilla/websocket supports one concurrent writer.
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (c *conn) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewRegistry creates an empty Registry that encodes events with encoder.
func NewRegistry(logger *slog.Logger, encoder Encoder) *Registry {
	return &Registry{
		logger:  logger,
		encoder: encoder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Connections are unauthenticated; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// Accept upgrades the request to a WebSocket, registers it under a fresh id
// and feeds inbound text messages to dispatch. Accept blocks until the
// connection ends, after which the id is no longer addressable.
func (r *Registry) Accept(w http.ResponseWriter, req *http.Request, dispatch Dispatcher) error {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return fmt.Errorf("%w: upgrade failed: %w", errdefs.ErrChannel, err)
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		done: make(chan struct{}),
	}
	r.register(c)

	logger := r.logger.With("connection_id", c.id)
	logger.Info("connection opened", "remote", req.RemoteAddr)

	defer func() {
		r.unregister(c)
		c.stop()
		_ = ws.Close()
		logger.Info("connection closed")
	}()

	go r.ping(c)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("connection read failed", "error", err)
			}
			return nil
		}
		if mt != websocket.TextMessage {
			continue
		}
		dispatch(c.id, msg)
	}
}

func (r *Registry) ping(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// WriteControl may be called concurrently with other writes.
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// writeDeadline is writeWait from now, or ctx's deadline if that is sooner.
func writeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// Push encodes e and writes it to the connection as one text frame. The write
// gives up at ctx's deadline when it has one.
func (r *Registry) Push(ctx context.Context, connectionID string, e Event) error {
	c, ok := r.lookup(connectionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	}

	payload, err := r.encoder.Encode(e)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", errdefs.ErrChannel, e.Status, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(writeDeadline(ctx))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: write to %s: %w", errdefs.ErrChannel, connectionID, err)
	}
	return nil
}

// Close sends a normal close frame and terminates the connection. The id is
// unregistered immediately, so later pushes fail with ErrConnectionGone.
func (r *Registry) Close(ctx context.Context, connectionID string) error {
	c, ok := r.lookup(connectionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	}
	r.unregister(c)
	c.stop()

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := c.ws.WriteControl(websocket.CloseMessage, msg, writeDeadline(ctx))
	c.writeMu.Unlock()

	cerr := c.ws.Close()
	if werr != nil {
		return fmt.Errorf("%w: close frame to %s: %w", errdefs.ErrChannel, connectionID, werr)
	}
	if cerr != nil {
		return fmt.Errorf("%w: close %s: %w", errdefs.ErrChannel, connectionID, cerr)
	}
	return nil
}

// CloseAll terminates every registered connection, e.g. on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Close(ctx, id); err != nil {
			r.logger.Debug("close on shutdown failed", "connection_id", id, "error", err)
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) register(c *conn) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

// unregister removes c only if it is still the registered connection for its
// id, so the read loop and Close can both call it.
func (r *Registry) unregister(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[c.id]; ok && cur == c {
		delete(r.conns, c.id)
	}
}

func (r *Registry) lookup(id string) (*conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	return c, ok
}
