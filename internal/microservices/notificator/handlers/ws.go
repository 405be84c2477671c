package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/notificator/repository"
)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	// timeouts counts consecutive timed-out writes; guarded by mu.
	timeouts int
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Hub owns the websocket connections of this process and is the fanout transport.
type Hub struct {
	registry     repository.RegistryInterface
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	lg           *zap.Logger

	mu    sync.RWMutex
	conns map[string]*client
}

func NewHub(registry repository.RegistryInterface, writeTimeout, pingInterval time.Duration, lg *zap.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Hub{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		lg:           lg,
		conns:        make(map[string]*client),
	}
}

// ServeWS upgrades the request and keeps the subscription until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warn("subscriber_upgrade_failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	c := &client{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	if err := h.registry.Register(r.Context(), id); err != nil {
		h.lg.Error("subscriber_register_failed", zap.String("connection_id", id), zap.Error(err))
		h.drop(id, c)
		return
	}
	h.lg.Info("subscriber_connected", zap.String("connection_id", id))

	go h.ping(c)
	h.read(c)

	h.drop(id, c)
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := h.registry.Unregister(ctx, id); err != nil {
		h.lg.Warn("subscriber_unregister_failed", zap.String("connection_id", id), zap.Error(err))
	}
	h.lg.Info("subscriber_disconnected", zap.String("connection_id", id))
}

// read drains the socket so control frames are handled; it returns when the peer goes away.
func (h *Hub) read(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) ping(c *client) {
	t := time.NewTicker(h.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) drop(id string, c *client) {
	h.mu.Lock()
	if cur, ok := h.conns[id]; ok && cur == c {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	c.close()
}

// maxWriteTimeouts is how many consecutive timed-out writes a connection survives.
const maxWriteTimeouts = 2

// Send writes one text frame. Unknown or closed connections report domain.ErrStaleSubscriber.
// A write that times out is an ordinary error the first time; a second consecutive
// timeout drops the connection as stale.
func (h *Hub) Send(ctx context.Context, id string, msg []byte) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok || c.closed() {
		return fmt.Errorf("connection %s: %w", id, domain.ErrStaleSubscriber)
	}

	deadline := time.Now().Add(h.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	_ = c.conn.SetWriteDeadline(deadline)
	err := c.conn.WriteMessage(websocket.TextMessage, msg)
	var ne net.Error
	timedOut := err != nil && errors.As(err, &ne) && ne.Timeout()
	if timedOut {
		c.timeouts++
	} else {
		c.timeouts = 0
	}
	timeouts := c.timeouts
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	if timedOut && timeouts < maxWriteTimeouts {
		return err
	}
	h.drop(id, c)
	return fmt.Errorf("connection %s: %w: %w", id, domain.ErrStaleSubscriber, err)
}

// Len is the number of open connections held by this process.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}
