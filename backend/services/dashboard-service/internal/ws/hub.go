// Package ws pushes change events to dashboard subscribers over WebSockets.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parkpay/backend/services/dashboard-service/internal/http/middleware"
	"parkpay/backend/services/dashboard-service/internal/models"
)

// SnapshotFunc builds the event a new subscriber receives before any change event.
type SnapshotFunc func(ctx context.Context) (models.Event, error)

// Hub tracks subscribers and fans events out to them.
type Hub struct {
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	closed       bool
	seq          atomic.Uint64
	snapshot     SnapshotFunc
	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins only upgrades requests whose Origin header is listed. Requests without an
// Origin header (non-browser clients) are always accepted. No origins means any origin.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[strings.TrimSuffix(o, "/")] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.TrimSuffix(origin, "/")]
			return ok
		}
	}
}

// NewHub builds a Hub. snapshot may be nil.
func NewHub(snapshot SnapshotFunc, writeTimeout, pingInterval time.Duration, logger *zap.Logger, opts ...HubOption) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:      make(map[*Client]struct{}),
		snapshot:     snapshot,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish implements watcher.Sink. Delivery is best effort: a full subscriber buffer drops the
// event for that subscriber only.
func (h *Hub) Publish(ctx context.Context, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(data)
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS is the HTTP handler for the subscribe endpoint.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := fmt.Sprintf("sub-%d", h.seq.Add(1))
	client := newClient(id, conn, h.writeTimeout, h.pingInterval, h.logger, h.remove)

	// The snapshot is queued before registration so it is always the first frame.
	if h.snapshot != nil {
		if ev, err := h.snapshot(r.Context()); err != nil {
			h.logger.Warn("failed to build subscriber snapshot", zap.String("client_id", id), zap.Error(err))
		} else if data, err := json.Marshal(ev); err == nil {
			client.enqueue(data)
		}
	}

	if !h.add(client) {
		close(client.send)
		go client.writePump()
		return
	}

	go client.start()
	fields := []zap.Field{zap.String("client_id", id), zap.String("remote_addr", r.RemoteAddr)}
	if subject, ok := middleware.SubjectFromContext(r.Context()); ok {
		fields = append(fields, zap.String("subject", subject))
	}
	h.logger.Info("subscriber connected", fields...)
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// remove unregisters c and closes its send channel exactly once. The channel is only closed
// under the write lock, so Publish never sends on a closed channel.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("subscriber disconnected", zap.String("client_id", c.ID()))
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
