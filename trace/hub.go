// Package trace streams decoded packet events to websocket observers. It is
// a one-way observability channel: sessions publish, subscribers listen,
// nothing flows back into the proxy path.
package trace

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"feslproxy/proxy"
)

// subscriberBuffer is the per-subscriber backlog. A subscriber that falls
// this far behind is dropped rather than back-pressuring the data pump.
const subscriberBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *subscriber) remote() string {
	if s.conn == nil {
		return "unknown"
	}
	return s.conn.RemoteAddr().String()
}

// Hub fans packet events out to connected websocket subscribers. It
// implements proxy.PacketTap.
type Hub struct {
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

// NewHub creates an empty trace hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:      logger.With(zap.String("component", "trace_hub")),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("trace upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, subscriberBuffer),
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info("trace subscriber connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("subscribers", count))

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// Publish implements proxy.PacketTap. It never blocks: subscribers that
// cannot keep up are disconnected.
func (h *Hub) Publish(event proxy.PacketEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subscribers) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshaling packet event failed", zap.Error(err))
		return
	}

	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			h.logger.Warn("dropping slow trace subscriber",
				zap.String("remote", sub.remote()))
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for payload := range sub.send {
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(sub)
			return
		}
	}
}

// readLoop exists only to observe the close; subscribers send nothing.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("trace subscriber read error", zap.Error(err))
			}
			h.remove(sub)
			return
		}
	}
}
