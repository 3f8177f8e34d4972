package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/metrics"
	"github.com/gorilla/websocket"
)

// wsClient holds the latest unsent snapshot for one connection. A slow
// reader only ever misses intermediate snapshots, never the newest one.
type wsClient struct {
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func newWSClient() *wsClient {
	return &wsClient{send: make(chan []byte, 1), quit: make(chan struct{})}
}

func (c *wsClient) offer(payload []byte) {
	for {
		select {
		case c.send <- payload:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.quit) })
}

type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: make(map[*wsClient]struct{}), logger: logger}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
	c.close()
}

func (h *hub) broadcast(snap model.SyncSnapshot) {
	payload, err := json.Marshal(model.NewSnapshotView(snap))
	if err != nil {
		h.logger.Error("encode snapshot for websocket", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.offer(payload)
	}
	if len(h.clients) > 0 {
		metrics.SnapshotPublishTotal.WithLabelValues("websocket", "ok").Inc()
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := newWSClient()
	s.hub.add(client)
	defer s.hub.remove(client)

	current, err := json.Marshal(model.NewSnapshotView(s.sync.Snapshot()))
	if err != nil {
		return
	}
	client.offer(current)

	// The read side only exists to notice the peer going away.
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-client.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case payload := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
