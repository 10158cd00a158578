package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/adapters/metrics"
	"github.com/Go-routine-4595/sensorhub/model"
)

// EventName tags every live reading frame.
const EventName = "sensorData"

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is the JSON envelope written to viewers.
type Frame struct {
	Event string          `json:"event"`
	Data  model.LiveEvent `json:"data"`
}

// Hub is the live viewer registry. Broadcast delivers to whoever is connected
// right now; a viewer that cannot keep up loses events, nothing is replayed.
type Hub struct {
	mu       sync.RWMutex
	viewers  map[*viewer]struct{}
	closed   bool
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		viewers: make(map[*viewer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// viewers are served from any origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: m,
		logger:  logger.With().Str("component", "live-hub").Logger(),
	}
}

// ServeHTTP upgrades the request and registers the viewer until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(v) {
		conn.Close()
		return
	}
	h.logger.Info().Str("remote", r.RemoteAddr).Int("viewers", h.Count()).Msg("viewer connected")

	go h.writeLoop(v)
	h.readLoop(v)
}

func (h *Hub) Broadcast(ev model.LiveEvent) error {
	b, err := json.Marshal(Frame{Event: EventName, Data: ev})
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal live event"))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		select {
		case v.send <- b:
		default:
			h.logger.Debug().Str("remote", v.conn.RemoteAddr().String()).Msg("viewer too slow, event dropped")
		}
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	viewers := h.viewers
	h.viewers = make(map[*viewer]struct{})
	h.mu.Unlock()

	for v := range viewers {
		close(v.send)
	}
	h.metrics.SetViewers(0)
}

func (h *Hub) register(v *viewer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.viewers[v] = struct{}{}
	h.metrics.SetViewers(len(h.viewers))
	return true
}

func (h *Hub) unregister(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	close(v.send)
	h.metrics.SetViewers(len(h.viewers))
}

// readLoop discards inbound frames and notices when the viewer goes away.
func (h *Hub) readLoop(v *viewer) {
	defer func() {
		h.unregister(v)
		v.conn.Close()
		h.logger.Info().Int("viewers", h.Count()).Msg("viewer disconnected")
	}()

	v.conn.SetReadLimit(512)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ model.Broadcaster = (*Hub)(nil)
