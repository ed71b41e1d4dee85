package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/phy-core/internal/logging"
	"github.com/signalsfoundry/phy-core/internal/phyloop"
	"github.com/signalsfoundry/phy-core/phymetrics"
)

const writeWait = time.Second

// hub fans report snapshots out to websocket clients on /api/stream.
type hub struct {
	log      logging.Logger
	upgrader websocket.Upgrader
	queue    chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub(log logging.Logger) *hub {
	h := &hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		queue:    make(chan []byte, 4),
		done:     make(chan struct{}),
		clients:  make(map[*websocket.Conn]struct{}),
	}
	go h.run()
	return h
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			h.broadcast(msg)
		}
	}
}

func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Clients never send; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for conn := range h.clients {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			conn.Close()
			delete(h.clients, conn)
		}
	})
}

func (m *Monitor) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := m.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Debug(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	m.hub.add(conn)
}

// Publish queues a report for every /api/stream client. It never blocks: a
// report is dropped when the previous ones have not been sent yet. It has the
// signature of a phyloop report hook.
func (m *Monitor) Publish(pm phymetrics.PHYMetrics, st phyloop.Status) {
	snap := BuildSnapshot(pm)
	snap.Status = &st
	msg, err := json.Marshal(snap)
	if err != nil {
		m.log.Debug(context.Background(), "dropping non-encodable report", logging.Err(err))
		return
	}
	select {
	case m.hub.queue <- msg:
	default:
	}
}
