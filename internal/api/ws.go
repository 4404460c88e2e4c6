package api

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// viewerBuffer is how many tick reports may queue per viewer before new
// ones are dropped for it.
const viewerBuffer = 16

const viewerWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type viewer struct {
	id   uint64
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() { close(v.done) })
}

// viewerHub fans tick reports out to websocket viewers. Slow viewers miss
// reports instead of stalling the simulation.
type viewerHub struct {
	mu       sync.Mutex
	viewers  map[uint64]*viewer
	capacity int
	nextID   atomic.Uint64
	dropped  atomic.Uint64
}

func newViewerHub(capacity int) *viewerHub {
	return &viewerHub{viewers: make(map[uint64]*viewer), capacity: max(1, capacity)}
}

// Len returns the number of connected viewers.
func (h *viewerHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *viewerHub) join() (*viewer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.viewers) >= h.capacity {
		return nil, false
	}
	v := &viewer{id: h.nextID.Add(1), out: make(chan []byte, viewerBuffer), done: make(chan struct{})}
	h.viewers[v.id] = v
	return v, true
}

func (h *viewerHub) leave(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v.id)
	h.mu.Unlock()
	v.close()
}

// Broadcast queues data for every viewer without blocking.
func (h *viewerHub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.viewers {
		select {
		case v.out <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// CloseAll disconnects every viewer.
func (h *viewerHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.viewers {
		v.close()
		delete(h.viewers, id)
	}
}

// handleViewer streams every tick report as a JSON text message
// (GET /api/v1/ws). Inbound messages are ignored.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	v, ok := s.viewers.join()
	if !ok {
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}
	defer s.viewers.leave(v)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	slog.Info("viewer connected", "viewer", v.id)

	// Reader: only watches for the client going away.
	go func() {
		defer v.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-v.out:
			_ = conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Info("viewer write failed", "viewer", v.id, "error", err)
				return
			}
		case <-v.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			slog.Info("viewer disconnected", "viewer", v.id)
			return
		}
	}
}
