package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/sautisahihi/sauticore/internal/logging"
)

// event is one message on the /api/events websocket.
type event struct {
	Type       string `json:"type"` // "connectivity" or "resolution"
	Online     *bool  `json:"online,omitempty"`
	Capability string `json:"capability,omitempty"`
	Source     string `json:"source,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-device UI; cross-origin checks belong to a fronting proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

const clientBuffer = 16

// hub fans events out to connected websocket clients. Slow clients drop
// events rather than stall the broadcaster.
type hub struct {
	mu      sync.Mutex
	clients map[chan event]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[chan event]struct{})}
}

func (h *hub) register() chan event {
	ch := make(chan event, clientBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.clients[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(ch chan event) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(e event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// handleEvents upgrades to a websocket and streams hub events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_warn("gateway: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.hub.register()
	defer s.hub.unregister(ch)

	// Reader goroutine detects client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial state so the client renders the right banner immediately.
	online := s.gate.IsOnline()
	if err := conn.WriteJSON(event{Type: "connectivity", Online: &online}); err != nil {
		return
	}

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
