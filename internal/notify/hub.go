package notify

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const subscriberBuffer = 16

// Hub fans freshly stored notifications out to connected clients.
// Slow consumers are dropped rather than ever blocking delivery.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan Notification]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan Notification]struct{})}
}

// Subscribe registers a channel for a user's notifications. The
// returned cancel func must be called when the subscriber goes away.
func (h *Hub) Subscribe(userID int64) (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[userID], ch)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends a stored notification to the recipient's subscribers.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
			slog.Debug("notification feed subscriber too slow, dropping", "user_id", n.UserID)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams the user's
// notifications as JSON. The user identity arrives pre-authenticated
// from the upstream auth layer as a user_id query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid user_id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch, cancel := h.Subscribe(userID)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case n := <-ch:
			if err := wsjson.Write(ctx, conn, n); err != nil {
				slog.Debug("notification feed write failed", "user_id", userID, "error", err)
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		}
	}
}
