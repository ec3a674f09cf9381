package application

import (
	"log/slog"
	"sync"

	"github.com/dmehra2102/storefront-engine/internal/engine/domain"
)

// Hub fans committed changes out to in-process subscribers. A subscriber
// that falls behind loses notifications rather than blocking writers.
type Hub struct {
	log    *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[string]map[chan domain.Notification]struct{}
	closed bool
}

func NewHub(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{log: log, buffer: buffer, subs: map[string]map[chan domain.Notification]struct{}{}}
}

// Subscribe returns a channel of notifications for userID, or for every
// user when userID is empty. The returned func unsubscribes and closes the
// channel.
func (h *Hub) Subscribe(userID string) (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, h.buffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set := h.subs[userID]
	if set == nil {
		set = map[chan domain.Notification]struct{}{}
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[userID][ch]; !ok {
			return
		}
		delete(h.subs[userID], ch)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
	}
}

// Close ends every subscription. Later subscriptions get an already closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.subs {
		for ch := range set {
			close(ch)
		}
	}
	h.subs = map[string]map[chan domain.Notification]struct{}{}
}

func (h *Hub) Publish(n domain.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(h.subs[n.UserID], n)
	if n.UserID != "" {
		h.deliver(h.subs[""], n)
	}
}

func (h *Hub) deliver(set map[chan domain.Notification]struct{}, n domain.Notification) {
	for ch := range set {
		select {
		case ch <- n:
		default:
			h.log.Warn("subscriber lagging, notification dropped", "user_id", n.UserID, "type", n.Type)
		}
	}
}
