package messaging

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Hub fans UI notifications out to whichever listeners are currently attached. Slow
// listeners lose messages rather than hold up the sender.
type Hub struct {
	subscribers map[chan Message]struct{}
	mu          sync.Mutex
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Message]struct{})}
}

// Attach registers the hub as the receiver of every UI message type on the bus.
func (h *Hub) Attach(bus *Bus) {
	for _, t := range UITypes {
		bus.Handle(t, h.handle)
	}
}

func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[ch] = struct{}{}

	slog.Debug("UI listener attached", "listeners", len(h.subscribers))
	return ch
}

func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	slog.Debug("UI listener detached", "listeners", len(h.subscribers))
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) Broadcast(msg Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for ch := range h.subscribers {
		select {
		case ch <- msg:
			delivered++
		default:
			slog.Warn("UI listener too slow, dropping message", "type", msg.Type)
		}
	}
	return delivered
}

func (h *Hub) handle(_ context.Context, msg Message) (Reply, error) {
	h.Broadcast(msg)
	return Reply{}, nil
}
