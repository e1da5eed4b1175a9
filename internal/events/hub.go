package events

import (
	"context"
	"sync"
)

type subscriber struct {
	ch        chan Event
	projectID uint
}

// Hub manages SSE client connections and event broadcasting
type Hub struct {
	clients map[string]subscriber
	mu      sync.RWMutex
	onCount func(int)
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]subscriber),
	}
}

// OnCountChange registers a callback invoked with the client count after
// every subscribe and unsubscribe.
func (h *Hub) OnCountChange(fn func(int)) {
	h.mu.Lock()
	h.onCount = fn
	h.mu.Unlock()
}

// Subscribe registers a client. A non-zero projectID limits delivery to
// events of that project.
func (h *Hub) Subscribe(clientID string, projectID uint) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Buffered so Publish never waits on a slow reader
	ch := make(chan Event, 100)
	h.clients[clientID] = subscriber{ch: ch, projectID: projectID}
	h.notify()
	return ch
}

func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.clients[clientID]; ok {
		close(sub.ch)
		delete(h.clients, clientID)
		h.notify()
	}
}

func (h *Hub) notify() {
	if h.onCount != nil {
		h.onCount(len(h.clients))
	}
}

// Publish broadcasts an event to all matching clients
func (h *Hub) Publish(_ context.Context, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.clients {
		if sub.projectID != 0 && sub.projectID != event.ProjectID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Client is slow, skip this event
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
