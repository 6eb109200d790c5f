package events

import (
	"sync"
	"sync/atomic"
)

const (
	subscriberBuffer = 16
	// replayed to new subscribers so a dashboard opened mid-cycle sees
	// which runs already finished
	recentSize = 32
)

// Hub fans events out to SSE subscribers. Slow subscribers lose events
// rather than block a crawl.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
	recent  []string
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{})}
}

// Subscribe registers a client and queues the recent history on its channel.
func (h *Hub) Subscribe() chan string {
	ch := make(chan string, subscriberBuffer+recentSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, evt := range h.recent {
		ch <- evt
	}
	h.clients[ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; !ok {
		return
	}
	delete(h.clients, ch)
	close(ch)
}

func (h *Hub) Publish(evt string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remember(evt)
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) remember(evt string) {
	if len(h.recent) == recentSize {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:recentSize-1]
	}
	h.recent = append(h.recent, evt)
}

// PublishEvent wraps data in a versioned envelope and publishes it.
func (h *Hub) PublishEvent(typ string, data any) {
	h.Publish(Encode(typ, "", data))
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts events lost to full subscriber buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
