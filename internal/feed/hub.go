// Package feed delivers planning scene updates from publishers to scene
// monitors: an in-process topic hub plus a gRPC ingest service feeding it.
package feed

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sceneview/internal/monitoring"
	"github.com/banshee-data/sceneview/internal/scene"
)

var logf = monitoring.Component("Feed")

var _ scene.Source = (*Hub)(nil)

// Hub fans updates out to topic subscribers. Handlers run on the
// publisher's goroutine, in subscription order.
type Hub struct {
	mu     sync.RWMutex
	topics map[string][]subscription
	nextID uint64

	published atomic.Uint64
	delivered atomic.Uint64
	unheard   atomic.Uint64
}

type subscription struct {
	id      uint64
	handler func(scene.Update)
}

// HubStats counts hub traffic.
type HubStats struct {
	Published uint64
	Delivered uint64
	Unheard   uint64 // updates published on a topic nobody listens to
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string][]subscription)}
}

// Subscribe registers handler for topic. The returned cancel func is
// idempotent.
func (h *Hub) Subscribe(topic string, handler func(scene.Update)) (func(), error) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.topics[topic] = append(h.topics[topic], subscription{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(topic, id) })
	}, nil
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
		return
	}
	h.topics[topic] = subs
}

// Publish delivers u to every subscriber of topic and returns how many
// received it.
func (h *Hub) Publish(topic string, u scene.Update) int {
	h.mu.RLock()
	subs := append([]subscription(nil), h.topics[topic]...)
	h.mu.RUnlock()

	h.published.Add(1)
	if len(subs) == 0 {
		h.unheard.Add(1)
		return 0
	}
	for _, s := range subs {
		s.handler(u)
	}
	h.delivered.Add(uint64(len(subs)))
	return len(subs)
}

// Topics returns the topics with at least one subscriber.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.topics))
	for t := range h.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Stats returns traffic counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Unheard:   h.unheard.Load(),
	}
}
