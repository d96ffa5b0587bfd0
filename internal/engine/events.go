package engine

import (
	"sync"

	"livetrade/internal/domain"
)

// OrderEvent is delivered to subscribers whenever an order is created or
// changes at the worker.
type OrderEvent struct {
	Type  string       `json:"type"` // "created", "acknowledged", "updated", "completed"
	Order domain.Order `json:"order"`
}

type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan OrderEvent
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan OrderEvent)}
}

func (h *hub) subscribe(bufSize int) (int, <-chan OrderEvent) {
	ch := make(chan OrderEvent, bufSize)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// broadcast sends to every subscriber without blocking; slow consumers miss
// events.
func (h *hub) broadcast(events ...OrderEvent) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		for _, e := range events {
			select {
			case ch <- e:
			default:
			}
		}
	}
}
