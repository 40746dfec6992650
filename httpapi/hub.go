package httpapi

import (
	"context"
	"encoding/json"
	"sync"

	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

// Hub fans terminal updates out to per-terminal stream subscribers.
type Hub struct {
	mu    sync.Mutex
	subs  map[schema.TerminalID]map[chan []byte]struct{}
	depth int
}

// NewHub constructs a hub whose subscribers buffer depth frames.
func NewHub(depth int) *Hub {
	if depth <= 0 {
		depth = 64
	}
	return &Hub{
		subs:  make(map[schema.TerminalID]map[chan []byte]struct{}),
		depth: depth,
	}
}

// Subscribe registers a subscriber for id and returns a channel + cancel.
func (h *Hub) Subscribe(id schema.TerminalID) (<-chan []byte, func()) {
	ch := make(chan []byte, h.depth)
	h.mu.Lock()
	termSubs := h.subs[id]
	if termSubs == nil {
		termSubs = make(map[chan []byte]struct{})
		h.subs[id] = termSubs
	}
	termSubs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subs := h.subs[id]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subs, id)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers for id.
func (h *Hub) Subscribers(id schema.TerminalID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

// Publish sends update to every subscriber of its terminal.
func (h *Hub) Publish(update schema.TerminalUpdate) {
	log := logx.WithTerminal(logx.Ctx(context.Background()), update.TerminalID)
	frame, err := json.Marshal(update)
	if err != nil {
		log.Warn("hub encode update failed", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for sub := range h.subs[update.TerminalID] {
		select {
		case sub <- frame:
		default:
			dropped++
		}
	}
	log.Trace("hub update", "event_type", update.EventType, "subs", len(h.subs[update.TerminalID]))
	if dropped > 0 {
		log.Trace("hub dropped", "count", dropped)
	}
}
