// Package eventbus fans synchronization notifications out to presentation
// subscribers without ever blocking the publisher.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termsync/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventRoster reports a roster replacement.
	EventRoster EventType = "roster"
	// EventContent reports a content snapshot replacement.
	EventContent EventType = "content"
	// EventConnection reports a stream state transition.
	EventConnection EventType = "connection"
)

// Event is one notification delivered to subscribers.
type Event struct {
	Type       EventType
	Roster     schema.RosterEvent
	Content    schema.ContentEvent
	Connection schema.ConnectionEvent
}

// TerminalID returns the terminal the event concerns, if any.
func (e Event) TerminalID() schema.TerminalID {
	switch e.Type {
	case EventContent:
		return e.Content.TerminalID
	case EventConnection:
		return e.Connection.TerminalID
	default:
		return ""
	}
}

// Bus fans events out to subscribers over buffered channels.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]schema.TerminalID
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]schema.TerminalID),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for every event and returns a channel +
// cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	return b.subscribe("")
}

// SubscribeTerminal registers a subscriber that only receives content and
// connection events for id, plus roster events.
func (b *Bus) SubscribeTerminal(id schema.TerminalID) (<-chan Event, func()) {
	return b.subscribe(id)
}

func (b *Bus) subscribe(filter schema.TerminalID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = filter
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count, "terminal", filter)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			b.log.Debug("eventbus unsubscribe", "terminal", filter)
		})
	}
}

// OnRoster publishes a roster event.
func (b *Bus) OnRoster(event schema.RosterEvent) {
	b.publish(Event{Type: EventRoster, Roster: event})
}

// OnContent publishes a content event.
func (b *Bus) OnContent(event schema.ContentEvent) {
	b.publish(Event{Type: EventContent, Content: event})
}

// OnConnection publishes a connection event.
func (b *Bus) OnConnection(event schema.ConnectionEvent) {
	b.publish(Event{Type: EventConnection, Connection: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	id := event.TerminalID()
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for sub, filter := range b.subs {
		if filter != "" && id != "" && filter != id {
			continue
		}
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
