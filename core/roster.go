package core

import (
	"cmp"
	"slices"
	"sync"

	"pkt.systems/termsync/internal/metrics"
	"pkt.systems/termsync/schema"
)

// Roster is the local copy of every known terminal, keyed by id.
// Updates always replace the whole mapping.
type Roster struct {
	mu        sync.RWMutex
	terminals map[schema.TerminalID]schema.Terminal
	sink      EventSink
}

// NewRoster constructs an empty roster.
func NewRoster(sink EventSink) *Roster {
	return &Roster{
		terminals: make(map[schema.TerminalID]schema.Terminal),
		sink:      sinkOrNop(sink),
	}
}

// ReplaceAll swaps in a new mapping built from terminals. Later duplicates of
// an id win.
func (r *Roster) ReplaceAll(terminals []schema.Terminal) {
	next := make(map[schema.TerminalID]schema.Terminal, len(terminals))
	for _, terminal := range terminals {
		next[terminal.ID] = terminal.Clone()
	}
	r.mu.Lock()
	r.terminals = next
	r.mu.Unlock()

	metrics.RosterReplacements.Inc()
	metrics.RosterSize.Set(float64(len(next)))
	r.sink.OnRoster(schema.RosterEvent{Count: len(next)})
}

// Terminals returns the roster ordered by window, tab, name and finally id.
func (r *Roster) Terminals() []schema.Terminal {
	r.mu.RLock()
	out := make([]schema.Terminal, 0, len(r.terminals))
	for _, terminal := range r.terminals {
		out = append(out, terminal.Clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, compareTerminals)
	return out
}

// Get returns the terminal with the given id.
func (r *Roster) Get(id schema.TerminalID) (schema.Terminal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	terminal, ok := r.terminals[id]
	if !ok {
		return schema.Terminal{}, false
	}
	return terminal.Clone(), true
}

// Len returns the number of terminals.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.terminals)
}

func compareTerminals(a, b schema.Terminal) int {
	return cmp.Or(
		cmp.Compare(a.WindowID, b.WindowID),
		cmp.Compare(a.TabID, b.TabID),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.ID, b.ID),
	)
}
