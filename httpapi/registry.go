package httpapi

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/termsync/schema"
)

var errNotConnected = errors.New("iTerm2 not connected")

// Registry is an in-memory set of terminals with scroll-back buffers.
type Registry struct {
	mu        sync.RWMutex
	terminals map[schema.TerminalID]*terminalEntry
	connected bool
	now       func() time.Time
	onWrite   func(schema.TerminalUpdate)
}

type terminalEntry struct {
	terminal schema.Terminal
	lines    []string
}

// NewRegistry constructs an empty, connected registry.
func NewRegistry() *Registry {
	return &Registry{
		terminals: make(map[schema.TerminalID]*terminalEntry),
		connected: true,
		now:       time.Now,
	}
}

// Add registers a terminal with initial content. An empty id is replaced by
// a random one; zero dimensions default to 24x80.
func (r *Registry) Add(terminal schema.Terminal, content string) schema.Terminal {
	if terminal.ID == "" {
		terminal.ID = schema.TerminalID(uuid.NewString())
	}
	if terminal.Rows <= 0 {
		terminal.Rows = 24
	}
	if terminal.Columns <= 0 {
		terminal.Columns = 80
	}
	now := schema.NewTimestamp(r.now())
	if terminal.CreatedAt == "" {
		terminal.CreatedAt = now
	}
	if terminal.LastActivity == "" {
		terminal.LastActivity = now
	}
	r.mu.Lock()
	r.terminals[terminal.ID] = &terminalEntry{terminal: terminal.Clone(), lines: strings.Split(content, "\n")}
	r.mu.Unlock()
	return terminal.Clone()
}

// Seed adds n demo terminals spread over two windows.
func (r *Registry) Seed(n int) []schema.Terminal {
	out := make([]schema.Terminal, 0, n)
	for i := 0; i < n; i++ {
		window := fmt.Sprintf("window-%d", i%2+1)
		command := "zsh"
		pid := 1000 + i
		out = append(out, r.Add(schema.Terminal{
			Name:             fmt.Sprintf("shell %d", i+1),
			WindowID:         schema.WindowID(window),
			WindowTitle:      window,
			TabID:            schema.TabID(fmt.Sprintf("tab-%d", i/2+1)),
			TabTitle:         fmt.Sprintf("tab %d", i/2+1),
			CurrentDirectory: "/home/demo",
			Command:          &command,
			PID:              &pid,
			IsActive:         i == 0,
		}, "demo@remote ~ % "))
	}
	return out
}

// OnWrite registers fn to receive the output update of every Write.
func (r *Registry) OnWrite(fn func(schema.TerminalUpdate)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onWrite = fn
}

// Remove drops a terminal.
func (r *Registry) Remove(id schema.TerminalID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.terminals[id]; !ok {
		return false
	}
	delete(r.terminals, id)
	return true
}

// SetConnected toggles whether the registry behaves as attached to the
// terminal application.
func (r *Registry) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = connected
}

// Connected reports whether the registry is attached.
func (r *Registry) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// List returns every terminal ordered by id.
func (r *Registry) List() ([]schema.Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.connected {
		return nil, errNotConnected
	}
	out := make([]schema.Terminal, 0, len(r.terminals))
	for _, entry := range r.terminals {
		out = append(out, entry.terminal.Clone())
	}
	slices.SortFunc(out, func(a, b schema.Terminal) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

// Content returns the buffer snapshot of id. The visible part is the last
// Rows lines; HasMoreHistory reports scroll-back beyond it.
func (r *Registry) Content(id schema.TerminalID) (schema.TerminalContent, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.connected {
		return schema.TerminalContent{}, false, errNotConnected
	}
	entry, ok := r.terminals[id]
	if !ok {
		return schema.TerminalContent{}, false, nil
	}
	visible := entry.visibleLines()
	return schema.TerminalContent{
		TerminalID:     id,
		Content:        strings.Join(entry.lines, "\n"),
		VisibleContent: strings.Join(visible, "\n"),
		CursorPosition: entry.cursor(),
		HasMoreHistory: len(entry.lines) > len(visible),
		Timestamp:      schema.NewTimestamp(r.now()),
	}, true, nil
}

// Write appends text to id's buffer and returns the resulting output update.
func (r *Registry) Write(id schema.TerminalID, text string, newline bool) (schema.TerminalUpdate, error) {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return schema.TerminalUpdate{}, errNotConnected
	}
	entry, ok := r.terminals[id]
	if !ok {
		r.mu.Unlock()
		return schema.TerminalUpdate{}, fmt.Errorf("terminal %s not found", id)
	}
	if newline {
		text += "\n"
	}
	chunks := strings.Split(text, "\n")
	entry.lines[len(entry.lines)-1] += chunks[0]
	entry.lines = append(entry.lines, chunks[1:]...)
	now := schema.NewTimestamp(r.now())
	entry.terminal.LastActivity = now
	update, err := outputUpdate(id, entry, now)
	onWrite := r.onWrite
	r.mu.Unlock()
	if err != nil {
		return schema.TerminalUpdate{}, err
	}
	if onWrite != nil {
		onWrite(update)
	}
	return update, nil
}

func (e *terminalEntry) visibleLines() []string {
	rows := e.terminal.Rows
	if rows <= 0 || len(e.lines) <= rows {
		return e.lines
	}
	return e.lines[len(e.lines)-rows:]
}

func (e *terminalEntry) cursor() schema.CursorPosition {
	visible := e.visibleLines()
	last := len(visible) - 1
	return schema.CursorPosition{X: len([]rune(visible[last])), Y: last}
}
