package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

// Selection tracks the terminal the user is viewing. Selecting a terminal
// starts a one-shot content fetch and opens its stream; clearing the
// selection leaves existing streams alone.
type Selection struct {
	conns *Connections
	load  func(ctx context.Context, id schema.TerminalID) error
	base  context.Context

	mu       sync.Mutex
	selected *schema.Terminal

	wg sync.WaitGroup
}

// NewSelection returns a controller that loads content with load and
// subscribes through conns. Fetches run under base.
func NewSelection(base context.Context, conns *Connections, load func(ctx context.Context, id schema.TerminalID) error) *Selection {
	if base == nil {
		base = context.Background()
	}
	return &Selection{conns: conns, load: load, base: base}
}

// Select replaces the selection. A nil terminal only clears it.
func (s *Selection) Select(ctx context.Context, terminal *schema.Terminal) error {
	if terminal == nil {
		s.mu.Lock()
		s.selected = nil
		s.mu.Unlock()
		return nil
	}
	if err := schema.ValidateTerminalID(terminal.ID); err != nil {
		return err
	}
	selected := terminal.Clone()
	s.mu.Lock()
	s.selected = &selected
	s.mu.Unlock()

	id := selected.ID
	log := logx.WithTerminalCtx(ctx, id)
	if s.load != nil {
		fetchCtx := logx.ContextWithTerminalLogger(s.base, log, id)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.load(fetchCtx, id); err != nil {
				pslog.Ctx(fetchCtx).Warn("selected terminal content fetch failed", "err", err)
			}
		}()
	}
	return s.conns.Connect(id)
}

// Selected returns a copy of the current selection.
func (s *Selection) Selected() (schema.Terminal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return schema.Terminal{}, false
	}
	return s.selected.Clone(), true
}

// Wait blocks until every fetch started by Select has finished.
func (s *Selection) Wait() {
	s.wg.Wait()
}
