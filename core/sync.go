package core

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/internal/metrics"
	"pkt.systems/termsync/schema"
)

// Status is the loading flag and last roster fetch failure.
type Status struct {
	Loading bool
	Err     error
}

// Sync composes the stores, the connection manager and the selection
// controller behind one handle.
type Sync struct {
	transport Transport
	roster    *Roster
	content   *ContentStore
	conns     *Connections
	selection *Selection
	log       pslog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	loading bool
	lastErr error
	stopped bool
}

// NewSync constructs the synchronization core. Nothing is fetched or opened
// until Start.
func NewSync(cfg SyncConfig, deps SyncDeps) (*Sync, error) {
	deps = deps.withDefaults(cfg)
	roster := NewRoster(deps.EventSink)
	content := NewContentStore(deps.EventSink)
	conns, err := NewConnections(roster, content, cfg, deps)
	if err != nil {
		return nil, err
	}
	log := logx.Or(deps.Logger)
	base, cancel := context.WithCancel(pslog.ContextWithLogger(context.Background(), log))
	s := &Sync{
		transport: deps.Transport,
		roster:    roster,
		content:   content,
		conns:     conns,
		log:       log,
		base:      base,
		cancel:    cancel,
	}
	s.selection = NewSelection(base, conns, s.LoadContent)
	return s, nil
}

// Start fetches the roster and opens the roster stream. A failed fetch is
// recorded in Status and does not prevent the stream from opening.
func (s *Sync) Start(ctx context.Context) error {
	if err := s.FetchTerminals(ctx); err != nil {
		logx.Ctx(ctx).Warn("initial terminal fetch failed", "err", err)
	}
	if err := s.conns.EnsureRosterConnected(); err != nil {
		if errors.Is(err, schema.ErrClosed) {
			return err
		}
		logx.Ctx(ctx).Warn("roster stream not connected yet", "err", err)
	}
	return nil
}

// FetchTerminals replaces the roster with the remote list. A fetch that
// completes after Stop is discarded and reports schema.ErrClosed.
func (s *Sync) FetchTerminals(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return schema.ErrClosed
	}
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	terminals, err := s.transport.FetchTerminals(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.stopped {
		return schema.ErrClosed
	}
	s.lastErr = err
	if err != nil {
		metrics.RequestFailures.WithLabelValues("fetch_terminals").Inc()
		return err
	}
	s.roster.ReplaceAll(terminals)
	logx.Ctx(ctx).Debug("terminals fetched", "count", len(terminals))
	return nil
}

// Status returns the loading flag and the last fetch error.
func (s *Sync) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Loading: s.loading, Err: s.lastErr}
}

// LoadContent fetches the content of id and stores it under id.
func (s *Sync) LoadContent(ctx context.Context, id schema.TerminalID) error {
	if err := schema.ValidateTerminalID(id); err != nil {
		return err
	}
	content, err := s.transport.FetchContent(ctx, id)
	if err != nil {
		metrics.RequestFailures.WithLabelValues("fetch_content").Inc()
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return schema.ErrClosed
	}
	s.content.Set(id, content, schema.ContentFetched)
	return nil
}

// SendCommand writes text into terminal id. Errors are returned unchanged and
// never retried.
func (s *Sync) SendCommand(ctx context.Context, id schema.TerminalID, text string, newline bool) (schema.CommandResponse, error) {
	req, err := schema.NormalizeCommandRequest(id, schema.NewCommandRequest(id, text, newline))
	if err != nil {
		return schema.CommandResponse{}, err
	}
	resp, err := s.transport.SendCommand(ctx, req)
	if err != nil {
		metrics.RequestFailures.WithLabelValues("send_command").Inc()
		return schema.CommandResponse{}, err
	}
	logx.WithTerminalCtx(ctx, id).Debug("command sent", "newline", newline)
	return resp, nil
}

// Select changes the selection. See Selection.Select.
func (s *Sync) Select(ctx context.Context, terminal *schema.Terminal) error {
	return s.selection.Select(ctx, terminal)
}

// Selected returns the current selection.
func (s *Sync) Selected() (schema.Terminal, bool) {
	return s.selection.Selected()
}

// Terminals returns the sorted roster.
func (s *Sync) Terminals() []schema.Terminal {
	return s.roster.Terminals()
}

// Terminal returns one roster entry.
func (s *Sync) Terminal(id schema.TerminalID) (schema.Terminal, bool) {
	return s.roster.Get(id)
}

// Content returns the last known content of id.
func (s *Sync) Content(id schema.TerminalID) (schema.TerminalContent, bool) {
	return s.content.Get(id)
}

// Connect opens the stream for id.
func (s *Sync) Connect(id schema.TerminalID) error {
	return s.conns.Connect(id)
}

// Disconnect closes the stream for id.
func (s *Sync) Disconnect(id schema.TerminalID) {
	s.conns.Disconnect(id)
}

// Connections exposes the connection manager for inspection.
func (s *Sync) Connections() *Connections {
	return s.conns
}

// Stop closes every stream and waits for in-flight fetches.
func (s *Sync) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	err := s.conns.Shutdown(ctx)
	s.selection.Wait()
	return err
}

// State returns the subscription state of id.
func (s *Sync) State(id schema.TerminalID) schema.ConnState {
	return s.conns.State(id)
}

// RosterState returns the roster stream state.
func (s *Sync) RosterState() schema.ConnState {
	return s.conns.RosterState()
}
