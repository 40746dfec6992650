package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"pkt.systems/pslog"
	"pkt.systems/termsync/internal/clock"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/internal/metrics"
	"pkt.systems/termsync/schema"
)

// Connections owns every live stream: at most one per terminal plus the
// shared roster stream. Frames from a stream reach the stores only while that
// stream is still the registered one, so nothing a stream delivers after
// Disconnect or Shutdown returns is applied.
type Connections struct {
	transport Transport
	roster    *Roster
	content   *ContentStore
	clock     clock.Clock
	backoff   backoff.BackOff
	sink      EventSink
	log       pslog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	subs      map[schema.TerminalID]*subscription
	rosterSub *rosterStream
	retry     clock.Timer
	retrySeq  uint64
	closed    bool

	wg sync.WaitGroup
}

type subscription struct {
	id     schema.TerminalID
	path   string
	stream Stream
	state  schema.ConnState
	log    pslog.Logger
}

type rosterStream struct {
	stream Stream
	state  schema.ConnState
}

// NewConnections wires a connection manager to the stores it feeds.
func NewConnections(roster *Roster, content *ContentStore, cfg SyncConfig, deps SyncDeps) (*Connections, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if roster == nil || content == nil {
		return nil, errors.New("roster and content stores are required")
	}
	deps = deps.withDefaults(cfg)
	log := logx.Or(deps.Logger)
	ctx, cancel := context.WithCancel(pslog.ContextWithLogger(context.Background(), log))
	return &Connections{
		transport: deps.Transport,
		roster:    roster,
		content:   content,
		clock:     deps.Clock,
		backoff:   deps.RosterBackoff,
		sink:      deps.EventSink,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[schema.TerminalID]*subscription),
	}, nil
}

// Connect opens the stream for id unless one is already registered.
func (c *Connections) Connect(id schema.TerminalID) error {
	if err := schema.ValidateTerminalID(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return schema.ErrClosed
	}
	if _, ok := c.subs[id]; ok {
		return nil
	}
	path := schema.TerminalStreamPath(id)
	log := logx.WithStream(logx.WithTerminal(c.log, id), string(schema.StreamTerminal), path)
	metrics.StreamsOpened.WithLabelValues(string(schema.StreamTerminal)).Inc()
	stream, err := c.transport.OpenStream(c.ctx, path)
	if err != nil {
		metrics.StreamErrors.WithLabelValues(string(schema.StreamTerminal)).Inc()
		log.Warn("terminal stream open failed", "err", err)
		return fmt.Errorf("open terminal stream: %w", err)
	}
	sub := &subscription{
		id:     id,
		path:   path,
		stream: stream,
		state:  schema.ConnConnecting,
		log:    log,
	}
	c.subs[id] = sub
	metrics.ActiveSubscriptions.Inc()
	log.Info("terminal subscription opened")
	c.notifyLocked(schema.StreamTerminal, id, schema.ConnConnecting)

	c.wg.Add(1)
	go c.pumpTerminal(sub)
	return nil
}

// Disconnect removes and closes the stream for id. It is a no-op when no
// stream is registered.
func (c *Connections) Disconnect(id schema.TerminalID) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		c.removeLocked(sub)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.log.Info("terminal subscription closed")
	if err := sub.stream.Close(); err != nil {
		sub.log.Debug("terminal stream close failed", "err", err)
	}
}

// Subscribed reports whether a stream is registered for id.
func (c *Connections) Subscribed(id schema.TerminalID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[id]
	return ok
}

// State returns the connection state of id's stream.
func (c *Connections) State(id schema.TerminalID) schema.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[id]; ok {
		return sub.state
	}
	return schema.ConnAbsent
}

// Subscriptions returns the ids with a registered stream in ascending order.
func (c *Connections) Subscriptions() []schema.TerminalID {
	c.mu.Lock()
	ids := make([]schema.TerminalID, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// RosterState returns the state of the roster stream.
func (c *Connections) RosterState() schema.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.rosterSub != nil:
		return c.rosterSub.state
	case c.retry != nil:
		return schema.ConnRetrying
	default:
		return schema.ConnAbsent
	}
}

// EnsureRosterConnected opens the roster stream unless a handle exists. A
// failed open schedules a retry and returns the error.
func (c *Connections) EnsureRosterConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return schema.ErrClosed
	}
	if c.rosterSub != nil {
		return nil
	}
	c.stopRetryLocked()

	log := logx.WithStream(c.log, string(schema.StreamRoster), schema.RosterStreamPath)
	metrics.StreamsOpened.WithLabelValues(string(schema.StreamRoster)).Inc()
	stream, err := c.transport.OpenStream(c.ctx, schema.RosterStreamPath)
	if err != nil {
		metrics.StreamErrors.WithLabelValues(string(schema.StreamRoster)).Inc()
		log.Warn("roster stream open failed", "err", err)
		c.scheduleRetryLocked()
		return fmt.Errorf("open roster stream: %w", err)
	}
	handle := &rosterStream{stream: stream, state: schema.ConnConnecting}
	c.rosterSub = handle
	log.Debug("roster stream opening")
	c.notifyLocked(schema.StreamRoster, "", schema.ConnConnecting)

	c.wg.Add(1)
	go c.pumpRoster(handle, log)
	return nil
}

// Shutdown closes every stream, cancels a pending roster retry and waits for
// the stream pumps to exit or ctx to end. Later calls only wait.
func (c *Connections) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	var streams []Stream
	if !c.closed {
		c.closed = true
		c.stopRetryLocked()
		for _, sub := range c.subs {
			streams = append(streams, sub.stream)
			c.removeLocked(sub)
		}
		if c.rosterSub != nil {
			streams = append(streams, c.rosterSub.stream)
			c.rosterSub = nil
			c.notifyLocked(schema.StreamRoster, "", schema.ConnAbsent)
		}
	}
	c.mu.Unlock()

	for _, stream := range streams {
		if err := stream.Close(); err != nil {
			c.log.Debug("stream close failed", "err", err)
		}
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connections) pumpTerminal(sub *subscription) {
	defer c.wg.Done()
	defer c.dropSubscription(sub)
	kind := string(schema.StreamTerminal)
	for ev := range sub.stream.Events() {
		switch ev.Kind {
		case schema.StreamOpened:
			c.mu.Lock()
			if c.subs[sub.id] == sub {
				sub.state = schema.ConnOpen
				c.notifyLocked(schema.StreamTerminal, sub.id, schema.ConnOpen)
			}
			c.mu.Unlock()
			sub.log.Debug("terminal stream open")
		case schema.StreamMessage:
			metrics.StreamMessages.WithLabelValues(kind).Inc()
			c.applyTerminalFrame(sub, ev.Data)
		case schema.StreamError:
			metrics.StreamErrors.WithLabelValues(kind).Inc()
			sub.log.Warn("terminal stream error", "err", ev.Err)
		case schema.StreamClosed:
			sub.log.Debug("terminal stream closed")
			c.dropSubscription(sub)
		}
	}
}

func (c *Connections) applyTerminalFrame(sub *subscription, raw []byte) {
	kind := string(schema.StreamTerminal)
	update, err := schema.DecodeTerminalUpdate(raw)
	if err != nil {
		metrics.StreamMessagesDropped.WithLabelValues(kind, "malformed").Inc()
		sub.log.Warn("discarding malformed terminal frame", "err", err)
		return
	}
	if update.EventType != schema.UpdateOutput {
		sub.log.Trace("ignoring terminal frame", "event_type", update.EventType)
		return
	}
	out, err := update.Output()
	if err != nil {
		metrics.StreamMessagesDropped.WithLabelValues(kind, "malformed").Inc()
		sub.log.Warn("discarding malformed output frame", "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.id] != sub {
		metrics.StreamMessagesDropped.WithLabelValues(kind, "stale").Inc()
		return
	}
	c.content.Set(sub.id, ContentFromOutput(sub.id, update, out), schema.ContentPushed)
	sub.log.Trace("terminal content pushed", "bytes", len(out.Content))
}

func (c *Connections) dropSubscription(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.id] == sub {
		c.removeLocked(sub)
		sub.log.Info("terminal subscription ended by remote")
	}
}

func (c *Connections) removeLocked(sub *subscription) {
	delete(c.subs, sub.id)
	metrics.ActiveSubscriptions.Dec()
	c.notifyLocked(schema.StreamTerminal, sub.id, schema.ConnAbsent)
}

func (c *Connections) pumpRoster(handle *rosterStream, log pslog.Logger) {
	defer c.wg.Done()
	defer c.rosterEnded(handle, log)
	kind := string(schema.StreamRoster)
	for ev := range handle.stream.Events() {
		switch ev.Kind {
		case schema.StreamOpened:
			c.mu.Lock()
			if c.rosterSub == handle {
				handle.state = schema.ConnOpen
				c.backoff.Reset()
				c.notifyLocked(schema.StreamRoster, "", schema.ConnOpen)
			}
			c.mu.Unlock()
			log.Info("roster stream open")
		case schema.StreamMessage:
			metrics.StreamMessages.WithLabelValues(kind).Inc()
			c.applyRosterFrame(handle, ev.Data, log)
		case schema.StreamError:
			metrics.StreamErrors.WithLabelValues(kind).Inc()
			log.Warn("roster stream error", "err", ev.Err)
		case schema.StreamClosed:
			c.rosterEnded(handle, log)
		}
	}
}

func (c *Connections) applyRosterFrame(handle *rosterStream, raw []byte, log pslog.Logger) {
	kind := string(schema.StreamRoster)
	msg, err := schema.DecodeRosterMessage(raw)
	if err != nil {
		metrics.StreamMessagesDropped.WithLabelValues(kind, "malformed").Inc()
		log.Warn("discarding malformed roster frame", "err", err)
		return
	}
	if msg.Type != schema.RosterTerminals {
		log.Trace("ignoring roster frame", "type", msg.Type)
		return
	}
	terminals, err := msg.Terminals()
	if err != nil {
		metrics.StreamMessagesDropped.WithLabelValues(kind, "malformed").Inc()
		log.Warn("discarding malformed roster frame", "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rosterSub != handle {
		metrics.StreamMessagesDropped.WithLabelValues(kind, "stale").Inc()
		return
	}
	c.roster.ReplaceAll(terminals)
	log.Trace("roster replaced", "count", len(terminals))
}

func (c *Connections) rosterEnded(handle *rosterStream, log pslog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rosterSub != handle {
		return
	}
	c.rosterSub = nil
	if c.closed {
		c.notifyLocked(schema.StreamRoster, "", schema.ConnAbsent)
		return
	}
	log.Info("roster stream closed; scheduling reconnect")
	c.scheduleRetryLocked()
}

func (c *Connections) scheduleRetryLocked() {
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		c.log.Warn("roster reconnect policy gave up")
		c.notifyLocked(schema.StreamRoster, "", schema.ConnAbsent)
		return
	}
	c.stopRetryLocked()
	c.retrySeq++
	seq := c.retrySeq
	c.retry = c.clock.AfterFunc(delay, func() { c.retryRoster(seq) })
	metrics.RosterReconnects.Inc()
	c.log.Debug("roster reconnect scheduled", "delay", delay)
	c.notifyLocked(schema.StreamRoster, "", schema.ConnRetrying)
}

func (c *Connections) stopRetryLocked() {
	if c.retry == nil {
		return
	}
	c.retry.Stop()
	c.retry = nil
}

func (c *Connections) retryRoster(seq uint64) {
	c.mu.Lock()
	if c.retrySeq != seq || c.retry == nil {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()
	if err := c.EnsureRosterConnected(); err != nil && !errors.Is(err, schema.ErrClosed) {
		c.log.Debug("roster reconnect failed", "err", err)
	}
}

func (c *Connections) notifyLocked(kind schema.StreamKind, id schema.TerminalID, state schema.ConnState) {
	c.sink.OnConnection(schema.ConnectionEvent{Kind: kind, TerminalID: id, State: state})
}
