package termsync

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termsync/core"
	"pkt.systems/termsync/internal/clock"
	"pkt.systems/termsync/internal/eventbus"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
	"pkt.systems/termsync/transport"
)

// Client composes the transport, the synchronization core and the event bus.
type Client interface {
	// Sync exposes the synchronization core.
	Sync() *core.Sync
	// Events subscribes to every store and connection notification.
	Events() (<-chan eventbus.Event, func())
	// EventsFor subscribes to roster notifications plus those concerning id.
	EventsFor(id schema.TerminalID) (<-chan eventbus.Event, func())
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config configures the compositor.
type Config struct {
	Transport transport.Config
	Sync      core.SyncConfig
}

// Deps captures optional dependencies. A nil Transport is built from
// Config.Transport.
type Deps struct {
	Transport core.Transport
	EventSink core.EventSink
	Clock     clock.Clock
	Logger    pslog.Logger
}

// New constructs a Client. Nothing touches the network until Start.
func New(cfg Config, deps Deps) (Client, error) {
	log := logx.Or(deps.Logger)
	tr := deps.Transport
	if tr == nil {
		tcfg := cfg.Transport
		if tcfg.Logger == nil {
			tcfg.Logger = log
		}
		client, err := transport.New(tcfg)
		if err != nil {
			return nil, err
		}
		tr = client
	}

	bus := eventbus.New(log)
	var sink core.EventSink = bus
	if deps.EventSink != nil {
		sink = eventFanout{sinks: []core.EventSink{bus, deps.EventSink}}
	}

	s, err := core.NewSync(cfg.Sync, core.SyncDeps{
		Transport: tr,
		EventSink: sink,
		Clock:     deps.Clock,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	return &compositeClient{sync: s, bus: bus, log: log}, nil
}

type compositeClient struct {
	sync *core.Sync
	bus  *eventbus.Bus
	log  pslog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

func (c *compositeClient) Sync() *core.Sync {
	return c.sync
}

func (c *compositeClient) Events() (<-chan eventbus.Event, func()) {
	return c.bus.Subscribe()
}

func (c *compositeClient) EventsFor(id schema.TerminalID) (<-chan eventbus.Event, func()) {
	return c.bus.SubscribeTerminal(id)
}

func (c *compositeClient) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = pslog.ContextWithLogger(context.Background(), c.log)
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		logx.Ctx(ctx).Warn("client start rejected", "reason", "already started")
		return errors.New("client already started")
	}
	if c.stopped {
		c.mu.Unlock()
		return schema.ErrClosed
	}
	c.started = true
	c.mu.Unlock()

	logx.Ctx(ctx).Info("client start")
	return c.sync.Start(ctx)
}

func (c *compositeClient) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info("client stop requested")
	if err := c.sync.Stop(ctx); err != nil {
		c.log.Warn("client stop timed out", "err", err)
		return err
	}
	c.log.Info("client stopped")
	return nil
}
