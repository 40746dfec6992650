package core

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"pkt.systems/pslog"
	"pkt.systems/termsync/internal/clock"
)

// DefaultRosterReconnectDelay is the fixed delay before the roster stream is
// reopened after it closed.
const DefaultRosterReconnectDelay = 5 * time.Second

// SyncDeps captures the dependencies of the synchronization core.
type SyncDeps struct {
	Transport Transport
	EventSink EventSink
	Clock     clock.Clock
	// RosterBackoff yields the delay before each roster reconnect. Defaults
	// to a constant DefaultRosterReconnectDelay that never gives up.
	RosterBackoff backoff.BackOff
	Logger        pslog.Logger
}

// SyncConfig tunes the synchronization core.
type SyncConfig struct {
	RosterReconnectDelay time.Duration
}

func (d SyncDeps) withDefaults(cfg SyncConfig) SyncDeps {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.RosterBackoff == nil {
		delay := cfg.RosterReconnectDelay
		if delay <= 0 {
			delay = DefaultRosterReconnectDelay
		}
		d.RosterBackoff = backoff.NewConstantBackOff(delay)
	}
	d.EventSink = sinkOrNop(d.EventSink)
	return d
}
