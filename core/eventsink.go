package core

import "pkt.systems/termsync/schema"

// EventSink receives change notifications from the stores and the
// connection manager. Implementations must not block and must not call back
// into the component that notified them.
type EventSink interface {
	OnRoster(event schema.RosterEvent)
	OnContent(event schema.ContentEvent)
	OnConnection(event schema.ConnectionEvent)
}

type nopSink struct{}

func (nopSink) OnRoster(schema.RosterEvent)         {}
func (nopSink) OnContent(schema.ContentEvent)       {}
func (nopSink) OnConnection(schema.ConnectionEvent) {}

func sinkOrNop(sink EventSink) EventSink {
	if sink == nil {
		return nopSink{}
	}
	return sink
}
