package termsync

import (
	"pkt.systems/termsync/core"
	"pkt.systems/termsync/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnRoster(event schema.RosterEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnRoster(event)
	}
}

func (f eventFanout) OnContent(event schema.ContentEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnContent(event)
	}
}

func (f eventFanout) OnConnection(event schema.ConnectionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnConnection(event)
	}
}
