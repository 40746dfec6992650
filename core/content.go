package core

import (
	"sync"

	"pkt.systems/termsync/internal/metrics"
	"pkt.systems/termsync/schema"
)

// ContentStore holds the last known content snapshot per terminal.
type ContentStore struct {
	mu       sync.RWMutex
	snapshot map[schema.TerminalID]schema.TerminalContent
	sink     EventSink
}

// NewContentStore constructs an empty store.
func NewContentStore(sink EventSink) *ContentStore {
	return &ContentStore{
		snapshot: make(map[schema.TerminalID]schema.TerminalContent),
		sink:     sinkOrNop(sink),
	}
}

// Set replaces the snapshot for id.
func (s *ContentStore) Set(id schema.TerminalID, content schema.TerminalContent, origin schema.ContentOrigin) {
	s.mu.Lock()
	s.snapshot[id] = content
	s.mu.Unlock()

	metrics.ContentUpdates.WithLabelValues(string(origin)).Inc()
	s.sink.OnContent(schema.ContentEvent{TerminalID: id, Origin: origin})
}

// Get returns the snapshot for id.
func (s *ContentStore) Get(id schema.TerminalID) (schema.TerminalContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.snapshot[id]
	return content, ok
}

// ContentFromOutput builds the snapshot for an output frame received on id's
// stream. Pushed frames are not known to carry full scroll-back, so
// HasMoreHistory is always false and both content fields hold the pushed text.
func ContentFromOutput(id schema.TerminalID, update schema.TerminalUpdate, out schema.OutputData) schema.TerminalContent {
	return schema.TerminalContent{
		TerminalID:     id,
		Content:        out.Content,
		VisibleContent: out.Content,
		CursorPosition: out.Cursor,
		HasMoreHistory: false,
		Timestamp:      update.Timestamp,
	}
}
