package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pkt.systems/termsync/internal/clock"
	"pkt.systems/termsync/schema"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeStream struct {
	path string

	mu sync.Mutex
	// keepDelivering makes Close record the call without ending the stream,
	// emulating frames already in flight when the handle is dropped.
	keepDelivering bool
	events         chan schema.StreamEvent
	ended          bool
	closeCalls     int
}

func newFakeStream(path string) *fakeStream {
	return &fakeStream{path: path, events: make(chan schema.StreamEvent, 64)}
}

func (s *fakeStream) Events() <-chan schema.StreamEvent {
	return s.events
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closeCalls++
	keep := s.keepDelivering
	s.mu.Unlock()
	if keep {
		return nil
	}
	s.end()
	return nil
}

func (s *fakeStream) send(ev schema.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
}

func (s *fakeStream) open() {
	s.send(schema.StreamEvent{Kind: schema.StreamOpened})
}

func (s *fakeStream) message(raw string) {
	s.send(schema.StreamEvent{Kind: schema.StreamMessage, Data: []byte(raw)})
}

func (s *fakeStream) fail(err error) {
	s.send(schema.StreamEvent{Kind: schema.StreamError, Err: err})
}

// end emits Closed and closes the channel, as a remote close would.
func (s *fakeStream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.events <- schema.StreamEvent{Kind: schema.StreamClosed}
	close(s.events)
}

func (s *fakeStream) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

type fakeTransport struct {
	mu          sync.Mutex
	terminals   []schema.Terminal
	fetchErr    error
	fetchGate   chan struct{}
	content     map[schema.TerminalID]schema.TerminalContent
	contentErr  error
	contentGate chan struct{}
	commands    []schema.CommandRequest
	commandErr  error
	openErr     error
	keepAlive   bool
	opens       map[string]int
	opened      chan *fakeStream
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		content: make(map[schema.TerminalID]schema.TerminalContent),
		opens:   make(map[string]int),
		opened:  make(chan *fakeStream, 32),
	}
}

func (f *fakeTransport) FetchTerminals(context.Context) ([]schema.Terminal, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]schema.Terminal(nil), f.terminals...), nil
}

func (f *fakeTransport) FetchContent(_ context.Context, id schema.TerminalID) (schema.TerminalContent, error) {
	f.mu.Lock()
	gate := f.contentGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contentErr != nil {
		return schema.TerminalContent{}, f.contentErr
	}
	content, ok := f.content[id]
	if !ok {
		return schema.TerminalContent{}, &schema.RemoteError{Op: "fetch content", Status: 404, Detail: "Terminal not found"}
	}
	return content, nil
}

func (f *fakeTransport) SendCommand(_ context.Context, req schema.CommandRequest) (schema.CommandResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, req)
	if f.commandErr != nil {
		return schema.CommandResponse{}, f.commandErr
	}
	return schema.CommandResponse{TerminalID: req.TerminalID, Command: req.Command, Success: true}, nil
}

func (f *fakeTransport) OpenStream(_ context.Context, path string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens[path]++
	if f.openErr != nil {
		return nil, f.openErr
	}
	stream := newFakeStream(path)
	stream.keepDelivering = f.keepAlive
	f.opened <- stream
	return stream, nil
}

func (f *fakeTransport) setOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

func (f *fakeTransport) openCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[path]
}

func (f *fakeTransport) sentCommands() []schema.CommandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.CommandRequest(nil), f.commands...)
}

func waitStream(t *testing.T, f *fakeTransport) *fakeStream {
	t.Helper()
	select {
	case stream := <-f.opened:
		return stream
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for stream open")
		return nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, ready func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ready() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}

type recordingSink struct {
	mu          sync.Mutex
	rosters     []schema.RosterEvent
	contents    []schema.ContentEvent
	connections []schema.ConnectionEvent
}

func (r *recordingSink) OnRoster(ev schema.RosterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, ev)
}

func (r *recordingSink) OnContent(ev schema.ContentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents = append(r.contents, ev)
}

func (r *recordingSink) OnConnection(ev schema.ConnectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = append(r.connections, ev)
}

func (r *recordingSink) contentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recordingSink) connectionStates(kind schema.StreamKind, id schema.TerminalID) []schema.ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schema.ConnState
	for _, ev := range r.connections {
		if ev.Kind == kind && ev.TerminalID == id {
			out = append(out, ev.State)
		}
	}
	return out
}

type harness struct {
	transport *fakeTransport
	clock     *clock.FakeClock
	sink      *recordingSink
	sync      *Sync
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(),
		clock:     clock.Fake(testEpoch),
		sink:      &recordingSink{},
	}
	s, err := NewSync(SyncConfig{}, SyncDeps{
		Transport: h.transport,
		EventSink: h.sink,
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}
	h.sync = s
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return h
}

func (h *harness) conns() *Connections {
	return h.sync.Connections()
}

func outputFrame(t *testing.T, id schema.TerminalID, content string, x, y int) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"content": content,
		"cursor":  map[string]int{"x": x, "y": y},
	})
	if err != nil {
		t.Fatalf("marshal output: %v", err)
	}
	frame, err := json.Marshal(map[string]any{
		"terminal_id": id,
		"event_type":  "output",
		"data":        json.RawMessage(data),
		"timestamp":   "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return string(frame)
}

func rosterFrame(t *testing.T, terminals ...schema.Terminal) string {
	t.Helper()
	if terminals == nil {
		terminals = []schema.Terminal{}
	}
	data, err := json.Marshal(terminals)
	if err != nil {
		t.Fatalf("marshal terminals: %v", err)
	}
	frame, err := json.Marshal(map[string]any{"type": "terminals", "data": json.RawMessage(data)})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return string(frame)
}

func terminal(id, window, tab, name string) schema.Terminal {
	return schema.Terminal{
		ID:       schema.TerminalID(id),
		Name:     name,
		WindowID: schema.WindowID(window),
		TabID:    schema.TabID(tab),
		Rows:     24,
		Columns:  80,
		IsActive: true,
	}
}
