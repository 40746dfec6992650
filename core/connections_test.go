package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/termsync/schema"
)

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()

	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if got := h.transport.openCount(schema.TerminalStreamPath("a")); got != 1 {
		t.Fatalf("expected one open call, got %d", got)
	}
	if !conns.Subscribed("a") {
		t.Fatalf("expected subscription for a")
	}
	if got := conns.State("a"); got != schema.ConnConnecting {
		t.Fatalf("expected connecting, got %s", got)
	}

	stream := waitStream(t, h.transport)
	stream.open()
	waitFor(t, time.Second, func() bool { return conns.State("a") == schema.ConnOpen })
}

func TestConnectRejectsInvalidID(t *testing.T) {
	h := newHarness(t)
	if err := h.conns().Connect(""); !errors.Is(err, schema.ErrInvalidTerminal) {
		t.Fatalf("expected ErrInvalidTerminal, got %v", err)
	}
}

func TestConnectOpenFailureRegistersNothing(t *testing.T) {
	h := newHarness(t)
	h.transport.setOpenErr(errors.New("dial refused"))
	if err := h.conns().Connect("a"); err == nil {
		t.Fatalf("expected open error")
	}
	if h.conns().Subscribed("a") {
		t.Fatalf("expected no subscription after failed open")
	}
}

func TestOutputFrameUpdatesContent(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream := waitStream(t, h.transport)
	stream.open()
	stream.message(outputFrame(t, "a", "hello\nworld", 5, 1))

	waitFor(t, time.Second, func() bool {
		_, ok := h.sync.Content("a")
		return ok
	})
	got, _ := h.sync.Content("a")
	if got.Content != "hello\nworld" || got.VisibleContent != "hello\nworld" {
		t.Fatalf("unexpected content %+v", got)
	}
	if got.CursorPosition != (schema.CursorPosition{X: 5, Y: 1}) {
		t.Fatalf("unexpected cursor %+v", got.CursorPosition)
	}
	if got.HasMoreHistory {
		t.Fatalf("expected has_more_history false for pushed content")
	}
}

func TestPushedContentKeyedBySubscription(t *testing.T) {
	h := newHarness(t)
	if err := h.conns().Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream := waitStream(t, h.transport)
	stream.message(outputFrame(t, "b", "from a's stream", 0, 0))

	waitFor(t, time.Second, func() bool {
		_, ok := h.sync.Content("a")
		return ok
	})
	if _, ok := h.sync.Content("b"); ok {
		t.Fatalf("expected nothing stored under the payload id")
	}
}

func TestStreamsDoNotCrossContaminate(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	streamA := waitStream(t, h.transport)
	if err := conns.Connect("b"); err != nil {
		t.Fatalf("connect b: %v", err)
	}
	streamB := waitStream(t, h.transport)

	streamB.message(outputFrame(t, "b", "bee", 0, 0))
	waitFor(t, time.Second, func() bool {
		_, ok := h.sync.Content("b")
		return ok
	})
	streamA.message(outputFrame(t, "a", "ay", 0, 0))
	streamA.message(outputFrame(t, "a", "ay again", 0, 0))
	waitFor(t, time.Second, func() bool {
		got, _ := h.sync.Content("a")
		return got.Content == "ay again"
	})

	got, _ := h.sync.Content("b")
	if got.Content != "bee" {
		t.Fatalf("expected b untouched, got %q", got.Content)
	}
}

func TestMalformedFramesAreDiscarded(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream := waitStream(t, h.transport)
	stream.open()
	stream.message(`{not json`)
	stream.message(`{"terminal_id":"a","event_type":"output","data":{"content":"x"},"timestamp":""}`)
	stream.message(`{"terminal_id":"a","event_type":"output","data":{"cursor":{"x":0,"y":0}},"timestamp":""}`)
	stream.message(`{"terminal_id":"a","event_type":"status","data":{"state":"busy"},"timestamp":""}`)
	stream.message(`{"terminal_id":"a","event_type":"closed","data":null,"timestamp":""}`)
	stream.fail(errors.New("transient"))
	stream.message(outputFrame(t, "a", "good", 1, 0))

	waitFor(t, time.Second, func() bool {
		_, ok := h.sync.Content("a")
		return ok
	})
	got, _ := h.sync.Content("a")
	if got.Content != "good" {
		t.Fatalf("expected only the good frame applied, got %q", got.Content)
	}
	if !conns.Subscribed("a") || conns.State("a") != schema.ConnOpen {
		t.Fatalf("expected subscription to stay open")
	}
	if got := h.sink.contentCount(); got != 1 {
		t.Fatalf("expected one content event, got %d", got)
	}
}

func TestDisconnectClosesAndRemoves(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream := waitStream(t, h.transport)

	conns.Disconnect("a")
	if conns.Subscribed("a") {
		t.Fatalf("expected subscription removed synchronously")
	}
	if stream.closes() != 1 {
		t.Fatalf("expected stream closed once, got %d", stream.closes())
	}
	conns.Disconnect("a")
	conns.Disconnect("never")
	if stream.closes() != 1 {
		t.Fatalf("expected repeated disconnect to be a no-op")
	}

	if err := conns.Connect("a"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got := h.transport.openCount(schema.TerminalStreamPath("a")); got != 2 {
		t.Fatalf("expected a fresh open after disconnect, got %d", got)
	}
}

func TestFramesAfterDisconnectAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.transport.keepAlive = true
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream := waitStream(t, h.transport)
	stream.message(outputFrame(t, "a", "before", 0, 0))
	waitFor(t, time.Second, func() bool {
		_, ok := h.sync.Content("a")
		return ok
	})

	conns.Disconnect("a")
	stream.message(outputFrame(t, "a", "after", 0, 0))
	stream.end()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conns.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	got, _ := h.sync.Content("a")
	if got.Content != "before" {
		t.Fatalf("expected late frame ignored, got %q", got.Content)
	}
}

func TestRemoteCloseDropsSubscriptionWithoutReconnect(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream := waitStream(t, h.transport)
	stream.open()
	stream.end()

	waitFor(t, time.Second, func() bool { return !conns.Subscribed("a") })
	h.clock.Advance(time.Minute)
	if got := h.transport.openCount(schema.TerminalStreamPath("a")); got != 1 {
		t.Fatalf("expected no reconnect, got %d opens", got)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no timers, got %d", h.clock.Pending())
	}
	states := h.sink.connectionStates(schema.StreamTerminal, "a")
	want := []schema.ConnState{schema.ConnConnecting, schema.ConnOpen, schema.ConnAbsent}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
}

func TestSubscriptionsSorted(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	for _, id := range []schema.TerminalID{"c", "a", "b"} {
		if err := conns.Connect(id); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
		waitStream(t, h.transport)
	}
	got := conns.Subscriptions()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected subscriptions %v", got)
	}
}

func TestRosterFrameReplacesRoster(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.EnsureRosterConnected(); err != nil {
		t.Fatalf("ensure roster: %v", err)
	}
	stream := waitStream(t, h.transport)
	if stream.path != schema.RosterStreamPath {
		t.Fatalf("unexpected roster path %q", stream.path)
	}
	stream.open()
	stream.message(rosterFrame(t, terminal("a", "w1", "t1", "a"), terminal("b", "w1", "t1", "b")))
	waitFor(t, time.Second, func() bool { return len(h.sync.Terminals()) == 2 })

	stream.message(`{"type":"ping","data":{}}`)
	stream.message(`{"type":"terminals","data":null}`)
	stream.message(`{"data":[]}`)
	stream.message(rosterFrame(t, terminal("c", "w1", "t1", "c")))
	waitFor(t, time.Second, func() bool {
		terminals := h.sync.Terminals()
		return len(terminals) == 1 && terminals[0].ID == "c"
	})
	if conns.RosterState() != schema.ConnOpen {
		t.Fatalf("expected roster open, got %s", conns.RosterState())
	}
}

func TestEnsureRosterConnectedIsNoopWithHandle(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.EnsureRosterConnected(); err != nil {
		t.Fatalf("ensure roster: %v", err)
	}
	if err := conns.EnsureRosterConnected(); err != nil {
		t.Fatalf("second ensure roster: %v", err)
	}
	if got := h.transport.openCount(schema.RosterStreamPath); got != 1 {
		t.Fatalf("expected one roster open, got %d", got)
	}
}

func TestRosterReconnectsAfterDelay(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.EnsureRosterConnected(); err != nil {
		t.Fatalf("ensure roster: %v", err)
	}
	stream := waitStream(t, h.transport)
	stream.open()
	stream.end()

	h.clock.WaitForTimers(1)
	if conns.RosterState() != schema.ConnRetrying {
		t.Fatalf("expected retrying, got %s", conns.RosterState())
	}
	h.clock.Advance(4999 * time.Millisecond)
	if got := h.transport.openCount(schema.RosterStreamPath); got != 1 {
		t.Fatalf("expected no reconnect before the delay, got %d opens", got)
	}
	h.clock.Advance(time.Millisecond)
	next := waitStream(t, h.transport)
	if next.path != schema.RosterStreamPath {
		t.Fatalf("unexpected reconnect path %q", next.path)
	}
	if got := h.transport.openCount(schema.RosterStreamPath); got != 2 {
		t.Fatalf("expected exactly one reconnect, got %d opens", got)
	}

	next.message(rosterFrame(t, terminal("a", "w1", "t1", "a")))
	waitFor(t, time.Second, func() bool { return len(h.sync.Terminals()) == 1 })
}

func TestRosterOpenFailureSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	h.transport.setOpenErr(errors.New("dial refused"))
	if err := conns.EnsureRosterConnected(); err == nil {
		t.Fatalf("expected open error")
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected a scheduled retry, got %d timers", h.clock.Pending())
	}

	h.clock.Advance(5 * time.Second)
	if got := h.transport.openCount(schema.RosterStreamPath); got != 2 {
		t.Fatalf("expected second attempt, got %d", got)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected retry rescheduled after another failure")
	}

	h.transport.setOpenErr(nil)
	h.clock.Advance(5 * time.Second)
	waitStream(t, h.transport)
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no pending retry once connected")
	}
}

func TestShutdownCancelsRetryAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	conns := h.conns()
	if err := conns.Connect("a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	termStream := waitStream(t, h.transport)
	if err := conns.EnsureRosterConnected(); err != nil {
		t.Fatalf("ensure roster: %v", err)
	}
	rosterStream := waitStream(t, h.transport)
	rosterStream.end()
	h.clock.WaitForTimers(1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conns.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected retry cancelled")
	}
	if termStream.closes() != 1 {
		t.Fatalf("expected terminal stream closed")
	}
	if len(conns.Subscriptions()) != 0 {
		t.Fatalf("expected no subscriptions")
	}
	h.clock.Advance(time.Minute)
	if got := h.transport.openCount(schema.RosterStreamPath); got != 1 {
		t.Fatalf("expected no reconnect after shutdown, got %d", got)
	}

	if err := conns.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if err := conns.Connect("b"); !errors.Is(err, schema.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := conns.EnsureRosterConnected(); !errors.Is(err, schema.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
