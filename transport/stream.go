package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/pslog"
	"pkt.systems/termsync/core"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

const (
	streamBuffer      = 64
	closeWriteTimeout = time.Second
)

// OpenStream starts dialing base stream URL + path and returns at once. The
// stream ends when the remote closes, the dial fails, ctx is cancelled or
// Close is called.
func (c *Client) OpenStream(ctx context.Context, path string) (core.Stream, error) {
	target := c.streamBase + path
	ctx, cancel := context.WithCancel(ctx)
	s := &wsStream{
		url:    target,
		events: make(chan schema.StreamEvent, streamBuffer),
		ctx:    ctx,
		cancel: cancel,
		log:    logx.WithStream(c.log, "", path),
	}
	go s.run(c.dialer)
	return s, nil
}

type wsStream struct {
	url    string
	events chan schema.StreamEvent
	ctx    context.Context
	cancel context.CancelFunc
	log    pslog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *wsStream) Events() <-chan schema.StreamEvent {
	return s.events
}

// Close ends the stream. Safe to call more than once and from any goroutine.
func (s *wsStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout),
	)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// release marks the stream closed once the read loop is done, so a later
// Close has nothing left to tear down.
func (s *wsStream) release(conn *websocket.Conn) {
	s.mu.Lock()
	s.closed = true
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *wsStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsStream) run(dialer *websocket.Dialer) {
	defer close(s.events)
	defer s.finish()

	conn, resp, err := dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		if s.isClosed() {
			return
		}
		netErr := &schema.NetworkError{Op: "open stream", URL: s.url, Err: err}
		if resp != nil {
			netErr.Status = resp.StatusCode
		}
		s.log.Debug("stream dial failed", "err", err)
		s.emit(schema.StreamEvent{Kind: schema.StreamError, Err: netErr})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()
	defer s.release(conn)

	s.log.Debug("stream open", "url", s.url)
	s.emit(schema.StreamEvent{Kind: schema.StreamOpened})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.isClosed() && s.ctx.Err() == nil && !expectedClose(err) {
				s.emit(schema.StreamEvent{Kind: schema.StreamError, Err: &schema.NetworkError{Op: "read stream", URL: s.url, Err: err}})
			}
			return
		}
		s.log.Trace("stream frame", "bytes", len(data))
		s.emit(schema.StreamEvent{Kind: schema.StreamMessage, Data: data})
	}
}

// emit delivers ev unless the stream was closed locally.
func (s *wsStream) emit(ev schema.StreamEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// finish delivers Closed. A locally closed stream only gets it when the
// buffer has room, so an abandoned consumer cannot block the goroutine.
func (s *wsStream) finish() {
	ev := schema.StreamEvent{Kind: schema.StreamClosed}
	if s.ctx.Err() != nil {
		select {
		case s.events <- ev:
		default:
		}
		return
	}
	s.events <- ev
	s.cancel()
}

func expectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
