package core

import (
	"context"

	"pkt.systems/termsync/schema"
)

// Transport issues request/response calls and opens streams against the
// remote terminal service. It owns no state and never retries.
type Transport interface {
	FetchTerminals(ctx context.Context) ([]schema.Terminal, error)
	FetchContent(ctx context.Context, id schema.TerminalID) (schema.TerminalContent, error)
	SendCommand(ctx context.Context, req schema.CommandRequest) (schema.CommandResponse, error)
	// OpenStream returns without waiting for the handshake. The stream
	// reports progress on Events.
	OpenStream(ctx context.Context, path string) (Stream, error)
}

// Stream is a live inbound channel of frames.
//
// Events delivers Opened, then Message/Error events in the order the remote
// sent them, then Closed, after which the channel is closed. Close is
// idempotent; events racing a Close may be dropped, including Closed itself,
// but the channel is always closed.
type Stream interface {
	Events() <-chan schema.StreamEvent
	Close() error
}
