package schema

// ContentOrigin records how a content snapshot was obtained.
type ContentOrigin string

const (
	// ContentFetched snapshots come from the content endpoint.
	ContentFetched ContentOrigin = "fetch"
	// ContentPushed snapshots come from an output frame.
	ContentPushed ContentOrigin = "push"
)

// StreamKind distinguishes the shared roster stream from per-terminal streams.
type StreamKind string

const (
	// StreamRoster is the shared roster stream.
	StreamRoster StreamKind = "roster"
	// StreamTerminal is a per-terminal stream.
	StreamTerminal StreamKind = "terminal"
)

// RosterEvent reports a full roster replacement.
type RosterEvent struct {
	Count int
}

// ContentEvent reports a content snapshot replacement.
type ContentEvent struct {
	TerminalID TerminalID
	Origin     ContentOrigin
}

// ConnectionEvent reports a stream lifecycle transition.
// TerminalID is empty for the roster stream.
type ConnectionEvent struct {
	Kind       StreamKind
	TerminalID TerminalID
	State      ConnState
}
