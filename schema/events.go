package schema

import "encoding/json"

// UpdateEventType is the event_type of a per-terminal stream frame.
type UpdateEventType string

const (
	// UpdateOutput carries new terminal content and cursor.
	UpdateOutput UpdateEventType = "output"
	// UpdateStatus carries terminal status changes.
	UpdateStatus UpdateEventType = "status"
	// UpdateClosed signals that the remote terminal went away.
	UpdateClosed UpdateEventType = "closed"
)

// TerminalUpdate is a frame received on a per-terminal stream.
type TerminalUpdate struct {
	TerminalID TerminalID      `json:"terminal_id"`
	EventType  UpdateEventType `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	Timestamp  Timestamp       `json:"timestamp"`
}

// OutputData is the data payload of an output update.
type OutputData struct {
	Content string         `json:"content"`
	Cursor  CursorPosition `json:"cursor"`
}

// RosterMessageType is the type of a roster stream frame.
type RosterMessageType string

// RosterTerminals is the only roster frame type acted upon.
const RosterTerminals RosterMessageType = "terminals"

// RosterMessage is a frame received on the roster stream.
type RosterMessage struct {
	Type RosterMessageType `json:"type"`
	Data json.RawMessage   `json:"data"`
}

// StreamEventKind identifies what happened on a stream.
type StreamEventKind int

const (
	// StreamOpened is emitted once the stream handshake completed.
	StreamOpened StreamEventKind = iota
	// StreamMessage carries one inbound frame.
	StreamMessage
	// StreamError reports a failure; it does not close the stream by itself.
	StreamError
	// StreamClosed is the last event a stream emits.
	StreamClosed
)

func (k StreamEventKind) String() string {
	switch k {
	case StreamOpened:
		return "opened"
	case StreamMessage:
		return "message"
	case StreamError:
		return "error"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamEvent is delivered in order on a stream's event channel.
type StreamEvent struct {
	Kind StreamEventKind
	Data []byte
	Err  error
}

// ConnState is the lifecycle state of a subscription or the roster stream.
type ConnState string

const (
	// ConnAbsent means no stream handle exists.
	ConnAbsent ConnState = "absent"
	// ConnConnecting means a handle exists but the stream is not open yet.
	ConnConnecting ConnState = "connecting"
	// ConnOpen means the stream is delivering frames.
	ConnOpen ConnState = "open"
	// ConnRetrying means the roster stream closed and a reconnect is scheduled.
	ConnRetrying ConnState = "retrying"
)
