package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeTerminalUpdate parses a per-terminal stream frame.
// terminal_id and event_type are required.
func DecodeTerminalUpdate(raw []byte) (TerminalUpdate, error) {
	var update TerminalUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return TerminalUpdate{}, &ParseError{What: "terminal update", Err: err}
	}
	if update.TerminalID == "" {
		return TerminalUpdate{}, &ParseError{What: "terminal update", Err: errMissing("terminal_id")}
	}
	if update.EventType == "" {
		return TerminalUpdate{}, &ParseError{What: "terminal update", Err: errMissing("event_type")}
	}
	return update, nil
}

// Output extracts the output payload. content and cursor are required.
func (u TerminalUpdate) Output() (OutputData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(u.Data, &fields); err != nil {
		return OutputData{}, &ParseError{What: "output data", Err: err}
	}
	rawContent, ok := fields["content"]
	if !ok {
		return OutputData{}, &ParseError{What: "output data", Err: errMissing("content")}
	}
	rawCursor, ok := fields["cursor"]
	if !ok || isNull(rawCursor) {
		return OutputData{}, &ParseError{What: "output data", Err: errMissing("cursor")}
	}
	var out OutputData
	if err := json.Unmarshal(rawContent, &out.Content); err != nil {
		return OutputData{}, &ParseError{What: "output content", Err: err}
	}
	var cursor map[string]json.RawMessage
	if err := json.Unmarshal(rawCursor, &cursor); err != nil {
		return OutputData{}, &ParseError{What: "output cursor", Err: err}
	}
	if _, ok := cursor["x"]; !ok {
		return OutputData{}, &ParseError{What: "output cursor", Err: errMissing("x")}
	}
	if _, ok := cursor["y"]; !ok {
		return OutputData{}, &ParseError{What: "output cursor", Err: errMissing("y")}
	}
	if err := json.Unmarshal(rawCursor, &out.Cursor); err != nil {
		return OutputData{}, &ParseError{What: "output cursor", Err: err}
	}
	return out, nil
}

// DecodeRosterMessage parses a roster stream frame envelope. type is required.
func DecodeRosterMessage(raw []byte) (RosterMessage, error) {
	var msg RosterMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return RosterMessage{}, &ParseError{What: "roster message", Err: err}
	}
	if msg.Type == "" {
		return RosterMessage{}, &ParseError{What: "roster message", Err: errMissing("type")}
	}
	return msg, nil
}

// Terminals decodes the data of a terminals frame. Every entry needs an id.
func (m RosterMessage) Terminals() ([]Terminal, error) {
	if isNull(m.Data) {
		return nil, &ParseError{What: "roster terminals", Err: errMissing("data")}
	}
	var terminals []Terminal
	if err := json.Unmarshal(m.Data, &terminals); err != nil {
		return nil, &ParseError{What: "roster terminals", Err: err}
	}
	for i, terminal := range terminals {
		if terminal.ID == "" {
			return nil, &ParseError{What: "roster terminals", Err: fmt.Errorf("entry %d: %w", i, errMissing("id"))}
		}
	}
	return terminals, nil
}

func errMissing(field string) error {
	return fmt.Errorf("missing field %q", field)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
