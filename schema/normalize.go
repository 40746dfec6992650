package schema

import "unicode"

// ValidateTerminalID rejects empty ids and ids with control characters. Ids
// are otherwise opaque, surrounding whitespace included.
func ValidateTerminalID(id TerminalID) error {
	raw := string(id)
	if raw == "" {
		return ErrInvalidTerminal
	}
	for _, r := range raw {
		if unicode.IsControl(r) {
			return ErrInvalidTerminal
		}
	}
	return nil
}

// NormalizeCommandRequest validates the request and fills the id from the path
// when the body omitted it.
func NormalizeCommandRequest(id TerminalID, req CommandRequest) (CommandRequest, error) {
	if err := ValidateTerminalID(id); err != nil {
		return CommandRequest{}, err
	}
	if req.TerminalID == "" {
		req.TerminalID = id
	}
	if req.TerminalID != id {
		return CommandRequest{}, ErrInvalidTerminal
	}
	if req.Command == "" {
		return CommandRequest{}, ErrEmptyCommand
	}
	return req, nil
}
