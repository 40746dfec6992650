package schema

// CommandRequest asks the remote to write text into a terminal.
// A nil Newline means the remote default (append a newline).
type CommandRequest struct {
	TerminalID TerminalID `json:"terminal_id"`
	Command    string     `json:"command"`
	Newline    *bool      `json:"newline,omitempty"`
}

// CommandResponse reports the outcome of a command send.
type CommandResponse struct {
	TerminalID TerminalID `json:"terminal_id"`
	Command    string     `json:"command"`
	Success    bool       `json:"success"`
	Timestamp  Timestamp  `json:"timestamp"`
	Error      *string    `json:"error,omitempty"`
}

// NewCommandRequest builds a request with an explicit newline choice.
func NewCommandRequest(id TerminalID, command string, newline bool) CommandRequest {
	return CommandRequest{
		TerminalID: id,
		Command:    command,
		Newline:    &newline,
	}
}

// AppendNewline reports whether the command should be terminated by a newline.
func (r CommandRequest) AppendNewline() bool {
	if r.Newline == nil {
		return true
	}
	return *r.Newline
}
