package schema

// TerminalID identifies a remote terminal session.
type TerminalID string

// WindowID groups terminals by remote window.
type WindowID string

// TabID groups terminals by remote tab.
type TabID string

// Terminal describes one remote terminal session as reported by the roster.
type Terminal struct {
	ID               TerminalID `json:"id"`
	Name             string     `json:"name"`
	WindowID         WindowID   `json:"window_id"`
	WindowTitle      string     `json:"window_title"`
	TabID            TabID      `json:"tab_id"`
	TabTitle         string     `json:"tab_title"`
	CurrentDirectory string     `json:"current_directory"`
	Command          *string    `json:"command,omitempty"`
	PID              *int       `json:"pid,omitempty"`
	Rows             int        `json:"rows"`
	Columns          int        `json:"columns"`
	CreatedAt        Timestamp  `json:"created_at"`
	LastActivity     Timestamp  `json:"last_activity"`
	IsActive         bool       `json:"is_active"`
}

// Clone returns a deep copy so callers never share optional fields with a store.
func (t Terminal) Clone() Terminal {
	out := t
	if t.Command != nil {
		command := *t.Command
		out.Command = &command
	}
	if t.PID != nil {
		pid := *t.PID
		out.PID = &pid
	}
	return out
}

// Label returns a short human readable label for the terminal.
func (t Terminal) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.ID)
}
