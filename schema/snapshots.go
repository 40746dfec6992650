package schema

// CursorPosition is a zero-based cursor location inside a terminal buffer.
type CursorPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TerminalContent is the last known buffer state of one terminal.
// HasMoreHistory is only ever true for snapshots obtained by fetch.
type TerminalContent struct {
	TerminalID     TerminalID     `json:"terminal_id"`
	Content        string         `json:"content"`
	VisibleContent string         `json:"visible_content"`
	CursorPosition CursorPosition `json:"cursor_position"`
	HasMoreHistory bool           `json:"has_more_history"`
	Timestamp      Timestamp      `json:"timestamp"`
}

// HealthStatus reports remote service health.
type HealthStatus struct {
	Status            string    `json:"status"`
	ConnectedToITerm2 bool      `json:"connected_to_iterm2"`
	Timestamp         Timestamp `json:"timestamp"`
}

// Healthy reports whether the remote considers itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}
