package schema

import "net/url"

const (
	// HealthPath is the remote health endpoint.
	HealthPath = "/health"
	// TerminalsPath lists terminals.
	TerminalsPath = "/api/terminals"
	// RosterStreamPath is the shared roster stream.
	RosterStreamPath = "/ws/terminals"
)

// ContentPath returns the content endpoint of a terminal.
func ContentPath(id TerminalID) string {
	return TerminalsPath + "/" + url.PathEscape(string(id)) + "/content"
}

// CommandPath returns the command endpoint of a terminal.
func CommandPath(id TerminalID) string {
	return TerminalsPath + "/" + url.PathEscape(string(id)) + "/command"
}

// TerminalStreamPath returns the per-terminal stream path.
func TerminalStreamPath(id TerminalID) string {
	return RosterStreamPath + "/" + url.PathEscape(string(id))
}
