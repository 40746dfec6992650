package httpapi

import "time"

const (
	defaultRosterInterval = 5 * time.Second
	writeTimeout          = 5 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// Config defines the reference remote settings.
type Config struct {
	Addr string
	// RosterInterval is how often roster streams receive the full list.
	RosterInterval time.Duration
	// HubDepth bounds buffered frames per stream subscriber.
	HubDepth int
}
