package schema

import (
	"strings"
	"time"
)

// Timestamp is a remote-issued timestamp kept verbatim.
// The remote may omit the zone offset, so parsing is deferred to Time.
type Timestamp string

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Time parses the timestamp. Values without a zone are interpreted as UTC.
func (t Timestamp) Time() (time.Time, bool) {
	raw := strings.TrimSpace(string(t))
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// NewTimestamp formats a time the way the remote service does.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(time.RFC3339Nano))
}
