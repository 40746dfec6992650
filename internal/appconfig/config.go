package appconfig

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Remote        RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Roster        RosterConfig  `mapstructure:"roster" yaml:"roster"`
	Metrics       MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Mock          MockConfig    `mapstructure:"mock" yaml:"mock"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// RemoteConfig locates the remote terminal service.
type RemoteConfig struct {
	APIURL string `mapstructure:"api_url" yaml:"api_url"`
	// StreamURL is derived from APIURL (http→ws, https→wss) when empty.
	StreamURL               string `mapstructure:"stream_url" yaml:"stream_url"`
	RequestTimeoutSeconds   int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds" yaml:"handshake_timeout_seconds"`
}

// RequestTimeout returns the per-request timeout.
func (c RemoteConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the stream handshake timeout.
func (c RemoteConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// RosterConfig controls roster stream recovery.
type RosterConfig struct {
	ReconnectDelaySeconds int `mapstructure:"reconnect_delay_seconds" yaml:"reconnect_delay_seconds"`
}

// ReconnectDelay returns the fixed delay before reopening the roster stream.
func (c RosterConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// MetricsConfig configures the Prometheus endpoint of long-running commands.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// MockConfig configures the reference remote served by serve-mock.
type MockConfig struct {
	Addr                  string `mapstructure:"addr" yaml:"addr"`
	RosterIntervalSeconds int    `mapstructure:"roster_interval_seconds" yaml:"roster_interval_seconds"`
	Seed                  int    `mapstructure:"seed" yaml:"seed"`
}

// RosterInterval returns how often the reference remote re-sends the roster.
func (c MockConfig) RosterInterval() time.Duration {
	return time.Duration(c.RosterIntervalSeconds) * time.Second
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Remote: RemoteConfig{
			APIURL:                  "http://localhost:4001",
			StreamURL:               "",
			RequestTimeoutSeconds:   10,
			HandshakeTimeoutSeconds: 10,
		},
		Roster: RosterConfig{
			ReconnectDelaySeconds: 5,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Mock: MockConfig{
			Addr:                  ":4001",
			RosterIntervalSeconds: 5,
			Seed:                  3,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termsync", "config.yaml"), nil
}
