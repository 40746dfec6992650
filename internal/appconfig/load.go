package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. TERMSYNC_REMOTE_API_URL.
const EnvPrefix = "TERMSYNC"

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults plus environment
// overrides.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("remote.api_url", cfg.Remote.APIURL)
	v.SetDefault("remote.stream_url", cfg.Remote.StreamURL)
	v.SetDefault("remote.request_timeout_seconds", cfg.Remote.RequestTimeoutSeconds)
	v.SetDefault("remote.handshake_timeout_seconds", cfg.Remote.HandshakeTimeoutSeconds)
	v.SetDefault("roster.reconnect_delay_seconds", cfg.Roster.ReconnectDelaySeconds)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("mock.addr", cfg.Mock.Addr)
	v.SetDefault("mock.roster_interval_seconds", cfg.Mock.RosterIntervalSeconds)
	v.SetDefault("mock.seed", cfg.Mock.Seed)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateRemoteConfig(cfg.Remote); err != nil {
		return Config{}, err
	}
	if cfg.Roster.ReconnectDelaySeconds <= 0 {
		return Config{}, fmt.Errorf("roster.reconnect_delay_seconds must be positive")
	}
	if cfg.Mock.RosterIntervalSeconds <= 0 {
		return Config{}, fmt.Errorf("mock.roster_interval_seconds must be positive")
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return os.IsNotExist(err)
}

func validateRemoteConfig(cfg RemoteConfig) error {
	if err := validateURL("remote.api_url", cfg.APIURL, true, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("remote.stream_url", cfg.StreamURL, false, "ws", "wss"); err != nil {
		return err
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("remote.request_timeout_seconds must be positive")
	}
	if cfg.HandshakeTimeoutSeconds <= 0 {
		return fmt.Errorf("remote.handshake_timeout_seconds must be positive")
	}
	return nil
}

func validateURL(key, raw string, required bool, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host (e.g. %s://localhost:4001)", key, schemes[0])
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s must use %s", key, strings.Join(schemes, " or "))
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Remote.APIURL = expandEnv(cfg.Remote.APIURL)
	cfg.Remote.StreamURL = expandEnv(cfg.Remote.StreamURL)
	cfg.Metrics.Addr = expandEnv(cfg.Metrics.Addr)
	cfg.Mock.Addr = expandEnv(cfg.Mock.Addr)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
