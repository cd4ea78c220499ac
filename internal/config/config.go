// Package config loads and validates the doiwatch configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite file path
	URL    string `yaml:"url"`    // postgres connection string
}

// MonitorConfig holds cycle scheduling settings.
type MonitorConfig struct {
	Interval       Duration `yaml:"interval"`
	CycleBudget    Duration `yaml:"cycle_budget"`
	MaxConcurrency int      `yaml:"max_concurrency"`
}

// ProbeConfig holds per-probe tunables. MaxRetries is a pointer so an
// explicit zero (no retries) is distinguishable from unset.
type ProbeConfig struct {
	UserAgent       string   `yaml:"user_agent"`
	Timeout         Duration `yaml:"timeout"`
	MaxRetries      *int     `yaml:"max_retries"`
	RetryDelay      Duration `yaml:"retry_delay"`
	FollowRedirects *bool    `yaml:"follow_redirects"`
	ResolverBase    string   `yaml:"resolver_base"`
}

// AlertsConfig holds alert dispatch settings.
type AlertsConfig struct {
	Enabled          bool     `yaml:"enabled"`
	EndpointURL      string   `yaml:"endpoint_url"`
	AuthToken        string   `yaml:"auth_token"`
	MaxMessageLength int      `yaml:"max_message_length"`
	MaxRetries       *int     `yaml:"max_retries"`
	RetryDelay       Duration `yaml:"retry_delay"`
	Timeout          Duration `yaml:"timeout"`
}

// Config is the root application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Monitor MonitorConfig `yaml:"monitor"`
	Probe   ProbeConfig   `yaml:"probe"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// FollowRedirectsOrDefault returns the configured redirect policy,
// defaulting to true.
func (p ProbeConfig) FollowRedirectsOrDefault() bool {
	if p.FollowRedirects == nil {
		return true
	}
	return *p.FollowRedirects
}

// MaxRetriesOrDefault returns the configured probe retry count,
// defaulting to 2.
func (p ProbeConfig) MaxRetriesOrDefault() int {
	if p.MaxRetries == nil {
		return 2
	}
	return *p.MaxRetries
}

// MaxRetriesOrDefault returns the configured alert retry count,
// defaulting to 2.
func (a AlertsConfig) MaxRetriesOrDefault() int {
	if a.MaxRetries == nil {
		return 2
	}
	return *a.MaxRetries
}

// Load reads, parses, validates and defaults the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "doiwatch.db"
	}
	if cfg.Monitor.Interval.Duration == 0 {
		cfg.Monitor.Interval = Duration{24 * time.Hour}
	}
	if cfg.Monitor.MaxConcurrency == 0 {
		cfg.Monitor.MaxConcurrency = 1
	}
	if cfg.Probe.UserAgent == "" {
		cfg.Probe.UserAgent = "doiwatch/1.0 (+https://github.com/hazz-dev/doiwatch)"
	}
	if cfg.Probe.Timeout.Duration == 0 {
		cfg.Probe.Timeout = Duration{15 * time.Second}
	}
	if cfg.Probe.RetryDelay.Duration == 0 {
		cfg.Probe.RetryDelay = Duration{2 * time.Second}
	}
	if cfg.Alerts.MaxMessageLength == 0 {
		cfg.Alerts.MaxMessageLength = 2000
	}
	if cfg.Alerts.RetryDelay.Duration == 0 {
		cfg.Alerts.RetryDelay = Duration{time.Second}
	}
	if cfg.Alerts.Timeout.Duration == 0 {
		cfg.Alerts.Timeout = Duration{10 * time.Second}
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.URL == "" {
			return fmt.Errorf("storage: postgres driver requires url")
		}
	default:
		return fmt.Errorf("storage: invalid driver %q (must be sqlite or postgres)", cfg.Storage.Driver)
	}

	if cfg.Monitor.MaxConcurrency < 1 {
		return fmt.Errorf("monitor: max_concurrency must be at least 1")
	}
	if cfg.Monitor.Interval.Duration < time.Second {
		return fmt.Errorf("monitor: interval %s too short", cfg.Monitor.Interval.Duration)
	}
	if cfg.Probe.MaxRetriesOrDefault() < 0 || cfg.Alerts.MaxRetriesOrDefault() < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if cfg.Alerts.Enabled && cfg.Alerts.EndpointURL == "" {
		return fmt.Errorf("alerts: enabled but no endpoint_url configured")
	}
	if cfg.Alerts.MaxMessageLength < 32 {
		return fmt.Errorf("alerts: max_message_length %d too small", cfg.Alerts.MaxMessageLength)
	}
	return nil
}
