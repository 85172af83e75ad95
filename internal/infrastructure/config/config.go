package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. WIDGETD_SERVER_PORT
const EnvPrefix = "WIDGETD"

// Bus kinds
const (
	BusSession  = "session"
	BusSystem   = "system"
	BusLoopback = "loopback"
)

// Config holds all daemon configuration. Environment keys are derived
// from field names, e.g. Instance.ReapTTL is WIDGETD_INSTANCE_REAP_TTL.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Viewer    ViewerConfig    `yaml:"viewer"`
	Store     StoreConfig     `yaml:"store"`
	IPC       IPCConfig       `yaml:"ipc"`
	Instance  InstanceConfig  `yaml:"instance"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// ServerConfig holds HTTP control surface configuration.
type ServerConfig struct {
	Port    string `yaml:"port"`
	Host    string `yaml:"host"`
	Enabled bool   `yaml:"enabled"`
}

// ViewerConfig names the viewer whose instances the daemon tracks.
type ViewerConfig struct {
	ID string `yaml:"id"`
}

// StoreConfig holds instance database configuration.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// IPCConfig selects the platform transport.
type IPCConfig struct {
	Bus           string        `yaml:"bus"`
	LauncherDest  string        `yaml:"launcher_dest" split_words:"true"`
	LauncherPath  string        `yaml:"launcher_path" split_words:"true"`
	LaunchTimeout time.Duration `yaml:"launch_timeout" split_words:"true"`
}

// InstanceConfig tunes the instance service.
type InstanceConfig struct {
	ReapTTL      time.Duration `yaml:"reap_ttl" envconfig:"REAP_TTL"`
	ReapInterval time.Duration `yaml:"reap_interval" split_words:"true"`
	QueueSize    int           `yaml:"queue_size" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `yaml:"rps" envconfig:"RPS"`
	Burst             int  `yaml:"burst"`
	Enabled           bool `yaml:"enabled"`
	// Global shares one bucket between all callers instead of one per IP
	Global bool `yaml:"global"`
}

// Load builds configuration from defaults, the optional YAML file at path
// and then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the daemon cannot start with
func (c *Config) Validate() error {
	if c.Viewer.ID == "" {
		return fmt.Errorf("viewer id must be set")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must be set")
	}
	switch c.IPC.Bus {
	case BusSession, BusSystem, BusLoopback:
	default:
		return fmt.Errorf("unknown ipc bus %q", c.IPC.Bus)
	}
	if c.Instance.ReapTTL < 0 || c.Instance.ReapInterval < 0 {
		return fmt.Errorf("reap durations must not be negative")
	}
	return nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8710",
			Host:    "127.0.0.1",
			Enabled: true,
		},
		Viewer: ViewerConfig{
			ID: "org.tizen.widget-viewer",
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		IPC: IPCConfig{
			Bus:           BusSession,
			LauncherDest:  "org.tizen.AppLauncher",
			LauncherPath:  "/org/tizen/AppLauncher",
			LaunchTimeout: 5 * time.Second,
		},
		Instance: InstanceConfig{
			ReapTTL:      10 * time.Minute,
			ReapInterval: time.Minute,
			QueueSize:    256,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

func defaultStorePath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".widget.db")
	}
	return filepath.Join(os.TempDir(), ".widget.db")
}
