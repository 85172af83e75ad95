package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8710", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:8710", cfg.Server.Addr())

	// IPC config
	assert.Equal(t, BusSession, cfg.IPC.Bus)
	assert.Equal(t, 5*time.Second, cfg.IPC.LaunchTimeout)

	// Instance config
	assert.Equal(t, 10*time.Minute, cfg.Instance.ReapTTL)
	assert.Equal(t, 256, cfg.Instance.QueueSize)

	// Store config
	assert.Equal(t, ".widget.db", filepath.Base(cfg.Store.Path))

	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"WIDGETD_SERVER_PORT":            "9000",
		"WIDGETD_SERVER_HOST":            "0.0.0.0",
		"WIDGETD_SERVER_ENABLED":         "false",
		"WIDGETD_VIEWER_ID":              "org.example.homescreen",
		"WIDGETD_STORE_PATH":             "/var/lib/widgetd/widget.db",
		"WIDGETD_IPC_BUS":                "system",
		"WIDGETD_IPC_LAUNCHER_DEST":      "org.example.Launcher",
		"WIDGETD_IPC_LAUNCH_TIMEOUT":     "2s",
		"WIDGETD_INSTANCE_REAP_TTL":      "1h",
		"WIDGETD_INSTANCE_REAP_INTERVAL": "5m",
		"WIDGETD_INSTANCE_QUEUE_SIZE":    "32",
		"WIDGETD_LOGGING_LEVEL":          "debug",
		"WIDGETD_LOGGING_DEVELOPMENT":    "true",
		"WIDGETD_RATE_LIMIT_RPS":         "500",
		"WIDGETD_RATE_LIMIT_BURST":       "1000",
		"WIDGETD_RATE_LIMIT_ENABLED":     "false",
		"WIDGETD_RATE_LIMIT_GLOBAL":      "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "org.example.homescreen", cfg.Viewer.ID)
	assert.Equal(t, "/var/lib/widgetd/widget.db", cfg.Store.Path)
	assert.Equal(t, BusSystem, cfg.IPC.Bus)
	assert.Equal(t, "org.example.Launcher", cfg.IPC.LauncherDest)
	assert.Equal(t, 2*time.Second, cfg.IPC.LaunchTimeout)
	assert.Equal(t, time.Hour, cfg.Instance.ReapTTL)
	assert.Equal(t, 5*time.Minute, cfg.Instance.ReapInterval)
	assert.Equal(t, 32, cfg.Instance.QueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.RateLimit.Global)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
viewer:
  id: org.example.lockscreen
ipc:
  bus: loopback
instance:
  reap_ttl: 30s
logging:
  level: warn
`), 0o600))

	t.Setenv("WIDGETD_SERVER_PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment wins over the file
	assert.Equal(t, "7001", cfg.Server.Port)
	// File wins over defaults
	assert.Equal(t, "org.example.lockscreen", cfg.Viewer.ID)
	assert.Equal(t, BusLoopback, cfg.IPC.Bus)
	assert.Equal(t, 30*time.Second, cfg.Instance.ReapTTL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Untouched values keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 256, cfg.Instance.QueueSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("WIDGETD_INSTANCE_QUEUE_SIZE", "lots")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty viewer", func(c *Config) { c.Viewer.ID = "" }},
		{"empty store", func(c *Config) { c.Store.Path = "" }},
		{"unknown bus", func(c *Config) { c.IPC.Bus = "tcp" }},
		{"negative ttl", func(c *Config) { c.Instance.ReapTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
