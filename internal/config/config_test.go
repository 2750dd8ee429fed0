package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/godot-bridge/internal/errors"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "VisualStudio", cfg.Messaging.Identity)
	assert.Equal(t, 5*time.Second, cfg.Messaging.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Messaging.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Messaging.ConnectRetryWindow)

	assert.Equal(t, 8800, cfg.Launcher.BasePort)
	assert.Equal(t, 100, cfg.Launcher.PortRange)
	assert.Equal(t, 3, cfg.Launcher.MaxConnectionAttempts)
	assert.Equal(t, 10*time.Second, cfg.Launcher.AttemptWindow)

	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.SettingsPath)
	require.NoError(t, cfg.Validate())
}

// TestLoadConfig_EmptyPath verifies that an empty path yields the defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestLoadConfig_YAMLFile verifies loading a YAML file over the defaults.
func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `messaging:
  identity: Rider
  requestTimeout: 3s
launcher:
  basePort: 9000
  portRange: 10
  editorPath: /opt/godot/godot
maxSessions: 2
logLevel: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Rider", cfg.Messaging.Identity)
	assert.Equal(t, 3*time.Second, cfg.Messaging.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Messaging.HandshakeTimeout, "unset fields keep their default")
	assert.Equal(t, 9000, cfg.Launcher.BasePort)
	assert.Equal(t, 10, cfg.Launcher.PortRange)
	assert.Equal(t, "/opt/godot/godot", cfg.Launcher.EditorPath)
	assert.Equal(t, 2, cfg.MaxSessions)
	assert.Equal(t, "debug", cfg.LogLevel)
}

// TestLoadConfig_JSONFile verifies that JSON files are accepted too.
func TestLoadConfig_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxSessions": 4, "launcher": {"maxConnectionAttempts": 5}}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxSessions)
	assert.Equal(t, 5, cfg.Launcher.MaxConnectionAttempts)
}

// TestLoadConfig_Errors verifies missing, malformed and invalid files.
func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	malformed := filepath.Join(dir, "malformed.yaml")
	require.NoError(t, os.WriteFile(malformed, []byte("messaging: [unclosed"), 0o644))
	_, err = LoadConfig(malformed)
	require.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("maxSessions: 0\n"), 0o644))
	_, err = LoadConfig(invalid)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "maxSessions")
}

// TestValidate covers each rejected field.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty identity", func(c *Config) { c.Messaging.Identity = "" }, "messaging.identity"},
		{"zero handshake timeout", func(c *Config) { c.Messaging.HandshakeTimeout = 0 }, "messaging.handshakeTimeout"},
		{"negative request timeout", func(c *Config) { c.Messaging.RequestTimeout = -time.Second }, "messaging.requestTimeout"},
		{"port out of range", func(c *Config) { c.Launcher.BasePort = 70000 }, "launcher.basePort"},
		{"range past 65535", func(c *Config) { c.Launcher.BasePort = 65500; c.Launcher.PortRange = 100 }, "launcher.portRange"},
		{"no attempts", func(c *Config) { c.Launcher.MaxConnectionAttempts = 0 }, "launcher.maxConnectionAttempts"},
		{"no attempt window", func(c *Config) { c.Launcher.AttemptWindow = 0 }, "launcher.attemptWindow"},
		{"no sessions", func(c *Config) { c.MaxSessions = 0 }, "maxSessions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "'"+tt.field+"'")
		})
	}
}
