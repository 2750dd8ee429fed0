// Package config provides configuration management for the godot-bridge.
//
// Configuration controls:
//   - Messaging: the identity announced in the handshake and the connect/request timeouts
//   - Launcher: the debugger listen port range and the bounded connection attempts
//   - Settings: where the editor executable path is persisted
//   - Safety limits: maximum number of concurrent debug sessions
//
// Configuration is loaded from a YAML (or JSON) file on top of sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ctagard/godot-bridge/internal/errors"
)

// Config holds the bridge configuration
type Config struct {
	Messaging MessagingConfig `yaml:"messaging"`
	Launcher  LauncherConfig  `yaml:"launcher"`

	// SettingsPath is the file holding persisted user settings (editor executable path)
	SettingsPath string `yaml:"settingsPath"`

	// LogLevel is the zap level name: debug, info, warn, error
	LogLevel string `yaml:"logLevel"`

	// MaxSessions limits concurrently tracked debug sessions
	MaxSessions int `yaml:"maxSessions"`
}

// MessagingConfig holds the editor messaging settings
type MessagingConfig struct {
	Identity           string        `yaml:"identity"`
	HandshakeTimeout   time.Duration `yaml:"handshakeTimeout"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
	ConnectRetryWindow time.Duration `yaml:"connectRetryWindow"`
}

// LauncherConfig holds the debugger session launcher settings
type LauncherConfig struct {
	BasePort              int           `yaml:"basePort"`
	PortRange             int           `yaml:"portRange"`
	MaxConnectionAttempts int           `yaml:"maxConnectionAttempts"`
	AttemptWindow         time.Duration `yaml:"attemptWindow"`
	EditorPath            string        `yaml:"editorPath"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Messaging: MessagingConfig{
			Identity:           "VisualStudio",
			HandshakeTimeout:   5 * time.Second,
			RequestTimeout:     10 * time.Second,
			ConnectRetryWindow: 2 * time.Minute,
		},
		Launcher: LauncherConfig{
			BasePort:              8800,
			PortRange:             100,
			MaxConnectionAttempts: 3,
			AttemptWindow:         10 * time.Second,
		},
		SettingsPath: defaultSettingsPath(),
		LogLevel:     "info",
		MaxSessions:  10,
	}
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "godot-bridge-settings.yaml"
	}
	return filepath.Join(dir, "godot-bridge", "settings.yaml")
}

// LoadConfig loads configuration from a YAML or JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	if c.Messaging.Identity == "" {
		return errors.ConfigInvalid("messaging.identity", "must not be empty")
	}
	if c.Messaging.HandshakeTimeout <= 0 {
		return errors.ConfigInvalid("messaging.handshakeTimeout", "must be positive")
	}
	if c.Messaging.RequestTimeout <= 0 {
		return errors.ConfigInvalid("messaging.requestTimeout", "must be positive")
	}
	if c.Launcher.BasePort <= 0 || c.Launcher.BasePort > 65535 {
		return errors.ConfigInvalid("launcher.basePort", "must be a valid TCP port")
	}
	if c.Launcher.PortRange <= 0 || c.Launcher.BasePort+c.Launcher.PortRange-1 > 65535 {
		return errors.ConfigInvalid("launcher.portRange", "must be positive and stay below 65536")
	}
	if c.Launcher.MaxConnectionAttempts <= 0 {
		return errors.ConfigInvalid("launcher.maxConnectionAttempts", "must be positive")
	}
	if c.Launcher.AttemptWindow <= 0 {
		return errors.ConfigInvalid("launcher.attemptWindow", "must be positive")
	}
	if c.MaxSessions <= 0 {
		return errors.ConfigInvalid("maxSessions", "must be positive")
	}
	return nil
}
