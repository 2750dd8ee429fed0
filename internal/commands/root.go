// Package commands implements the godot-bridge command line.
package commands

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/ctagard/godot-bridge/internal/config"
	"github.com/ctagard/godot-bridge/internal/logger"
)

var (
	configPath string
	logLevel   string
)

func NewRootCmd() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "godot-bridge",
		Short: "Connects an IDE host to the Godot editor and runs debugger sessions for Godot C# games",
		Long: `godot-bridge talks to a running Godot editor over its IDE messaging channel and
starts debugger sessions for Godot C# projects.

	serve runs the bridge as an MCP server on stdio so agents can drive it as an IDE would.
	request sends a single request to the editor of a project.
	debug starts one debugger session and waits for the game.
	editor-stub serves a project the way the editor does, for trying things out without Godot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides the configuration file)")

	constructors := []struct {
		name string
		fn   func() (*cobra.Command, error)
	}{
		{"serve", NewServeCommand},
		{"request", NewRequestCommand},
		{"stop-play", NewStopPlayCommand},
		{"debug", NewDebugCommand},
		{"editor-stub", NewEditorStubCommand},
		{"version", NewVersionCommand},
	}
	for _, c := range constructors {
		cmd, err := c.fn()
		if err != nil {
			return nil, fmt.Errorf("could not set up '%s' command: %w", c.name, err)
		}
		rootCmd.AddCommand(cmd)
	}

	return rootCmd, nil
}

// setup loads the configuration and builds the logger shared by every command
func setup() (*config.Config, logr.Logger, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, logr.Discard(), func() {}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, flush, err := logger.New("godot-bridge", cfg.LogLevel)
	if err != nil {
		return nil, logr.Discard(), func() {}, err
	}
	return cfg, log, flush, nil
}
