package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/host"
	"github.com/ctagard/godot-bridge/internal/mcp"
	"github.com/ctagard/godot-bridge/internal/settings"
	"github.com/ctagard/godot-bridge/internal/version"
)

var (
	serveSolutionDir  string
	serveProjectFile  string
	serveCheckUpdates bool
)

func NewServeCommand() (*cobra.Command, error) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the bridge as an MCP server on stdio",
		Long: `Runs the bridge as a Model Context Protocol server on stdio.

Add it to an MCP client configuration:

	{
		"mcpServers": {
			"godot-bridge": {
				"command": "godot-bridge",
				"args": ["serve", "--project", "/path/to/Game.csproj"]
			}
		}
	}`,
		RunE: serve,
		Args: cobra.NoArgs,
	}

	serveCmd.Flags().StringVar(&serveSolutionDir, "solution", "", "Solution directory to open at start")
	serveCmd.Flags().StringVar(&serveProjectFile, "project", "", "Project file to open at start")
	serveCmd.Flags().BoolVar(&serveCheckUpdates, "check-updates", false, "Log a message when a newer release is published")

	return serveCmd, nil
}

func serve(cmd *cobra.Command, _ []string) (err error) {
	cfg, log, flush, setupErr := setup()
	if setupErr != nil {
		return setupErr
	}
	defer flush()

	store, storeErr := settings.Open(cfg.SettingsPath)
	if storeErr != nil {
		return storeErr
	}

	h := host.New(host.Options{
		Config:   cfg,
		Settings: store,
		Logger:   log,
	})
	server := mcp.NewServer(h, log)
	defer func() {
		err = multierr.Append(err, server.Close())
	}()

	if serveSolutionDir != "" {
		if err := h.OpenSolution(serveSolutionDir); err != nil {
			return err
		}
	}
	if serveProjectFile != "" {
		if _, err := h.OpenProject(serveProjectFile); err != nil {
			return err
		}
	}

	if serveCheckUpdates {
		go func() {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			info, checkErr := (&version.Checker{}).Check(ctx)
			if checkErr != nil {
				log.V(1).Info("Release check failed", "error", checkErr.Error())
				return
			}
			if msg := info.UpdateMessage(); msg != "" {
				log.Info(msg)
			}
		}()
	}

	log.Info("godot-bridge MCP server starting", "version", version.Version)
	return server.ServeStdio()
}
