package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/uber-go/tally/v4"

	"github.com/ctagard/godot-bridge/internal/config"
	"github.com/ctagard/godot-bridge/internal/messaging"
)

const (
	requestPlay          = "play"
	requestStopPlay      = "stopPlay"
	requestReloadScripts = "reloadScripts"
)

var (
	requestProjectDir string
	requestTimeout    time.Duration
)

func NewRequestCommand() (*cobra.Command, error) {
	requestCmd := &cobra.Command{
		Use:       "request <play|stopPlay|reloadScripts>",
		Short:     "Sends a single request to the Godot editor serving a project",
		RunE:      request,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{requestPlay, requestStopPlay, requestReloadScripts},
	}
	addRequestFlags(requestCmd)
	return requestCmd, nil
}

func NewStopPlayCommand() (*cobra.Command, error) {
	stopCmd := &cobra.Command{
		Use:   "stop-play",
		Short: "Asks the Godot editor to stop the running game",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return request(cmd, []string{requestStopPlay})
		},
		Args: cobra.NoArgs,
	}
	addRequestFlags(stopCmd)
	return stopCmd, nil
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&requestProjectDir, "project", "p", "", "Godot project directory (defaults to the current directory)")
	cmd.Flags().DurationVar(&requestTimeout, "timeout", 10*time.Second, "How long to wait for the editor")
}

func request(cmd *cobra.Command, args []string) error {
	cfg, log, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()

	dir, err := projectDirectory(requestProjectDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	client, err := connectEditor(ctx, cfg.Messaging, dir, log)
	if err != nil {
		return err
	}
	defer func() { _ = client.Dispose() }()

	switch args[0] {
	case requestPlay:
		err = client.Play(ctx)
	case requestStopPlay:
		err = client.StopPlay(ctx)
	case requestReloadScripts:
		err = client.ReloadScripts(ctx)
	default:
		return fmt.Errorf("unknown request %q", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	return nil
}

// connectEditor performs one connection attempt to the editor serving dir
func connectEditor(ctx context.Context, cfg config.MessagingConfig, dir string, log logr.Logger) (*messaging.Client, error) {
	client := messaging.NewClient(messaging.ClientOptions{
		Identity:         cfg.Identity,
		ProjectDirectory: dir,
		Dispatcher:       messaging.NewHostDispatcher(nil, log),
		HandshakeTimeout: cfg.HandshakeTimeout,
		RequestTimeout:   cfg.RequestTimeout,
		Logger:           log,
		Stats:            tally.NoopScope,
	})
	if err := client.Connect(ctx); err != nil {
		_ = client.Dispose()
		return nil, fmt.Errorf("could not reach the Godot editor for %s: %w", dir, err)
	}
	return client, nil
}

func projectDirectory(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("could not determine the current directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid project directory %s: %w", dir, err)
	}
	return abs, nil
}
