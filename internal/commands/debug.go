package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/flags"
	"github.com/ctagard/godot-bridge/internal/host"
	"github.com/ctagard/godot-bridge/internal/lifecycle"
	"github.com/ctagard/godot-bridge/internal/settings"
	"github.com/ctagard/godot-bridge/pkg/types"
)

var (
	debugProjectFile   string
	debugEditorTimeout time.Duration
)

var debugMode = types.ExecutionModePlayInEditor

func NewDebugCommand() (*cobra.Command, error) {
	debugMode = types.ExecutionModePlayInEditor
	debugCmd := &cobra.Command{
		Use:   "debug",
		Short: "Starts a debugger session for a Godot C# project and waits for the game",
		Long: `Starts a debugger session for a Godot C# project and waits for the game.

In playInEditor mode the running editor is asked to start the game with the
debugger agent pointed at the session. In launch mode the configured editor
executable is started instead. In attach mode the session only listens.
The session information is printed as JSON once the session is listening.`,
		RunE: debug,
		Args: cobra.NoArgs,
	}

	mode := flags.NewModeFlag(&debugMode)
	debugCmd.Flags().StringVar(&debugProjectFile, "project", "", "Path to the Godot C# project file")
	debugCmd.Flags().Var(mode, "mode", fmt.Sprintf("Execution mode: %s", mode.Usage()))
	debugCmd.Flags().DurationVar(&debugEditorTimeout, "editor-timeout", 30*time.Second, "How long to wait for the editor connection in playInEditor mode")
	if err := debugCmd.MarkFlagRequired("project"); err != nil {
		return nil, err
	}

	return debugCmd, nil
}

func debug(cmd *cobra.Command, _ []string) (err error) {
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
	defer func() {
		err = multierr.Append(err, h.Close())
	}()

	classification, openErr := h.OpenProject(debugProjectFile)
	if openErr != nil {
		return openErr
	}
	if !classification.Supported {
		return fmt.Errorf("%s is not a Godot C# project", debugProjectFile)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coordinator := h.Coordinator()
	if debugMode == types.ExecutionModePlayInEditor {
		if err := waitForEditor(ctx, coordinator, debugEditorTimeout); err != nil {
			return err
		}
	}

	session, startErr := coordinator.StartDebugSession(ctx, debugMode)
	if startErr != nil {
		return startErr
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(session.Info()); err != nil {
		return err
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		h.DebuggerModeChanged(lifecycle.ReasonStopDebugging)
		return nil
	}

	info := session.Info()
	if info.Status != types.SessionStatusAttached {
		log.Info("Debug session ended", "sessionId", info.SessionID, "status", string(info.Status))
		return session.Err()
	}

	log.Info("Game attached; press Ctrl+C to stop debugging", "sessionId", info.SessionID, "pid", info.PID)
	<-ctx.Done()
	h.DebuggerModeChanged(lifecycle.ReasonStopDebugging)
	return nil
}

func waitForEditor(ctx context.Context, coordinator *lifecycle.Coordinator, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if coordinator.EditorStatus().State == types.ConnectionStateConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("the Godot editor did not connect within %s; is it running with the project open?", timeout)
		case <-ticker.C:
		}
	}
}
