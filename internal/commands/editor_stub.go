package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/ctagard/godot-bridge/internal/messaging"
)

var (
	stubProjectDir string
	stubExecutable string
	stubAddress    string
)

func NewEditorStubCommand() (*cobra.Command, error) {
	stubCmd := &cobra.Command{
		Use:   "editor-stub",
		Short: "Serves a project the way the Godot editor does and logs the requests it receives",
		Long: `Serves a project the way the Godot editor does and logs the requests it receives.

The endpoint metadata file is written into the project so hosts find the stub
exactly like they find a real editor. The stub runs until interrupted.`,
		RunE: editorStub,
		Args: cobra.NoArgs,
	}

	stubCmd.Flags().StringVarP(&stubProjectDir, "project", "p", "", "Godot project directory (defaults to the current directory)")
	stubCmd.Flags().StringVar(&stubExecutable, "exe", "", "Editor executable path announced to hosts")
	stubCmd.Flags().StringVar(&stubAddress, "address", "127.0.0.1:0", "Address to listen on")

	return stubCmd, nil
}

func editorStub(cmd *cobra.Command, _ []string) error {
	cfg, log, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()

	dir, err := projectDirectory(stubProjectDir)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dispatcher := stubDispatcher(log)
	server, err := messaging.NewServer(messaging.ServerOptions{
		ProjectDirectory: dir,
		Identity:         "GodotEditor",
		ExecutablePath:   stubExecutable,
		Address:          stubAddress,
		PublishMetadata:  true,
		Dispatcher:       dispatcher,
		HandshakeTimeout: cfg.Messaging.HandshakeTimeout,
		RequestTimeout:   cfg.Messaging.RequestTimeout,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()

	log.Info("Editor stub listening", "address", server.Addr(), "project", dir, "handles", dispatcher.Kinds())
	return server.Serve(ctx)
}

func stubDispatcher(log logr.Logger) *messaging.Dispatcher {
	log = log.WithName("editor-stub")
	return messaging.NewEditorDispatcher(messaging.EditorHandlers{
		DebugPlay: func(ctx context.Context, req messaging.DebugPlayRequest) error {
			log.Info("Game would start under the debugger", "host", req.DebuggerHost, "port", req.DebuggerPort)
			return nil
		},
	}, log)
}
