package lifecycle

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally/v4"

	"github.com/ctagard/godot-bridge/internal/config"
	"github.com/ctagard/godot-bridge/internal/debugger"
	"github.com/ctagard/godot-bridge/internal/messaging"
	"github.com/ctagard/godot-bridge/pkg/types"
)

// ModeChangeReason says why the host's debugger left its run mode
type ModeChangeReason string

const (
	ReasonStopDebugging ModeChangeReason = "stopDebugging"
	ReasonDetach        ModeChangeReason = "detach"
	ReasonEndProgram    ModeChangeReason = "endProgram"
)

// Solution is the host's currently open solution
type Solution interface {
	Directory() string
}

// Registration is returned by Subscribe; Release ends the subscription
type Registration interface {
	Release()
}

// DebuggerEvents delivers the host's debugger mode changes
type DebuggerEvents interface {
	Subscribe(handler func(reason ModeChangeReason)) Registration
}

// SettingsStore holds the Godot executable path
type SettingsStore interface {
	GodotExecutablePath() string
	SetGodotExecutablePath(path string) error
}

// SessionStarter starts debugger sessions; *debugger.Launcher and *debugger.SessionManager implement it
type SessionStarter interface {
	StartSession(ctx context.Context, mode types.ExecutionMode, project types.ProjectIdentity, workingDirectory string) (*debugger.DebugSession, error)
}

// MessagingClient is the part of *messaging.Client the coordinator drives
type MessagingClient interface {
	Connect(ctx context.Context) error
	Dispose() error
	OnConnected(fn func())
	IsConnected() bool
	State() types.ConnectionState
	ProjectDirectory() string
	EditorExecutablePath() string

	StopPlay(ctx context.Context) error
	Play(ctx context.Context) error
	DebugPlay(ctx context.Context, req messaging.DebugPlayRequest) error
	ReloadScripts(ctx context.Context) error
}

// ClientFactory creates the messaging client for a project directory
type ClientFactory func(projectDir string) MessagingClient

// NewClientFactory returns a factory producing real messaging clients
func NewClientFactory(cfg config.MessagingConfig, dispatcher *messaging.Dispatcher, log logr.Logger, stats tally.Scope) ClientFactory {
	return func(projectDir string) MessagingClient {
		return messaging.NewClient(messaging.ClientOptions{
			Identity:         cfg.Identity,
			ProjectDirectory: projectDir,
			Dispatcher:       dispatcher,
			HandshakeTimeout: cfg.HandshakeTimeout,
			RequestTimeout:   cfg.RequestTimeout,
			Logger:           log,
			Stats:            stats,
		})
	}
}

// LaunchTarget is the SDK-style project debug sessions are started for
type LaunchTarget struct {
	Project types.ProjectIdentity
}
