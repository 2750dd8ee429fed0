// Package debugger starts debugger sessions against a Godot game runtime.
//
// The package provides:
//   - Launcher: picks a listen port, binds it and waits for the runtime in bounded windows
//   - DebugSession: the handle for one listening or attached session
//   - Engine: the debugger behind a session; DAPEngine speaks the Debug Adapter Protocol
//   - SessionManager: bookkeeping for the sessions started through the tool surface
//
// The runtime connects to the debugger, not the other way round: the editor is
// told (or, in Launch mode, started with) the port the session listens on.
package debugger

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/pkg/types"
)

const (
	DefaultAddress               = "127.0.0.1"
	DefaultBasePort              = 8800
	DefaultPortRange             = 100
	DefaultMaxConnectionAttempts = 3
	DefaultAttemptWindow         = 10 * time.Second

	// DebuggerAgentEnv tells the Godot Mono runtime where its debugger listens
	DebuggerAgentEnv = "GODOT_MONO_DEBUGGER_AGENT"
)

// LauncherOptions configures a Launcher
type LauncherOptions struct {
	Address               string
	BasePort              int
	PortRange             int
	MaxConnectionAttempts int
	AttemptWindow         time.Duration

	// Engine defaults to a DAPEngine
	Engine Engine

	// EditorPath returns the Godot executable started in Launch mode
	EditorPath func() string

	Logger logr.Logger
	Stats  tally.Scope
}

// Launcher starts debugger sessions
type Launcher struct {
	opts  LauncherOptions
	log   logr.Logger
	stats tally.Scope

	// intN picks the port offset; replaced in tests
	intN func(n int) int
}

// NewLauncher creates a launcher, filling unset options with defaults
func NewLauncher(opts LauncherOptions) *Launcher {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.BasePort <= 0 {
		opts.BasePort = DefaultBasePort
	}
	if opts.PortRange <= 0 {
		opts.PortRange = DefaultPortRange
	}
	if opts.MaxConnectionAttempts <= 0 {
		opts.MaxConnectionAttempts = DefaultMaxConnectionAttempts
	}
	if opts.AttemptWindow <= 0 {
		opts.AttemptWindow = DefaultAttemptWindow
	}
	log := logger.OrDiscard(opts.Logger)
	if opts.Engine == nil {
		opts.Engine = &DAPEngine{Logger: log}
	}
	stats := opts.Stats
	if stats == nil {
		stats = tally.NoopScope
	}

	return &Launcher{
		opts:  opts,
		log:   log.WithName("launcher"),
		stats: stats.SubScope("debugger"),
		intN:  rand.IntN,
	}
}

// PickPort returns a port in [BasePort, BasePort+PortRange). Nothing is reserved,
// so two sessions may draw the same port; the second then fails to bind.
func (l *Launcher) PickPort() int {
	return l.opts.BasePort + l.intN(l.opts.PortRange)
}

// StartSession binds a listener on a random port and returns the session
// while the wait for the runtime continues in the background.
// A bind failure is returned as ListenerBindError; no other port is tried.
func (l *Launcher) StartSession(ctx context.Context, mode types.ExecutionMode, project types.ProjectIdentity, workingDirectory string) (*DebugSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := StartParams{
		Address:               l.opts.Address,
		Port:                  l.PickPort(),
		MaxConnectionAttempts: l.opts.MaxConnectionAttempts,
		AttemptWindow:         l.opts.AttemptWindow,
	}

	listener, err := l.opts.Engine.Listen(params)
	if err != nil {
		l.stats.Counter("bind_failures").Inc(1)
		return nil, errors.ListenerBindError(params.Address, params.Port, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	s := &DebugSession{
		ID:                    id,
		ExecutionMode:         mode,
		ListenPort:            params.Port,
		MaxConnectionAttempts: params.MaxConnectionAttempts,
		WorkingDirectory:      workingDirectory,
		Project:               project,
		CreatedAt:             time.Now(),
		engine:                l.opts.Engine,
		listener:              listener,
		attemptWindow:         params.AttemptWindow,
		log:                   l.log.WithValues("sessionId", id, "mode", string(mode)),
		stats:                 l.stats,
		status:                types.SessionStatusListening,
		ctx:                   sessionCtx,
		cancel:                cancel,
		done:                  make(chan struct{}),
	}

	if mode == types.ExecutionModeLaunch {
		cmd, err := l.startEditor(params, project, workingDirectory)
		if err != nil {
			cancel()
			_ = listener.Close()
			return nil, err
		}
		s.process = cmd
	}

	go s.run()

	l.stats.Counter("sessions_started").Inc(1)
	s.log.Info("Debug session listening", "address", params.Address, "port", params.Port,
		"maxConnectionAttempts", params.MaxConnectionAttempts, "attemptWindow", params.AttemptWindow.String())
	return s, nil
}

// startEditor runs the Godot executable on the project with the debugger agent
// pointed at the session's port
func (l *Launcher) startEditor(params StartParams, project types.ProjectIdentity, workingDirectory string) (*exec.Cmd, error) {
	var path string
	if l.opts.EditorPath != nil {
		path = l.opts.EditorPath()
	}
	if path == "" {
		return nil, errors.SpawnFailed("", fmt.Errorf("no Godot executable configured"))
	}

	//nolint:gosec // G204: starting the configured editor is the point of Launch mode
	cmd := exec.Command(path, "--path", project.ProjectDirectory)
	cmd.Dir = workingDirectory
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=--debugger-agent=transport=dt_socket,address=%s:%d,server=n",
		DebuggerAgentEnv, params.Address, params.Port))
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.SpawnFailed(path, err)
	}
	l.log.Info("Started Godot", "path", path, "pid", cmd.Process.Pid, "project", project.ProjectDirectory)
	return cmd, nil
}
