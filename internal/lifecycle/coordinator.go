// Package lifecycle ties the editor connection and debugger sessions to the
// host's solution: it registers once per solution, connects to the Godot
// editor, stops play sessions when debugging ends and tears everything down
// when the solution closes.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/ctagard/godot-bridge/internal/debugger"
	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/internal/messaging"
	"github.com/ctagard/godot-bridge/internal/project"
	"github.com/ctagard/godot-bridge/pkg/types"
)

// State of the coordinator
type State int

const (
	StateIdle State = iota
	StateRegistering
	StateRegistered
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	defaultConnectRetryWindow = 2 * time.Minute
	stopPlayTimeout           = 10 * time.Second
)

// Options configures a Coordinator
type Options struct {
	Solution  Solution
	Evaluator project.BuildEvaluator
	Events    DebuggerEvents
	Settings  SettingsStore
	NewClient ClientFactory
	Sessions  SessionStarter

	// ConnectRetryWindow bounds the background retries of the first connect
	ConnectRetryWindow time.Duration

	Logger logr.Logger
}

// Coordinator owns the per-solution registration
type Coordinator struct {
	opts Options
	log  logr.Logger

	// mu is the registration guard; every host notification runs under it
	mu           sync.Mutex
	state        State
	registered   bool
	project      types.ProjectIdentity
	client       MessagingClient
	registration Registration
	target       *LaunchTarget

	// Execution mode of the selected debug target
	targetMode    types.ExecutionMode
	hasTargetMode bool

	connectCancel context.CancelFunc
	wg            sync.WaitGroup

	// stopPlays tracks StopPlay requests still in flight; the client outlives them
	stopPlays sync.WaitGroup

	// fileExists is replaced in tests
	fileExists func(path string) bool
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(opts Options) *Coordinator {
	if opts.ConnectRetryWindow <= 0 {
		opts.ConnectRetryWindow = defaultConnectRetryWindow
	}
	return &Coordinator{
		opts:  opts,
		log:   logger.OrDiscard(opts.Logger).WithName("lifecycle"),
		state: StateIdle,
		fileExists: func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		},
	}
}

// OnProjectOpened handles the host opening a project. The first Godot project
// of a solution registers; later ones only update the launch target.
func (c *Coordinator) OnProjectOpened(h project.Hierarchy) {
	classification := project.Classify(h)
	if !classification.Supported {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		if classification.SdkStyle {
			identity := project.Identify(h, classification, c.project.RootPath, c.project.ProjectDirectory)
			c.target = &LaunchTarget{Project: identity}
		}
		return
	}

	c.state = StateRegistering

	solutionDir := c.opts.Solution.Directory()
	projectDir := project.ResolveDirectory(c.opts.Evaluator, h.ProjectFile(), solutionDir)
	identity := project.Identify(h, classification, solutionDir, projectDir)
	c.log.Info("Registering Godot solution", "project", identity.Name, "projectDirectory", projectDir)

	c.registration = c.opts.Events.Subscribe(c.OnDebuggerModeChanged)

	if c.client != nil {
		_ = c.client.Dispose()
	}
	client := c.opts.NewClient(projectDir)
	client.OnConnected(func() {
		c.onClientConnected(client)
	})
	c.client = client

	ctx, cancel := context.WithCancel(context.Background())
	c.connectCancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.connect(ctx, client)
	}()

	if classification.SdkStyle {
		c.target = &LaunchTarget{Project: identity}
	}
	c.project = identity
	c.registered = true
	c.state = StateRegistered
}

// connect makes the first connection attempt, retrying with back-off until
// the retry window closes or the solution is closed
func (c *Coordinator) connect(ctx context.Context, client MessagingClient) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.opts.ConnectRetryWindow

	operation := func() error {
		err := client.Connect(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.log.V(1).Info("Editor not reachable yet, retrying", "error", err.Error(), "retryIn", next.String())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Info("Could not connect to the Godot editor", "error", err.Error())
	}
}

// onClientConnected seeds the executable path setting from the editor, once
func (c *Coordinator) onClientConnected(client MessagingClient) {
	if c.opts.Settings == nil || c.opts.Settings.GodotExecutablePath() != "" {
		return
	}
	path := client.EditorExecutablePath()
	if path == "" || !c.fileExists(path) {
		return
	}
	if err := c.opts.Settings.SetGodotExecutablePath(path); err != nil {
		c.log.Info("Failed to store Godot executable path", "path", path, "error", err.Error())
		return
	}
	c.log.Info("Stored Godot executable path from editor", "path", path)
}

// OnSolutionClosing releases the subscription, disposes the client and
// makes the coordinator ready for the next solution
func (c *Coordinator) OnSolutionClosing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registered {
		c.state = StateIdle
		c.target = nil
		return
	}
	c.state = StateClosing
	c.log.Info("Closing Godot solution", "projectDirectory", c.project.ProjectDirectory)

	if c.connectCancel != nil {
		c.connectCancel()
		c.connectCancel = nil
	}
	if c.registration != nil {
		c.registration.Release()
		c.registration = nil
	}
	c.stopPlays.Wait()
	if c.client != nil {
		if err := c.client.Dispose(); err != nil {
			c.log.Info("Failed to dispose messaging client", "error", err.Error())
		}
		c.client = nil
	}
	c.wg.Wait()

	c.registered = false
	c.project = types.ProjectIdentity{}
	c.target = nil
	c.state = StateIdle
}

// OnDebuggerModeChanged stops the editor's play session when the host stops
// debugging a game that was started in the editor
func (c *Coordinator) OnDebuggerModeChanged(reason ModeChangeReason) {
	if reason != ReasonStopDebugging {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client := c.client
	if client == nil || !client.IsConnected() {
		return
	}
	if !c.hasTargetMode || c.targetMode != types.ExecutionModePlayInEditor {
		return
	}

	c.stopPlays.Add(1)
	go func() {
		defer c.stopPlays.Done()
		ctx, cancel := context.WithTimeout(context.Background(), stopPlayTimeout)
		defer cancel()
		if err := client.StopPlay(ctx); err != nil {
			c.log.Info("Stop play request failed", "error", err.Error())
		}
	}()
}

// SelectDebugTarget records the execution mode of the host's selected debug target
func (c *Coordinator) SelectDebugTarget(mode types.ExecutionMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetMode = mode
	c.hasTargetMode = true
}

// StartDebugSession starts a debugger session in mode for the launch target.
// In PlayInEditor mode a connected editor is asked to run the game against the session's port.
func (c *Coordinator) StartDebugSession(ctx context.Context, mode types.ExecutionMode) (*debugger.DebugSession, error) {
	c.mu.Lock()
	target := c.target
	client := c.client
	if target == nil {
		c.mu.Unlock()
		return nil, errors.NoLaunchTarget()
	}
	c.targetMode = mode
	c.hasTargetMode = true
	c.mu.Unlock()

	session, err := c.opts.Sessions.StartSession(ctx, mode, target.Project, target.Project.RootPath)
	if err != nil {
		return nil, err
	}

	if mode == types.ExecutionModePlayInEditor && client != nil && client.IsConnected() {
		err := client.DebugPlay(ctx, messaging.DebugPlayRequest{
			DebuggerHost: debugger.DefaultAddress,
			DebuggerPort: session.ListenPort,
		})
		if err != nil {
			c.discard(session)
			return nil, fmt.Errorf("editor refused to start the game: %w", err)
		}
	}

	c.log.Info("Debug session started", "sessionId", session.ID, "mode", string(mode), "port", session.ListenPort)
	return session, nil
}

// discard disposes a session the editor would not run, untracking it when
// the starter keeps track of sessions
func (c *Coordinator) discard(session *debugger.DebugSession) {
	if t, ok := c.opts.Sessions.(interface{ Terminate(id string) error }); ok {
		if err := t.Terminate(session.ID); err == nil {
			return
		}
	}
	if err := session.Dispose(); err != nil {
		c.log.Info("Failed to dispose debug session", "sessionId", session.ID, "error", err.Error())
	}
}

// State returns the coordinator state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Project returns the registered project, if any
func (c *Coordinator) Project() (types.ProjectIdentity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project, c.registered
}

// LaunchTarget returns the current launch target, if any
func (c *Coordinator) LaunchTarget() (LaunchTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil {
		return LaunchTarget{}, false
	}
	return *c.target, true
}

// Client returns the messaging client of the registered solution
func (c *Coordinator) Client() (MessagingClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, errors.NotRegistered()
	}
	return c.client, nil
}

// EditorStatus reports the editor connection
func (c *Coordinator) EditorStatus() types.EditorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := types.EditorStatus{
		State:     types.ConnectionStateDisconnected,
		StateName: types.ConnectionStateDisconnected.String(),
	}
	if c.client != nil {
		status.State = c.client.State()
		status.StateName = status.State.String()
		status.ProjectDirectory = c.client.ProjectDirectory()
		status.EditorExecutablePath = c.client.EditorExecutablePath()
	}
	return status
}

// Close tears down any registration
func (c *Coordinator) Close() {
	c.OnSolutionClosing()
}
