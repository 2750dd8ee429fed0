// Package host is a minimal in-process IDE host. It owns the solution, the
// debugger event broker and the project evaluator, and drives a lifecycle
// coordinator the way an IDE would drive the Godot integration.
package host

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/config"
	"github.com/ctagard/godot-bridge/internal/debugger"
	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/lifecycle"
	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/internal/messaging"
	"github.com/ctagard/godot-bridge/internal/project"
)

// Options configures a Host
type Options struct {
	Config   *config.Config
	Settings lifecycle.SettingsStore

	// FileOpener handles the editor's OpenFile requests
	FileOpener messaging.FileOpener

	// Engine overrides the debugger engine; defaults to the DAP engine
	Engine debugger.Engine

	// NewClient overrides the messaging client factory
	NewClient lifecycle.ClientFactory

	Logger logr.Logger
	Stats  tally.Scope
}

// Host wires the collaborators of a lifecycle.Coordinator
type Host struct {
	log         logr.Logger
	solution    *Solution
	events      *Events
	sessions    *debugger.SessionManager
	coordinator *lifecycle.Coordinator
}

// New creates a host with no solution open
func New(opts Options) *Host {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := logger.OrDiscard(opts.Logger)
	stats := opts.Stats
	if stats == nil {
		stats = tally.NoopScope
	}

	solution := NewSolution("")
	events := NewEvents()

	newClient := opts.NewClient
	if newClient == nil {
		dispatcher := messaging.NewHostDispatcher(opts.FileOpener, log)
		newClient = lifecycle.NewClientFactory(cfg.Messaging, dispatcher, log, stats)
	}

	launcher := debugger.NewLauncher(debugger.LauncherOptions{
		BasePort:              cfg.Launcher.BasePort,
		PortRange:             cfg.Launcher.PortRange,
		MaxConnectionAttempts: cfg.Launcher.MaxConnectionAttempts,
		AttemptWindow:         cfg.Launcher.AttemptWindow,
		Engine:                opts.Engine,
		EditorPath: func() string {
			if opts.Settings != nil {
				if path := opts.Settings.GodotExecutablePath(); path != "" {
					return path
				}
			}
			return cfg.Launcher.EditorPath
		},
		Logger: log,
		Stats:  stats,
	})
	sessions := debugger.NewSessionManager(launcher, cfg.MaxSessions, log)

	coordinator := lifecycle.NewCoordinator(lifecycle.Options{
		Solution:           solution,
		Evaluator:          &Evaluator{Solution: solution},
		Events:             events,
		Settings:           opts.Settings,
		NewClient:          newClient,
		Sessions:           sessions,
		ConnectRetryWindow: cfg.Messaging.ConnectRetryWindow,
		Logger:             log,
	})

	return &Host{
		log:         log.WithName("host"),
		solution:    solution,
		events:      events,
		sessions:    sessions,
		coordinator: coordinator,
	}
}

// OpenProject opens projectFile in the current solution. Without an open
// solution the project's directory becomes the solution directory.
func (h *Host) OpenProject(projectFile string) (project.Classification, error) {
	if projectFile == "" {
		return project.Classification{}, errors.MissingParameter("projectFile", "Pass the path of the game's .csproj file.")
	}
	info, err := os.Stat(projectFile)
	if err != nil {
		return project.Classification{}, fmt.Errorf("cannot open project: %w", err)
	}
	if info.IsDir() {
		return project.Classification{}, errors.InvalidParameter("projectFile", projectFile, "a project file, not a directory")
	}

	hierarchy := NewFileHierarchy(projectFile)
	if h.solution.Directory() == "" {
		h.solution.SetDirectory(filepath.Dir(hierarchy.ProjectFile()))
	}

	classification := project.Classify(hierarchy)
	h.log.V(1).Info("Project opened", "projectFile", hierarchy.ProjectFile(),
		"supported", classification.Supported, "sdkStyle", classification.SdkStyle)
	h.coordinator.OnProjectOpened(hierarchy)
	return classification, nil
}

// OpenSolution sets the solution directory. Any open solution is closed first.
func (h *Host) OpenSolution(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	h.CloseSolution()
	h.solution.SetDirectory(abs)
	return nil
}

// CloseSolution closes the solution and everything registered for it
func (h *Host) CloseSolution() {
	h.coordinator.OnSolutionClosing()
	h.solution.SetDirectory("")
}

// DebuggerModeChanged reports that the host's debugger left its run mode
func (h *Host) DebuggerModeChanged(reason lifecycle.ModeChangeReason) {
	h.events.Notify(reason)
}

// SolutionDirectory returns the open solution's directory, or ""
func (h *Host) SolutionDirectory() string {
	return h.solution.Directory()
}

// Coordinator returns the lifecycle coordinator
func (h *Host) Coordinator() *lifecycle.Coordinator {
	return h.coordinator
}

// Sessions returns the debug session manager
func (h *Host) Sessions() *debugger.SessionManager {
	return h.sessions
}

// Close closes the solution and disposes every debug session
func (h *Host) Close() error {
	var errs error
	h.CloseSolution()
	errs = multierr.Append(errs, h.sessions.Close())
	return errs
}
