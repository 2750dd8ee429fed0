package debugger

import (
	"context"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/pkg/types"
)

// SessionStarter starts debug sessions; *Launcher implements it
type SessionStarter interface {
	StartSession(ctx context.Context, mode types.ExecutionMode, project types.ProjectIdentity, workingDirectory string) (*DebugSession, error)
}

// SessionManager tracks the sessions started through it
type SessionManager struct {
	starter     SessionStarter
	maxSessions int
	log         logr.Logger

	mu       sync.RWMutex
	sessions map[string]*DebugSession
}

// NewSessionManager creates a new session manager
func NewSessionManager(starter SessionStarter, maxSessions int, log logr.Logger) *SessionManager {
	return &SessionManager{
		starter:     starter,
		maxSessions: maxSessions,
		log:         logger.OrDiscard(log),
		sessions:    make(map[string]*DebugSession),
	}
}

// StartSession starts a session and tracks it under its ID
func (sm *SessionManager) StartSession(ctx context.Context, mode types.ExecutionMode, project types.ProjectIdentity, workingDirectory string) (*DebugSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, errors.SessionLimitReached(sm.maxSessions)
	}

	session, err := sm.starter.StartSession(ctx, mode, project, workingDirectory)
	if err != nil {
		return nil, err
	}

	sm.sessions[session.ID] = session
	return session, nil
}

// Get retrieves a session by ID
func (sm *SessionManager) Get(id string) (*DebugSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return session, nil
}

// List returns all tracked sessions, oldest first
func (sm *SessionManager) List() []*DebugSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*DebugSession, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Terminate disposes a session and stops tracking it
func (sm *SessionManager) Terminate(id string) error {
	sm.mu.Lock()
	session, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !ok {
		return errors.SessionNotFound(id)
	}
	if err := session.Dispose(); err != nil {
		sm.log.Info("Warning: session cleanup reported errors", "sessionId", id, "error", err.Error())
	}
	return nil
}

// Close disposes every tracked session
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*DebugSession)
	sm.mu.Unlock()

	var errs error
	for _, session := range sessions {
		errs = multierr.Append(errs, session.Dispose())
	}
	return errs
}
