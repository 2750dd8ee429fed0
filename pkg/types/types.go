// Package types defines shared data types used across the godot-bridge.
//
// This package provides type definitions for:
//   - ExecutionMode: the intent of a debugger session (play-in-editor, launch, attach)
//   - ConnectionState: the messaging client connection states
//   - SessionStatus: debug session states (listening, attached, failed, terminated)
//   - ProjectIdentity: the project a solution was registered for
//   - Info types: SessionInfo, EditorStatus
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

import "fmt"

// ExecutionMode represents the intent of a debugger session
type ExecutionMode string

const (
	ExecutionModePlayInEditor ExecutionMode = "playInEditor"
	ExecutionModeLaunch       ExecutionMode = "launch"
	ExecutionModeAttach       ExecutionMode = "attach"
)

// ParseExecutionMode converts a user supplied string into an ExecutionMode
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ExecutionModePlayInEditor, ExecutionModeLaunch, ExecutionModeAttach:
		return ExecutionMode(s), nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// ExecutionModes lists every supported execution mode
func ExecutionModes() []ExecutionMode {
	return []ExecutionMode{ExecutionModePlayInEditor, ExecutionModeLaunch, ExecutionModeAttach}
}

// ConnectionState represents the state of the messaging client connection
type ConnectionState int

const (
	ConnectionStateDisconnected ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusListening  SessionStatus = "listening"
	SessionStatusAttached   SessionStatus = "attached"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusTerminated SessionStatus = "terminated"
)

// ProjectIdentity describes the project a solution was registered for.
// It is created when the host opens a project and never modified afterwards.
type ProjectIdentity struct {
	RootPath         string `json:"rootPath"`
	ProjectDirectory string `json:"projectDirectory"`
	ProjectFile      string `json:"projectFile,omitempty"`
	Name             string `json:"name,omitempty"`
	IsSupportedKind  bool   `json:"isSupportedKind"`
}

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID             string        `json:"sessionId"`
	ExecutionMode         ExecutionMode `json:"executionMode"`
	Status                SessionStatus `json:"status"`
	ListenPort            int           `json:"listenPort"`
	MaxConnectionAttempts int           `json:"maxConnectionAttempts"`
	WorkingDirectory      string        `json:"workingDirectory,omitempty"`
	Project               string        `json:"project,omitempty"`
	PID                   int           `json:"pid,omitempty"`
	Error                 string        `json:"error,omitempty"`
}

// EditorStatus reports the messaging connection to the editor
type EditorStatus struct {
	State                ConnectionState `json:"-"`
	StateName            string          `json:"state"`
	ProjectDirectory     string          `json:"projectDirectory,omitempty"`
	EditorExecutablePath string          `json:"editorExecutablePath,omitempty"`
}
