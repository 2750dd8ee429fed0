// Package errors provides structured error types for the godot-bridge.
// Each error carries a machine-readable code plus a hint telling the
// caller (a user, or an MCP client) how to recover.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Messaging errors
	CodeConnectionError      ErrorCode = "CONNECTION_ERROR"
	CodeNotConnected         ErrorCode = "NOT_CONNECTED"
	CodeRequestTimeout       ErrorCode = "REQUEST_TIMEOUT"
	CodeConnectionClosed     ErrorCode = "CONNECTION_CLOSED"
	CodeUnhandledRequestKind ErrorCode = "UNHANDLED_REQUEST_KIND"
	CodeProtocolError        ErrorCode = "PROTOCOL_ERROR"

	// Launcher errors
	CodeListenerBindError ErrorCode = "LISTENER_BIND_ERROR"
	CodeSessionTimeout    ErrorCode = "SESSION_TIMEOUT"
	CodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimit      ErrorCode = "SESSION_LIMIT_REACHED"
	CodeAttachFailed      ErrorCode = "ATTACH_FAILED"
	CodeSpawnFailed       ErrorCode = "SPAWN_FAILED"

	// Lifecycle errors
	CodeNoLaunchTarget ErrorCode = "NO_LAUNCH_TARGET"
	CodeNotRegistered  ErrorCode = "NOT_REGISTERED"

	// Parameter and configuration errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
)

// BridgeError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type BridgeError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the port, the request kind)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrConnection           = &BridgeError{Code: CodeConnectionError, Message: "connection error"}
	ErrNotConnected         = &BridgeError{Code: CodeNotConnected, Message: "not connected"}
	ErrRequestTimeout       = &BridgeError{Code: CodeRequestTimeout, Message: "request timeout"}
	ErrConnectionClosed     = &BridgeError{Code: CodeConnectionClosed, Message: "connection closed"}
	ErrUnhandledRequestKind = &BridgeError{Code: CodeUnhandledRequestKind, Message: "unhandled request kind"}
	ErrListenerBind         = &BridgeError{Code: CodeListenerBindError, Message: "listener bind error"}
	ErrSessionTimeout       = &BridgeError{Code: CodeSessionTimeout, Message: "session timeout"}
	ErrSessionNotFound      = &BridgeError{Code: CodeSessionNotFound, Message: "session not found"}
)

// Error implements the error interface
func (e *BridgeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a BridgeError with the same code
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *BridgeError) WithDetails(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *BridgeError) WithCause(err error) *BridgeError {
	e.Cause = err
	return e
}

// CodeOf returns the code of the first BridgeError in err's chain, or "" if there is none
func CodeOf(err error) ErrorCode {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// --- Messaging Errors ---

// ConnectionError creates an error for a failed connect or handshake
func ConnectionError(projectDir string, err error) *BridgeError {
	return &BridgeError{
		Code:    CodeConnectionError,
		Message: fmt.Sprintf("failed to connect to the editor for project '%s': %v", projectDir, err),
		Hint:    "Make sure the Godot editor is running with this project open. The editor publishes its messaging port under .godot/mono/metadata.",
		Cause:   err,
		Details: map[string]interface{}{
			"projectDirectory": projectDir,
		},
	}
}

// NotConnected creates an error for a request attempted while disconnected
func NotConnected(kind string) *BridgeError {
	return &BridgeError{
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("cannot send %s request: not connected to the editor", kind),
		Hint:    "Requests are never queued. Wait for the connection to be established and retry.",
		Details: map[string]interface{}{
			"requestKind": kind,
		},
	}
}

// RequestTimeout creates an error for a request that received no response in time
func RequestTimeout(kind string, id uint64, timeout time.Duration) *BridgeError {
	return &BridgeError{
		Code:    CodeRequestTimeout,
		Message: fmt.Sprintf("%s request %d timed out after %s", kind, id, timeout),
		Hint:    "The editor did not answer. It may be busy or frozen.",
		Details: map[string]interface{}{
			"requestKind":   kind,
			"correlationId": id,
			"timeout":       timeout.String(),
		},
	}
}

// ConnectionClosed creates an error for requests cancelled by disposal or disconnect
func ConnectionClosed(reason string) *BridgeError {
	return &BridgeError{
		Code:    CodeConnectionClosed,
		Message: fmt.Sprintf("connection closed: %s", reason),
		Hint:    "The connection to the editor was closed while the request was in flight.",
	}
}

// UnhandledRequestKind creates an error for an inbound request nobody handles
func UnhandledRequestKind(kind string) *BridgeError {
	return &BridgeError{
		Code:    CodeUnhandledRequestKind,
		Message: fmt.Sprintf("no handler registered for request kind '%s'", kind),
		Details: map[string]interface{}{
			"requestKind": kind,
		},
	}
}

// ProtocolError creates an error for malformed frames
func ProtocolError(message string, err error) *BridgeError {
	return &BridgeError{
		Code:    CodeProtocolError,
		Message: message,
		Cause:   err,
	}
}

// --- Launcher Errors ---

// ListenerBindError creates an error when the debugger listener cannot bind its port
func ListenerBindError(address string, port int, err error) *BridgeError {
	return &BridgeError{
		Code:    CodeListenerBindError,
		Message: fmt.Sprintf("failed to listen on %s:%d: %v", address, port, err),
		Hint:    "The port is probably in use. Start the session again to pick another random port.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
			"port":    port,
		},
	}
}

// SessionTimeout creates an error when no runtime connected within the attempt budget
func SessionTimeout(port, attempts int, window time.Duration) *BridgeError {
	return &BridgeError{
		Code:    CodeSessionTimeout,
		Message: fmt.Sprintf("no runtime connected to port %d after %d attempts of %s", port, attempts, window),
		Hint:    "Start the game with the debugger agent pointing at this port, or dispose the session and start a new one.",
		Details: map[string]interface{}{
			"port":     port,
			"attempts": attempts,
			"window":   window.String(),
		},
	}
}

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *BridgeError {
	return &BridgeError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *BridgeError {
	return &BridgeError{
		Code:    CodeSessionLimit,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_stop to dispose an existing session before starting a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// AttachFailed creates an error when the debugger engine rejects the runtime
func AttachFailed(err error) *BridgeError {
	return &BridgeError{
		Code:    CodeAttachFailed,
		Message: fmt.Sprintf("failed to attach debugger session: %v", err),
		Hint:    "The runtime connected but the debugger handshake failed. Dispose the session and try again.",
		Cause:   err,
	}
}

// SpawnFailed creates an error when the editor executable cannot be started
func SpawnFailed(path string, err error) *BridgeError {
	return &BridgeError{
		Code:    CodeSpawnFailed,
		Message: fmt.Sprintf("failed to start '%s': %v", path, err),
		Hint:    "Check the configured Godot executable path in the settings file.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// --- Lifecycle Errors ---

// NoLaunchTarget creates an error when no SDK-style project has been opened
func NoLaunchTarget() *BridgeError {
	return &BridgeError{
		Code:    CodeNoLaunchTarget,
		Message: "no Godot project is selected as launch target",
		Hint:    "Open a project whose Sdk attribute is Godot.NET.Sdk first (host_open_project).",
	}
}

// NotRegistered creates an error when an operation needs a registered solution
func NotRegistered() *BridgeError {
	return &BridgeError{
		Code:    CodeNotRegistered,
		Message: "no Godot solution is open",
		Hint:    "Open a Godot project first (host_open_project).",
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *BridgeError {
	return &BridgeError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *BridgeError {
	return &BridgeError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// ConfigInvalid creates an error for an invalid configuration value
func ConfigInvalid(field, reason string) *BridgeError {
	return &BridgeError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration field '%s' is invalid: %s", field, reason),
		Hint:    "Fix the configuration file or the corresponding command line flag.",
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a BridgeError from a generic error, attempting to preserve any existing structure
func FromError(err error) *BridgeError {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be
	}
	return &BridgeError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
