package messaging

// Request kinds understood by the bridge and the Godot editor
const (
	KindStopPlay      = "StopPlay"
	KindPlay          = "Play"
	KindDebugPlay     = "DebugPlay"
	KindReloadScripts = "ReloadScripts"
	KindOpenFile      = "OpenFile"
)

// StopPlayRequest asks the editor to stop the running play session
type StopPlayRequest struct{}

func (StopPlayRequest) Kind() string { return KindStopPlay }

// StopPlayResponse acknowledges StopPlayRequest
type StopPlayResponse struct{}

func (StopPlayResponse) Kind() string { return ResponseKindFor(KindStopPlay) }

// PlayRequest asks the editor to start the main scene without a debugger
type PlayRequest struct{}

func (PlayRequest) Kind() string { return KindPlay }

// PlayResponse acknowledges PlayRequest
type PlayResponse struct{}

func (PlayResponse) Kind() string { return ResponseKindFor(KindPlay) }

// DebugPlayRequest asks the editor to start the game with its debugger agent
// connecting back to DebuggerHost:DebuggerPort
type DebugPlayRequest struct {
	DebuggerHost       string `json:"debuggerHost"`
	DebuggerPort       int    `json:"debuggerPort"`
	BuildBeforePlaying bool   `json:"buildBeforePlaying"`
}

func (DebugPlayRequest) Kind() string { return KindDebugPlay }

// DebugPlayResponse acknowledges DebugPlayRequest
type DebugPlayResponse struct{}

func (DebugPlayResponse) Kind() string { return ResponseKindFor(KindDebugPlay) }

// ReloadScriptsRequest asks the editor to reload C# scripts
type ReloadScriptsRequest struct{}

func (ReloadScriptsRequest) Kind() string { return KindReloadScripts }

// ReloadScriptsResponse acknowledges ReloadScriptsRequest
type ReloadScriptsResponse struct{}

func (ReloadScriptsResponse) Kind() string { return ResponseKindFor(KindReloadScripts) }

// OpenFileRequest is sent by the editor when the user opens a script that
// should be shown in the IDE. Line and Column are 1-based; zero means unset.
type OpenFileRequest struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (OpenFileRequest) Kind() string { return KindOpenFile }

// OpenFileResponse acknowledges OpenFileRequest
type OpenFileResponse struct{}

func (OpenFileResponse) Kind() string { return ResponseKindFor(KindOpenFile) }
