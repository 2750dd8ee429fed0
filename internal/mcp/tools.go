package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the host, debugging and editor tools
func (s *Server) registerTools() {
	// Host (3 tools)
	s.registerHostOpenProject()
	s.registerHostCloseSolution()
	s.registerHostDebuggerMode()

	// Debugging (3 tools)
	s.registerDebugStart()
	s.registerDebugListSessions()
	s.registerDebugStop()

	// Editor (2 tools)
	s.registerEditorStatus()
	s.registerEditorRequest()
}

// Host Tools

func (s *Server) registerHostOpenProject() {
	tool := mcp.NewTool("host_open_project",
		mcp.WithDescription("Open a C# project file in the host. The first Godot project of a solution registers the integration and starts connecting to the Godot editor in the background. Godot.NET.Sdk projects become the launch target for debug_start."),
		mcp.WithString("projectFile",
			mcp.Required(),
			mcp.Description("Path to the .csproj file"),
		),
		mcp.WithString("solutionDir",
			mcp.Description("Solution directory. Opens a new solution when given; defaults to the project file's directory when no solution is open."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleHostOpenProject)
}

func (s *Server) registerHostCloseSolution() {
	tool := mcp.NewTool("host_close_solution",
		mcp.WithDescription("Close the solution: disconnects from the editor and releases the debugger event subscription. Running debug sessions are kept; stop them with debug_stop."),
	)
	s.mcpServer.AddTool(tool, s.handleHostCloseSolution)
}

func (s *Server) registerHostDebuggerMode() {
	tool := mcp.NewTool("host_debugger_mode",
		mcp.WithDescription("Report that the host's debugger left its run mode. 'stopDebugging' stops the editor's play session when the game was started with PlayInEditor."),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why the debugger stopped: 'stopDebugging', 'detach' or 'endProgram'"),
			mcp.Enum("stopDebugging", "detach", "endProgram"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleHostDebuggerMode)
}

// Debugging Tools

func (s *Server) registerDebugStart() {
	tool := mcp.NewTool("debug_start",
		mcp.WithDescription("Start a debugger session for the launch target. The debugger listens on a random port and waits for the game. PlayInEditor asks the connected editor to run the game, Launch starts the Godot executable, Attach only waits. Returns the sessionId and port."),
		mcp.WithString("mode",
			mcp.Description("Execution mode: 'playInEditor' (default), 'launch' or 'attach'"),
			mcp.Enum("playInEditor", "launch", "attach"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStart)
}

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all debugger sessions with their status and port"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

func (s *Server) registerDebugStop() {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Dispose a debugger session: detaches from the game, stops waiting for it and ends a launched Godot process"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop)
}

// Editor Tools

func (s *Server) registerEditorStatus() {
	tool := mcp.NewTool("editor_status",
		mcp.WithDescription("Get the Godot editor connection state, the registered project and the launch target"),
	)
	s.mcpServer.AddTool(tool, s.handleEditorStatus)
}

func (s *Server) registerEditorRequest() {
	tool := mcp.NewTool("editor_request",
		mcp.WithDescription("Send a request to the connected Godot editor. Fails immediately when the editor is not connected."),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("Request to send: 'play', 'stopPlay' or 'reloadScripts'"),
			mcp.Enum("play", "stopPlay", "reloadScripts"),
		),
		mcp.WithNumber("timeoutSeconds",
			mcp.Description("How long to wait for the editor's response (default: 10)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleEditorRequest)
}
