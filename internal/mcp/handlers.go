package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/godot-bridge/internal/debugger"
	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/lifecycle"
	"github.com/ctagard/godot-bridge/pkg/types"
)

// Host Handlers

func (s *Server) handleHostOpenProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectFile, err := request.RequireString("projectFile")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("projectFile",
			"Specify the path to the game's .csproj file.").Error()), nil
	}

	if solutionDir, err := request.RequireString("solutionDir"); err == nil && solutionDir != "" {
		if err := s.host.OpenSolution(solutionDir); err != nil {
			return mcp.NewToolResultError(errors.InvalidParameter("solutionDir", solutionDir, "an accessible directory").Error()), nil
		}
	}

	classification, err := s.host.OpenProject(projectFile)
	if err != nil {
		return mcp.NewToolResultError(errors.FromError(err).Error()), nil
	}

	result := map[string]interface{}{
		"projectFile": projectFile,
		"supported":   classification.Supported,
		"sdkStyle":    classification.SdkStyle,
		"solutionDir": s.host.SolutionDirectory(),
		"state":       s.host.Coordinator().State().String(),
	}
	if identity, ok := s.host.Coordinator().Project(); ok {
		result["projectDirectory"] = identity.ProjectDirectory
		result["registeredProject"] = identity.Name
	}
	return jsonResult(result)
}

func (s *Server) handleHostCloseSolution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.host.CloseSolution()
	return jsonResult(map[string]interface{}{
		"status": "closed",
		"state":  s.host.Coordinator().State().String(),
	})
}

func (s *Server) handleHostDebuggerMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reasonStr, err := request.RequireString("reason")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("reason",
			"Specify 'stopDebugging', 'detach' or 'endProgram'.").Error()), nil
	}

	reason := lifecycle.ModeChangeReason(reasonStr)
	switch reason {
	case lifecycle.ReasonStopDebugging, lifecycle.ReasonDetach, lifecycle.ReasonEndProgram:
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("reason", reasonStr,
			"'stopDebugging', 'detach' or 'endProgram'").Error()), nil
	}

	s.host.DebuggerModeChanged(reason)
	return jsonResult(map[string]interface{}{
		"reason":    string(reason),
		"delivered": true,
	})
}

// Debugging Handlers

func (s *Server) handleDebugStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := types.ExecutionModePlayInEditor
	if modeStr, err := request.RequireString("mode"); err == nil && modeStr != "" {
		parsed, err := types.ParseExecutionMode(modeStr)
		if err != nil {
			return mcp.NewToolResultError(errors.InvalidParameter("mode", modeStr,
				"'playInEditor', 'launch' or 'attach'").Error()), nil
		}
		mode = parsed
	}

	session, err := s.host.Coordinator().StartDebugSession(ctx, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.log.Info("Debug session started from tool", "sessionId", session.ID, "mode", string(mode))
	return jsonResult(sessionResult(session))
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.host.Sessions().List()

	result := make([]map[string]interface{}, len(sessions))
	for i, session := range sessions {
		result[i] = sessionResult(session)
	}

	return jsonResult(map[string]interface{}{
		"sessions": result,
	})
}

func (s *Server) handleDebugStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.host.Sessions().Terminate(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    string(types.SessionStatusTerminated),
	})
}

// Editor Handlers

func (s *Server) handleEditorStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	coordinator := s.host.Coordinator()

	result := map[string]interface{}{
		"editor":      coordinator.EditorStatus(),
		"state":       coordinator.State().String(),
		"solutionDir": s.host.SolutionDirectory(),
	}
	if identity, ok := coordinator.Project(); ok {
		result["project"] = identity
	}
	if target, ok := coordinator.LaunchTarget(); ok {
		result["launchTarget"] = target.Project
	}
	return jsonResult(result)
}

func (s *Server) handleEditorRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString("request")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("request",
			"Specify 'play', 'stopPlay' or 'reloadScripts'.").Error()), nil
	}

	client, err := s.host.Coordinator().Client()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeout := time.Duration(request.GetFloat("timeoutSeconds", 10) * float64(time.Second))
	if timeout <= 0 {
		return mcp.NewToolResultError(errors.InvalidParameter("timeoutSeconds", timeout.Seconds(), "a positive number").Error()), nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch kind {
	case "play":
		err = client.Play(ctx)
	case "stopPlay":
		err = client.StopPlay(ctx)
	case "reloadScripts":
		err = client.ReloadScripts(ctx)
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("request", kind,
			"'play', 'stopPlay' or 'reloadScripts'").Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(errors.FromError(err).Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"request": kind,
		"status":  "ok",
	})
}

// Helper functions

func sessionResult(session *debugger.DebugSession) map[string]interface{} {
	info := session.Info()
	result := map[string]interface{}{
		"sessionId":             info.SessionID,
		"mode":                  string(info.ExecutionMode),
		"status":                string(info.Status),
		"port":                  info.ListenPort,
		"maxConnectionAttempts": info.MaxConnectionAttempts,
		"workingDirectory":      info.WorkingDirectory,
		"project":               info.Project,
	}
	if info.PID > 0 {
		result["pid"] = info.PID
	}
	if info.Error != "" {
		result["error"] = info.Error
	}
	return result
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
