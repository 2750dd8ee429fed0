package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/logger"
)

// HandlerFunc answers one inbound request. It runs on the connection's read
// path, so it must return promptly; a slow handler delays every later frame.
type HandlerFunc func(ctx context.Context, body json.RawMessage) (Response, error)

// Dispatcher routes inbound requests to handlers by request kind
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register installs handler for kind, replacing any existing handler
func (d *Dispatcher) Register(kind string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

// Handle registers a handler that receives the decoded request payload
func Handle[T any](d *Dispatcher, kind string, fn func(ctx context.Context, req *T) (Response, error)) {
	d.Register(kind, func(ctx context.Context, body json.RawMessage) (Response, error) {
		var req T
		if err := DecodeBody(body, &req); err != nil {
			return nil, fmt.Errorf("failed to decode %s request: %w", kind, err)
		}
		return fn(ctx, &req)
	})
}

// Kinds returns the registered request kinds in sorted order
func (d *Dispatcher) Kinds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Dispatch runs the handler for request frame f and returns the response frame.
// A request kind without a handler fails with UnhandledRequestKind and produces no frame.
// A handler error is reported to the peer as an error response.
func (d *Dispatcher) Dispatch(ctx context.Context, f *Frame) (*Frame, error) {
	d.mu.RLock()
	handler, ok := d.handlers[f.Kind]
	d.mu.RUnlock()

	if !ok {
		return nil, errors.UnhandledRequestKind(f.Kind)
	}

	resp, err := handler(ctx, f.Body)
	if err != nil {
		return EncodeErrorResponse(f, err), nil
	}

	out, err := EncodeResponse(f, resp)
	if err != nil {
		return EncodeErrorResponse(f, err), nil
	}
	return out, nil
}

// FileOpener shows a file in the host. Line and column are 1-based, zero when unknown.
type FileOpener interface {
	OpenFile(ctx context.Context, file string, line, column int) error
}

// FileOpenerFunc adapts a function to FileOpener
type FileOpenerFunc func(ctx context.Context, file string, line, column int) error

func (f FileOpenerFunc) OpenFile(ctx context.Context, file string, line, column int) error {
	return f(ctx, file, line, column)
}

// NewHostDispatcher returns the dispatcher used by the host side of the
// connection. It answers the editor's OpenFile requests through opener.
func NewHostDispatcher(opener FileOpener, log logr.Logger) *Dispatcher {
	log = logger.OrDiscard(log)
	d := NewDispatcher()
	Handle(d, KindOpenFile, func(ctx context.Context, req *OpenFileRequest) (Response, error) {
		log.V(1).Info("Editor asked to open file", "file", req.File, "line", req.Line, "column", req.Column)
		if req.File == "" {
			return nil, fmt.Errorf("OpenFile request without a file")
		}
		if opener == nil {
			return OpenFileResponse{}, nil
		}
		if err := opener.OpenFile(ctx, req.File, req.Line, req.Column); err != nil {
			return nil, err
		}
		return OpenFileResponse{}, nil
	})
	return d
}

// EditorHandlers are the editor's reactions to host requests.
// A nil handler accepts the request without doing anything.
type EditorHandlers struct {
	Play          func(ctx context.Context) error
	StopPlay      func(ctx context.Context) error
	DebugPlay     func(ctx context.Context, req DebugPlayRequest) error
	ReloadScripts func(ctx context.Context) error
}

// NewEditorDispatcher returns the dispatcher used by the editor side of the connection
func NewEditorDispatcher(h EditorHandlers, log logr.Logger) *Dispatcher {
	log = logger.OrDiscard(log)
	run := func(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
		log.Info("Host request", "kind", kind)
		if fn == nil {
			return nil
		}
		return fn(ctx)
	}

	d := NewDispatcher()
	Handle(d, KindPlay, func(ctx context.Context, req *PlayRequest) (Response, error) {
		return PlayResponse{}, run(ctx, KindPlay, h.Play)
	})
	Handle(d, KindStopPlay, func(ctx context.Context, req *StopPlayRequest) (Response, error) {
		return StopPlayResponse{}, run(ctx, KindStopPlay, h.StopPlay)
	})
	Handle(d, KindReloadScripts, func(ctx context.Context, req *ReloadScriptsRequest) (Response, error) {
		return ReloadScriptsResponse{}, run(ctx, KindReloadScripts, h.ReloadScripts)
	})
	Handle(d, KindDebugPlay, func(ctx context.Context, req *DebugPlayRequest) (Response, error) {
		if req.DebuggerPort <= 0 {
			return nil, fmt.Errorf("DebugPlay request without a debugger port")
		}
		var fn func(ctx context.Context) error
		if h.DebugPlay != nil {
			fn = func(ctx context.Context) error { return h.DebugPlay(ctx, *req) }
		}
		return DebugPlayResponse{}, run(ctx, KindDebugPlay, fn)
	})
	return d
}
