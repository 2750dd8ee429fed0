package debugger

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/pkg/types"
)

// StartParams describes where a session listens for the runtime
type StartParams struct {
	Address               string
	Port                  int
	MaxConnectionAttempts int
	AttemptWindow         time.Duration
}

// AttachInfo is handed to the engine once the runtime has connected
type AttachInfo struct {
	SessionID        string
	ExecutionMode    types.ExecutionMode
	WorkingDirectory string
	Project          types.ProjectIdentity
}

// Attachment is a debugger attached to a running game
type Attachment interface {
	// Terminated is closed when the runtime goes away
	Terminated() <-chan struct{}

	// Detach ends the debug session
	Detach() error
}

// Engine is the debugger that sits behind a session. The launcher only
// decides where to listen and when to give up; the engine owns the protocol.
type Engine interface {
	Listen(params StartParams) (net.Listener, error)
	Attach(ctx context.Context, conn net.Conn, info AttachInfo) (Attachment, error)
}

// DAPEngine attaches to the runtime using the Debug Adapter Protocol
type DAPEngine struct {
	// RequestTimeout bounds every step of the attach handshake
	RequestTimeout time.Duration

	Logger logr.Logger
}

const defaultDAPRequestTimeout = 10 * time.Second

// Listen binds the TCP listener the runtime connects to
func (e *DAPEngine) Listen(params StartParams) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(params.Address, strconv.Itoa(params.Port)))
}

// Attach runs initialize, attach and configurationDone over conn
func (e *DAPEngine) Attach(ctx context.Context, conn net.Conn, info AttachInfo) (Attachment, error) {
	timeout := e.RequestTimeout
	if timeout <= 0 {
		timeout = defaultDAPRequestTimeout
	}
	log := logger.OrDiscard(e.Logger).WithValues("sessionId", info.SessionID)

	client := NewClient(NewTransport(conn), log)
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	fail := func(step string, err error) (Attachment, error) {
		return nil, multierr.Append(fmt.Errorf("%s: %w", step, err), client.Close())
	}

	if _, err := client.Initialize("godot-bridge", "Godot Bridge", timeout); err != nil {
		return fail("initialize", err)
	}

	respCh, err := client.AttachAsync(map[string]interface{}{
		"request":       "attach",
		"executionMode": string(info.ExecutionMode),
		"cwd":           info.WorkingDirectory,
		"project":       info.Project.ProjectDirectory,
	})
	if err != nil {
		return fail("attach", err)
	}

	if err := client.WaitInitialized(timeout); err != nil {
		return fail("initialized", err)
	}
	if err := client.ConfigurationDone(timeout); err != nil {
		return fail("configurationDone", err)
	}
	if _, err := client.WaitForAttachResponse(respCh, timeout); err != nil {
		return fail("attach", err)
	}

	caps := client.Capabilities()
	log.Info("Debugger attached", "runtime", client.transport.RemoteAddr(),
		"supportsTerminate", caps.SupportsTerminateRequest,
		"supportsRestart", caps.SupportsRestartRequest)
	return &dapAttachment{client: client, timeout: timeout}, nil
}

type dapAttachment struct {
	client  *Client
	timeout time.Duration
}

func (a *dapAttachment) Terminated() <-chan struct{} {
	return a.client.Terminated()
}

func (a *dapAttachment) Detach() error {
	var err error
	select {
	case <-a.client.Terminated():
	default:
		err = a.client.Disconnect(false, a.timeout)
	}
	return multierr.Append(err, a.client.Close())
}
