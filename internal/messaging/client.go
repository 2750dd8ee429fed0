package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally/v4"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/pkg/types"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
)

// ClientOptions configures a Client
type ClientOptions struct {
	// Identity is announced to the editor during the handshake
	Identity string

	// ProjectDirectory selects the editor instance to talk to
	ProjectDirectory string

	// Endpoint resolves the editor's address. Defaults to MetadataEndpoint.
	Endpoint Endpoint

	// Dispatcher answers requests initiated by the editor
	Dispatcher *Dispatcher

	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration

	Logger logr.Logger
	Stats  tally.Scope
}

// Client is the host side of the messaging connection to a Godot editor.
// It never reconnects on its own: after a drop it stays Disconnected until
// Connect is called again.
type Client struct {
	opts  ClientOptions
	log   logr.Logger
	stats tally.Scope

	mu                sync.Mutex
	state             types.ConnectionState
	peer              *peer
	ack               *HandshakeAck
	disposed          bool
	connectCancel     context.CancelFunc
	connectedHandlers []func()
}

// NewClient creates a disconnected client
func NewClient(opts ClientOptions) *Client {
	if opts.Endpoint == nil {
		opts.Endpoint = MetadataEndpoint{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	stats := opts.Stats
	if stats == nil {
		stats = tally.NoopScope
	}
	log := logger.OrDiscard(opts.Logger).WithValues("projectDirectory", opts.ProjectDirectory)

	return &Client{
		opts:  opts,
		log:   log,
		stats: stats.SubScope("messaging"),
		state: types.ConnectionStateDisconnected,
	}
}

// OnConnected registers fn to run after every successful Connect
func (c *Client) OnConnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectedHandlers = append(c.connectedHandlers, fn)
}

// Connect dials the editor and performs the handshake.
// Cancelling ctx or disposing the client aborts the attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errors.ConnectionError(c.opts.ProjectDirectory, fmt.Errorf("client is disposed"))
	}
	switch c.state {
	case types.ConnectionStateConnected:
		c.mu.Unlock()
		return nil
	case types.ConnectionStateConnecting:
		c.mu.Unlock()
		return errors.ConnectionError(c.opts.ProjectDirectory, fmt.Errorf("a connection attempt is already in progress"))
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = types.ConnectionStateConnecting
	c.connectCancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.log.V(1).Info("Connecting to editor")
	c.stats.Counter("connect_attempts").Inc(1)

	conn, err := c.opts.Endpoint.Dial(ctx, c.opts.ProjectDirectory)
	if err != nil {
		return c.failConnect(err)
	}

	ch := NewChannel(conn)
	stop := context.AfterFunc(ctx, func() {
		_ = ch.Close()
	})

	ack, err := clientHandshake(ch, HandshakeRequest{
		Identity:         c.opts.Identity,
		ProjectDirectory: c.opts.ProjectDirectory,
	}, c.opts.HandshakeTimeout)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = ch.Close()
		return c.failConnect(err)
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		_ = ch.Close()
		return c.failConnect(fmt.Errorf("client disposed during connect"))
	}
	p := newPeer(ch, c.opts.Dispatcher, c.log, c.stats, c.peerClosed)
	c.peer = p
	c.ack = ack
	c.state = types.ConnectionStateConnected
	c.connectCancel = nil
	handlers := make([]func(), len(c.connectedHandlers))
	copy(handlers, c.connectedHandlers)
	p.start()
	c.mu.Unlock()

	c.stats.Counter("connects").Inc(1)
	c.log.Info("Connected to editor", "editor", ch.RemoteAddr(), "editorIdentity", ack.Identity)

	for _, h := range handlers {
		h()
	}
	return nil
}

func (c *Client) failConnect(err error) error {
	c.mu.Lock()
	if c.state == types.ConnectionStateConnecting {
		c.state = types.ConnectionStateDisconnected
	}
	c.connectCancel = nil
	c.mu.Unlock()

	c.stats.Counter("connect_failures").Inc(1)
	c.log.V(1).Info("Connection attempt failed", "error", err.Error())
	return errors.ConnectionError(c.opts.ProjectDirectory, err)
}

// peerClosed runs when the connection drops or is closed
func (c *Client) peerClosed(p *peer, reason string) {
	c.mu.Lock()
	current := c.peer == p
	if current {
		c.peer = nil
		c.state = types.ConnectionStateDisconnected
	}
	c.mu.Unlock()

	if current {
		c.log.Info("Disconnected from editor", "reason", reason)
	}
}

// SendRequest sends req and decodes the editor's response into resp, which
// must be a pointer to the response type paired with req (nil discards the body).
// Requests are never queued: without a connection it fails with NotConnected.
func (c *Client) SendRequest(ctx context.Context, req Request, resp Response) error {
	c.mu.Lock()
	p := c.peer
	connected := c.state == types.ConnectionStateConnected
	c.mu.Unlock()

	if !connected || p == nil {
		return errors.NotConnected(req.Kind())
	}
	return p.request(ctx, req, resp, c.opts.RequestTimeout)
}

// Send is a typed SendRequest
func Send[T any, PT interface {
	*T
	Response
}](ctx context.Context, c *Client, req Request) (*T, error) {
	var out T
	if err := c.SendRequest(ctx, req, PT(&out)); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopPlay asks the editor to stop the running game
func (c *Client) StopPlay(ctx context.Context) error {
	_, err := Send[StopPlayResponse](ctx, c, StopPlayRequest{})
	return err
}

// Play asks the editor to run the main scene
func (c *Client) Play(ctx context.Context) error {
	_, err := Send[PlayResponse](ctx, c, PlayRequest{})
	return err
}

// DebugPlay asks the editor to run the game with its debugger agent connecting to host:port
func (c *Client) DebugPlay(ctx context.Context, req DebugPlayRequest) error {
	_, err := Send[DebugPlayResponse](ctx, c, req)
	return err
}

// ReloadScripts asks the editor to reload scripts
func (c *Client) ReloadScripts(ctx context.Context) error {
	_, err := Send[ReloadScriptsResponse](ctx, c, ReloadScriptsRequest{})
	return err
}

// Dispose closes the connection and fails every pending request with
// ConnectionClosed. The client cannot connect again afterwards. Safe to call repeatedly.
func (c *Client) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	cancel := c.connectCancel
	c.connectCancel = nil
	p := c.peer
	c.peer = nil
	c.state = types.ConnectionStateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.Close("client disposed")
	}
	c.log.V(1).Info("Client disposed")
	return nil
}

// State returns the current connection state
func (c *Client) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether requests can be sent
func (c *Client) IsConnected() bool {
	return c.State() == types.ConnectionStateConnected
}

// EditorExecutablePath is the editor path announced in the last handshake, if any
func (c *Client) EditorExecutablePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ack == nil {
		return ""
	}
	return c.ack.EditorExecutablePath
}

// ProjectDirectory returns the project directory the client was created for
func (c *Client) ProjectDirectory() string {
	return c.opts.ProjectDirectory
}

// PendingCount returns the number of requests awaiting a response
func (c *Client) PendingCount() int {
	c.mu.Lock()
	p := c.peer
	c.mu.Unlock()
	if p == nil {
		return 0
	}
	return p.pendingCount()
}
