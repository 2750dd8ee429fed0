package messaging

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/internal/logger"
)

// ServerOptions configures the editor side of the messaging connection
type ServerOptions struct {
	// ProjectDirectory is the project served; handshakes for other directories are rejected
	ProjectDirectory string

	// Identity is returned in the handshake acknowledgement
	Identity string

	// ExecutablePath is announced to hosts in the handshake acknowledgement
	ExecutablePath string

	// Address to listen on. Defaults to 127.0.0.1:0.
	Address string

	// PublishMetadata writes the endpoint metadata file into the project directory
	PublishMetadata bool

	Dispatcher       *Dispatcher
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration

	Logger logr.Logger
	Stats  tally.Scope
}

// Server accepts host connections the way the Godot editor does.
// It backs the editor-stub command and the messaging tests.
type Server struct {
	opts     ServerOptions
	log      logr.Logger
	stats    tally.Scope
	listener net.Listener

	mu     sync.Mutex
	peers  []*peer
	closed bool

	wg sync.WaitGroup
}

// NewServer binds the listener and, if requested, publishes the endpoint metadata
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Address == "" {
		opts.Address = "127.0.0.1:0"
	}
	if opts.Identity == "" {
		opts.Identity = "GodotEditor"
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

	listener, err := net.Listen("tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.Address, err)
	}

	s := &Server{
		opts:     opts,
		log:      logger.OrDiscard(opts.Logger).WithName("editor"),
		stats:    stats.SubScope("editor"),
		listener: listener,
	}

	if opts.PublishMetadata {
		md := Metadata{Port: s.Port(), ExecutablePath: opts.ExecutablePath}
		if err := WriteMetadata(opts.ProjectDirectory, md); err != nil {
			_ = listener.Close()
			return nil, err
		}
	}
	return s, nil
}

// Port returns the bound TCP port
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled or the server is closed
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.listener.Close()
	})
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	ch := NewChannel(conn)
	ack := HandshakeAck{
		Identity:             s.opts.Identity,
		EditorExecutablePath: s.opts.ExecutablePath,
	}

	req, err := serverHandshake(ch, s.opts.HandshakeTimeout, s.validate, ack)
	if err != nil {
		s.log.Info("Handshake failed", "remote", ch.RemoteAddr(), "error", err.Error())
		s.stats.Counter("handshake_failures").Inc(1)
		_ = ch.Close()
		return
	}

	p := newPeer(ch, s.opts.Dispatcher, s.log.WithValues("host", req.Identity), s.stats, s.peerClosed)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ch.Close()
		return
	}
	s.peers = append(s.peers, p)
	p.start()
	s.mu.Unlock()

	s.log.Info("Host connected", "identity", req.Identity, "remote", ch.RemoteAddr())
	p.wg.Wait()
}

func (s *Server) validate(req HandshakeRequest) error {
	if req.Identity == "" {
		return fmt.Errorf("missing identity")
	}
	if s.opts.ProjectDirectory != "" && filepath.Clean(req.ProjectDirectory) != filepath.Clean(s.opts.ProjectDirectory) {
		return fmt.Errorf("this editor serves %s, not %s", s.opts.ProjectDirectory, req.ProjectDirectory)
	}
	return nil
}

func (s *Server) peerClosed(p *peer, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.peers {
		if candidate == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}
	s.log.V(1).Info("Host disconnected", "reason", reason)
}

// PeerCount returns the number of connected hosts
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// SendRequest sends req to the most recently connected host
func (s *Server) SendRequest(ctx context.Context, req Request, resp Response) error {
	s.mu.Lock()
	var p *peer
	if len(s.peers) > 0 {
		p = s.peers[len(s.peers)-1]
	}
	s.mu.Unlock()

	if p == nil {
		return errors.NotConnected(req.Kind())
	}
	return p.request(ctx, req, resp, s.opts.RequestTimeout)
}

// Close stops accepting, disconnects every host and removes published metadata
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*peer, len(s.peers))
	copy(peers, s.peers)
	s.mu.Unlock()

	var errs error
	if err := s.listener.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
		errs = multierr.Append(errs, err)
	}
	for _, p := range peers {
		p.Close("editor shutting down")
	}
	s.wg.Wait()

	if s.opts.PublishMetadata {
		errs = multierr.Append(errs, RemoveMetadata(s.opts.ProjectDirectory))
	}
	return errs
}
