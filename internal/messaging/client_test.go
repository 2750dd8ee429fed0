package messaging

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/pkg/types"
)

const testIdentity = "VisualStudio"

// startEditor runs a Server for the duration of the test
func startEditor(t *testing.T, opts ServerOptions) *Server {
	t.Helper()

	server, err := NewServer(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = server.Close()
		<-done
	})
	return server
}

func newTestClient(t *testing.T, projectDir string, endpoint Endpoint, opts ...func(*ClientOptions)) *Client {
	t.Helper()
	o := ClientOptions{
		Identity:         testIdentity,
		ProjectDirectory: projectDir,
		Endpoint:         endpoint,
		HandshakeTimeout: time.Second,
		RequestTimeout:   2 * time.Second,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c := NewClient(o)
	t.Cleanup(func() { _ = c.Dispose() })
	return c
}

// fakeEditor is a hand-driven editor for tests that need control over response order
type fakeEditor struct {
	listener net.Listener
	conns    chan *Channel
	wg       sync.WaitGroup
}

func newFakeEditor(t *testing.T, answerHandshake bool) *fakeEditor {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fe := &fakeEditor{listener: listener, conns: make(chan *Channel, 4)}
	fe.wg.Add(1)
	go func() {
		defer fe.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			ch := NewChannel(conn)
			if answerHandshake {
				if _, err := serverHandshake(ch, time.Second, nil, HandshakeAck{Identity: "fake"}); err != nil {
					_ = ch.Close()
					continue
				}
			}
			fe.conns <- ch
		}
	}()

	t.Cleanup(func() {
		_ = listener.Close()
		fe.wg.Wait()
		close(fe.conns)
		for ch := range fe.conns {
			_ = ch.Close()
		}
	})
	return fe
}

func (fe *fakeEditor) endpoint() Endpoint {
	return AddressEndpoint(fe.listener.Addr().String())
}

func (fe *fakeEditor) next(t *testing.T) *Channel {
	t.Helper()
	select {
	case ch := <-fe.conns:
		t.Cleanup(func() { _ = ch.Close() })
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("no connection reached the fake editor")
		return nil
	}
}

func editorDispatcher(received chan<- string) *Dispatcher {
	record := func(kind string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			received <- kind
			return nil
		}
	}
	return NewEditorDispatcher(EditorHandlers{
		Play:          record(KindPlay),
		StopPlay:      record(KindStopPlay),
		ReloadScripts: record(KindReloadScripts),
		DebugPlay: func(ctx context.Context, req DebugPlayRequest) error {
			received <- KindDebugPlay
			return nil
		},
	}, logr.Discard())
}

func TestClient_ConnectAndStopPlay(t *testing.T) {
	dir := t.TempDir()
	received := make(chan string, 8)
	startEditor(t, ServerOptions{
		ProjectDirectory: dir,
		ExecutablePath:   "/opt/godot/godot",
		PublishMetadata:  true,
		Dispatcher:       editorDispatcher(received),
	})

	c := newTestClient(t, dir, nil)
	connected := make(chan struct{}, 1)
	c.OnConnected(func() { connected <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, types.ConnectionStateConnected, c.State())
	assert.Equal(t, "/opt/godot/godot", c.EditorExecutablePath())
	<-connected

	require.NoError(t, c.StopPlay(context.Background()))
	assert.Equal(t, KindStopPlay, <-received)
	assert.Zero(t, c.PendingCount())
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	c := newTestClient(t, t.TempDir(), AddressEndpoint("127.0.0.1:1"))

	err := c.StopPlay(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotConnected))
	assert.Zero(t, c.PendingCount())
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())
}

func TestClient_ConnectFailsWithoutEditor(t *testing.T) {
	c := newTestClient(t, t.TempDir(), nil)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConnection))
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())
}

func TestClient_HandshakeTimeout(t *testing.T) {
	fe := newFakeEditor(t, false)
	c := newTestClient(t, t.TempDir(), fe.endpoint(), func(o *ClientOptions) {
		o.HandshakeTimeout = 100 * time.Millisecond
	})

	start := time.Now()
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConnection))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())

	err = c.StopPlay(context.Background())
	assert.True(t, stderrors.Is(err, errors.ErrNotConnected))
}

func TestClient_HandshakeRejectedForOtherProject(t *testing.T) {
	editor := startEditor(t, ServerOptions{ProjectDirectory: t.TempDir()})

	c := newTestClient(t, t.TempDir(), AddressEndpoint(editor.Addr()))
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConnection))
	assert.Contains(t, err.Error(), "rejected")
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())
}

func TestClient_OutOfOrderResponses(t *testing.T) {
	fe := newFakeEditor(t, true)
	c := newTestClient(t, t.TempDir(), fe.endpoint())
	require.NoError(t, c.Connect(context.Background()))
	editor := fe.next(t)

	errs := make(chan error, 2)
	go func() { errs <- c.StopPlay(context.Background()) }()
	first, err := editor.ReadFrame()
	require.NoError(t, err)

	go func() { errs <- c.ReloadScripts(context.Background()) }()
	second, err := editor.ReadFrame()
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, c.PendingCount())

	// Answer the later request first
	for _, req := range []*Frame{second, first} {
		resp, err := EncodeResponse(req, nil)
		require.NoError(t, err)
		require.NoError(t, editor.WriteFrame(resp))
	}

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Zero(t, c.PendingCount())
}

func TestClient_MismatchedResponseKind(t *testing.T) {
	fe := newFakeEditor(t, true)
	c := newTestClient(t, t.TempDir(), fe.endpoint())
	require.NoError(t, c.Connect(context.Background()))
	editor := fe.next(t)

	errs := make(chan error, 1)
	go func() { errs <- c.StopPlay(context.Background()) }()
	req, err := editor.ReadFrame()
	require.NoError(t, err)

	resp, err := EncodeResponse(&Frame{Type: FrameRequest, ID: req.ID, Kind: KindPlay}, nil)
	require.NoError(t, err)
	require.NoError(t, editor.WriteFrame(resp))

	err = <-errs
	require.Error(t, err)
	assert.Equal(t, errors.CodeProtocolError, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "response to Play for a StopPlay request")
}

func TestClient_RequestTimeout(t *testing.T) {
	fe := newFakeEditor(t, true)
	c := newTestClient(t, t.TempDir(), fe.endpoint(), func(o *ClientOptions) {
		o.RequestTimeout = 100 * time.Millisecond
	})
	require.NoError(t, c.Connect(context.Background()))
	editor := fe.next(t)

	err := c.StopPlay(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRequestTimeout))
	assert.Zero(t, c.PendingCount())

	// A late response for the abandoned request is ignored
	req, err := editor.ReadFrame()
	require.NoError(t, err)
	resp, err := EncodeResponse(req, nil)
	require.NoError(t, err)
	require.NoError(t, editor.WriteFrame(resp))
	assert.True(t, c.IsConnected())
}

func TestClient_DisposeFailsPendingRequests(t *testing.T) {
	fe := newFakeEditor(t, true)
	c := newTestClient(t, t.TempDir(), fe.endpoint(), func(o *ClientOptions) {
		o.RequestTimeout = time.Minute
	})
	require.NoError(t, c.Connect(context.Background()))
	_ = fe.next(t)

	errs := make(chan error, 1)
	go func() { errs <- c.StopPlay(context.Background()) }()
	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Dispose())
	err := <-errs
	assert.True(t, stderrors.Is(err, errors.ErrConnectionClosed))
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())

	require.NoError(t, c.Dispose())
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())

	err = c.Connect(context.Background())
	assert.True(t, stderrors.Is(err, errors.ErrConnection))
}

func TestClient_DisposeCancelsConnect(t *testing.T) {
	fe := newFakeEditor(t, false)
	c := newTestClient(t, t.TempDir(), fe.endpoint(), func(o *ClientOptions) {
		o.HandshakeTimeout = time.Minute
	})

	errs := make(chan error, 1)
	go func() { errs <- c.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return c.State() == types.ConnectionStateConnecting }, 2*time.Second, 10*time.Millisecond)
	_ = fe.next(t)

	require.NoError(t, c.Dispose())
	select {
	case err := <-errs:
		assert.True(t, stderrors.Is(err, errors.ErrConnection))
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Dispose")
	}
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())
}

func TestClient_DisposeRacingConnect(t *testing.T) {
	dir := t.TempDir()
	startEditor(t, ServerOptions{
		ProjectDirectory: dir,
		PublishMetadata:  true,
		Dispatcher:       NewEditorDispatcher(EditorHandlers{}, logr.Discard()),
	})

	for i := 0; i < 20; i++ {
		c := newTestClient(t, dir, nil)
		errs := make(chan error, 1)
		go func() { errs <- c.Connect(context.Background()) }()
		require.NoError(t, c.Dispose())
		<-errs

		assert.Equal(t, types.ConnectionStateDisconnected, c.State())
		assert.False(t, c.IsConnected())
	}
}

func TestClient_DropMovesToDisconnected(t *testing.T) {
	fe := newFakeEditor(t, true)
	c := newTestClient(t, t.TempDir(), fe.endpoint())
	require.NoError(t, c.Connect(context.Background()))
	editor := fe.next(t)

	require.NoError(t, editor.Close())
	require.Eventually(t, func() bool { return c.State() == types.ConnectionStateDisconnected }, 2*time.Second, 10*time.Millisecond)

	// No background redial
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, types.ConnectionStateDisconnected, c.State())

	// An explicit Connect redials
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
}

func TestClient_SequentialRequestsKeepOrder(t *testing.T) {
	dir := t.TempDir()
	received := make(chan string, 8)
	editor := startEditor(t, ServerOptions{ProjectDirectory: dir, Dispatcher: editorDispatcher(received)})

	c := newTestClient(t, dir, AddressEndpoint(editor.Addr()))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Play(context.Background()))
	require.NoError(t, c.ReloadScripts(context.Background()))
	require.NoError(t, c.DebugPlay(context.Background(), DebugPlayRequest{DebuggerHost: "127.0.0.1", DebuggerPort: 8850}))
	require.NoError(t, c.StopPlay(context.Background()))

	assert.Equal(t, []string{KindPlay, KindReloadScripts, KindDebugPlay, KindStopPlay},
		[]string{<-received, <-received, <-received, <-received})
}

func TestClient_HandlerErrorIsReturned(t *testing.T) {
	dir := t.TempDir()
	editor := startEditor(t, ServerOptions{ProjectDirectory: dir, Dispatcher: editorDispatcher(make(chan string, 8))})

	c := newTestClient(t, dir, AddressEndpoint(editor.Addr()))
	require.NoError(t, c.Connect(context.Background()))

	err := c.DebugPlay(context.Background(), DebugPlayRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a debugger port")
	assert.True(t, c.IsConnected())
}

type bogusRequest struct{}

func (bogusRequest) Kind() string { return "Bogus" }

func TestClient_UnhandledInboundRequestKeepsChannelOpen(t *testing.T) {
	dir := t.TempDir()
	received := make(chan string, 8)
	editor := startEditor(t, ServerOptions{
		ProjectDirectory: dir,
		Dispatcher:       editorDispatcher(received),
		RequestTimeout:   100 * time.Millisecond,
	})

	c := newTestClient(t, dir, AddressEndpoint(editor.Addr()))
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return editor.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	err := editor.SendRequest(context.Background(), bogusRequest{}, nil)
	assert.True(t, stderrors.Is(err, errors.ErrRequestTimeout))

	assert.True(t, c.IsConnected())
	require.NoError(t, c.StopPlay(context.Background()))
	assert.Equal(t, KindStopPlay, <-received)
}

func TestClient_AnswersOpenFile(t *testing.T) {
	dir := t.TempDir()
	editor := startEditor(t, ServerOptions{ProjectDirectory: dir})

	type opened struct {
		file         string
		line, column int
	}
	got := make(chan opened, 1)
	opener := FileOpenerFunc(func(ctx context.Context, file string, line, column int) error {
		got <- opened{file, line, column}
		return nil
	})

	c := newTestClient(t, dir, AddressEndpoint(editor.Addr()), func(o *ClientOptions) {
		o.Dispatcher = NewHostDispatcher(opener, o.Logger)
	})
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return editor.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	var resp OpenFileResponse
	err := editor.SendRequest(context.Background(), OpenFileRequest{File: "res://player.cs", Line: 12, Column: 4}, &resp)
	require.NoError(t, err)
	assert.Equal(t, opened{"res://player.cs", 12, 4}, <-got)

	err = editor.SendRequest(context.Background(), OpenFileRequest{}, &resp)
	require.Error(t, err)
}
