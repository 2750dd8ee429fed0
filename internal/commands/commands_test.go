package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/godot-bridge/internal/messaging"
	"github.com/ctagard/godot-bridge/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCmd()
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err = root.ExecuteContext(context.Background())
	return out.String(), err
}

// serveEditor runs a stub editor for dir and reports the request kinds it receives
func serveEditor(t *testing.T, dir string) <-chan string {
	t.Helper()
	received := make(chan string, 8)
	record := func(kind string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			received <- kind
			return nil
		}
	}
	server, err := messaging.NewServer(messaging.ServerOptions{
		ProjectDirectory: dir,
		PublishMetadata:  true,
		Dispatcher: messaging.NewEditorDispatcher(messaging.EditorHandlers{
			Play:          record(messaging.KindPlay),
			StopPlay:      record(messaging.KindStopPlay),
			ReloadScripts: record(messaging.KindReloadScripts),
		}, logr.Discard()),
	})
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
	return received
}

func TestNewRootCmd(t *testing.T) {
	root, err := NewRootCmd()
	require.NoError(t, err)

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "request", "stop-play", "debug", "editor-stub", "version"})
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "godot-bridge v"+version.Version+"\n", out)
}

func TestRequestCommand(t *testing.T) {
	dir := t.TempDir()
	received := serveEditor(t, dir)

	out, err := execute(t, "request", "reloadScripts", "--project", dir)
	require.NoError(t, err)
	assert.Equal(t, "reloadScripts: ok\n", out)
	assert.Equal(t, messaging.KindReloadScripts, <-received)

	out, err = execute(t, "stop-play", "-p", dir)
	require.NoError(t, err)
	assert.Equal(t, "stopPlay: ok\n", out)
	assert.Equal(t, messaging.KindStopPlay, <-received)
}

func TestRequestCommand_InvalidKind(t *testing.T) {
	_, err := execute(t, "request", "build", "--project", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestRequestCommand_NoEditor(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "request", "play", "--project", dir, "--timeout", "2s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not reach the Godot editor")
}

func TestDebugCommand_RequiresProject(t *testing.T) {
	_, err := execute(t, "debug", "--mode", "attach")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}

func TestDebugCommand_InvalidMode(t *testing.T) {
	_, err := execute(t, "debug", "--project", "Game.csproj", "--mode", "remote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown execution mode")
}
