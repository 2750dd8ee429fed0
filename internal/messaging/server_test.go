package messaging

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_CloseWhileHostsDial(t *testing.T) {
	for i := 0; i < 20; i++ {
		server, err := NewServer(ServerOptions{Dispatcher: NewDispatcher()})
		require.NoError(t, err)

		served := make(chan error, 1)
		go func() { served <- server.Serve(context.Background()) }()

		stopDialing := make(chan struct{})
		dialed := make(chan struct{})
		go func() {
			defer close(dialed)
			for {
				select {
				case <-stopDialing:
					return
				default:
				}
				conn, err := net.DialTimeout("tcp", server.Addr(), 100*time.Millisecond)
				if err == nil {
					_ = conn.Close()
				}
			}
		}()

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, server.Close())
		close(stopDialing)
		<-dialed

		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after Close")
		}
		assert.Zero(t, server.PeerCount())
	}
}
