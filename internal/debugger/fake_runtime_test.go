package debugger

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/require"
)

// fakeRuntime plays the game runtime: it connects to a session's port and
// answers the DAP attach sequence
type fakeRuntime struct {
	conn       net.Conn
	attachArgs chan map[string]interface{}
	disconnect chan struct{}
	wg         sync.WaitGroup
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func connectRuntime(t *testing.T, port int, rejectAttach bool) *fakeRuntime {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)

	rt := &fakeRuntime{
		conn:       conn,
		attachArgs: make(chan map[string]interface{}, 1),
		disconnect: make(chan struct{}, 1),
	}
	rt.wg.Add(1)
	go rt.serve(rejectAttach)
	t.Cleanup(func() {
		_ = conn.Close()
		rt.wg.Wait()
	})
	return rt
}

func (rt *fakeRuntime) serve(rejectAttach bool) {
	defer rt.wg.Done()

	reader := bufio.NewReader(rt.conn)
	seq := 0
	send := func(msg dap.Message) bool {
		return dap.WriteProtocolMessage(rt.conn, msg) == nil
	}
	response := func(command string, requestSeq int, success bool) dap.Response {
		seq++
		return dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "response"},
			Command:         command,
			RequestSeq:      requestSeq,
			Success:         success,
		}
	}

	for {
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			return
		}

		switch req := msg.(type) {
		case *dap.InitializeRequest:
			if !send(&dap.InitializeResponse{Response: response("initialize", req.Seq, true)}) {
				return
			}
			seq++
			if !send(&dap.InitializedEvent{Event: dap.Event{
				ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "event"},
				Event:           "initialized",
			}}) {
				return
			}
		case *dap.AttachRequest:
			var args map[string]interface{}
			_ = json.Unmarshal(req.Arguments, &args)
			rt.attachArgs <- args
			resp := response("attach", req.Seq, !rejectAttach)
			if rejectAttach {
				resp.Message = "attach refused"
			}
			if !send(&dap.AttachResponse{Response: resp}) {
				return
			}
		case *dap.ConfigurationDoneRequest:
			if !send(&dap.ConfigurationDoneResponse{Response: response("configurationDone", req.Seq, true)}) {
				return
			}
		case *dap.DisconnectRequest:
			rt.disconnect <- struct{}{}
			_ = send(&dap.DisconnectResponse{Response: response("disconnect", req.Seq, true)})
			return
		}
	}
}
