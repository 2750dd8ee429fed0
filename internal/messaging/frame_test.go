package messaging

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeChannels(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := NewChannel(a), NewChannel(b)
	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})
	return ca, cb
}

func TestChannel_WriteAndReadFrame(t *testing.T) {
	local, remote := pipeChannels(t)

	sent := &Frame{Type: FrameRequest, ID: 7, Kind: KindStopPlay, Body: json.RawMessage(`{}`)}
	go func() {
		_ = local.WriteFrame(sent)
	}()

	got, err := remote.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameRequest, got.Type)
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, KindStopPlay, got.Kind)
	assert.JSONEq(t, `{}`, string(got.Body))
}

func TestChannel_FramesArriveInWriteOrder(t *testing.T) {
	local, remote := pipeChannels(t)

	go func() {
		for i := uint64(1); i <= 5; i++ {
			_ = local.WriteFrame(&Frame{Type: FrameRequest, ID: i, Kind: KindPlay})
		}
	}()

	for i := uint64(1); i <= 5; i++ {
		f, err := remote.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, i, f.ID)
	}
}

func TestChannel_RejectsOversizedFrame(t *testing.T) {
	local, remote := pipeChannels(t)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
		_, _ = local.conn.Write(header[:])
	}()

	_, err := remote.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	local, _ := pipeChannels(t)

	require.NoError(t, local.Close())
	require.NoError(t, local.Close())

	err := local.WriteFrame(&Frame{Type: FrameRequest, ID: 1, Kind: KindPlay})
	require.Error(t, err)
}
