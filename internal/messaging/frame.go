// Package messaging implements the request/response protocol spoken between
// the IDE host and a running Godot editor.
//
// The package provides:
//   - Channel: length-prefixed JSON frames over a local duplex connection
//   - Endpoint: discovery of the editor's listening port from the project directory
//   - Codec: request kinds, their paired response kinds and typed payloads
//   - Client: the host side; handshake, correlation, timeouts and disposal
//   - Dispatcher: routing of inbound requests to handlers by kind
//   - Server: the editor side; accepts handshakes and dispatches requests
//
// Every frame is a 4-byte big-endian length followed by a JSON document:
//
//	{"type":"request","id":7,"kind":"StopPlay","body":{}}
//	{"type":"response","id":7,"kind":"StopPlayResponse","status":"ok","body":{}}
package messaging

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// MaxFrameSize is the largest frame accepted on a channel (1 MiB).
const MaxFrameSize = 1 << 20

// FrameType distinguishes handshake, request and response frames
type FrameType string

const (
	FrameHandshake    FrameType = "handshake"
	FrameHandshakeAck FrameType = "handshakeAck"
	FrameRequest      FrameType = "request"
	FrameResponse     FrameType = "response"
)

// ResponseStatus is carried by response frames
type ResponseStatus string

const (
	StatusOK    ResponseStatus = "ok"
	StatusError ResponseStatus = "error"
)

// Frame is the unit of transfer on a Channel
type Frame struct {
	Type   FrameType       `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Status ResponseStatus  `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Channel is a duplex frame stream over a single connection.
// Writes are serialized so frames sent from different goroutines never
// interleave and reach the peer in the order WriteFrame was called.
type Channel struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewChannel wraps an established connection
func NewChannel(conn net.Conn) *Channel {
	return &Channel{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// WriteFrame encodes and sends a frame
func (c *Channel) WriteFrame(f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame length %d exceeds maximum %d", len(data), MaxFrameSize)
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until the next frame arrives
func (c *Channel) ReadFrame() (*Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(c.reader, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, fmt.Errorf("frame length is zero")
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", length, MaxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.reader, data); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return &f, nil
}

// SetReadDeadline bounds the next reads; the zero time clears the deadline
func (c *Channel) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr returns the peer address
func (c *Channel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the underlying connection. Subsequent calls return the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
