package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// HandshakeRequest is the first frame the host sends after dialing
type HandshakeRequest struct {
	Identity         string `json:"identity"`
	ProjectDirectory string `json:"projectDirectory"`
}

// HandshakeAck is the editor's answer to HandshakeRequest
type HandshakeAck struct {
	Accepted             bool   `json:"accepted"`
	Error                string `json:"error,omitempty"`
	Identity             string `json:"identity,omitempty"`
	EditorExecutablePath string `json:"editorExecutablePath,omitempty"`
}

// clientHandshake sends req and waits up to timeout for an accepting ack
func clientHandshake(ch *Channel, req HandshakeRequest, timeout time.Duration) (*HandshakeAck, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handshake: %w", err)
	}

	if err := ch.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	defer ch.SetReadDeadline(time.Time{}) //nolint:errcheck

	if err := ch.WriteFrame(&Frame{Type: FrameHandshake, Body: body}); err != nil {
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}

	f, err := ch.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("no handshake acknowledgement within %s: %w", timeout, err)
	}
	if f.Type != FrameHandshakeAck {
		return nil, fmt.Errorf("expected handshake acknowledgement, got %q frame", f.Type)
	}

	var ack HandshakeAck
	if err := DecodeBody(f.Body, &ack); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handshake acknowledgement: %w", err)
	}
	if !ack.Accepted {
		return nil, fmt.Errorf("handshake rejected by the editor: %s", ack.Error)
	}
	return &ack, nil
}

// serverHandshake waits up to timeout for the peer's handshake, validates it
// and answers with an ack. A rejected handshake is answered before the error is returned.
func serverHandshake(ch *Channel, timeout time.Duration, validate func(HandshakeRequest) error, ack HandshakeAck) (*HandshakeRequest, error) {
	if err := ch.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	defer ch.SetReadDeadline(time.Time{}) //nolint:errcheck

	f, err := ch.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("no handshake within %s: %w", timeout, err)
	}
	if f.Type != FrameHandshake {
		return nil, fmt.Errorf("expected handshake, got %q frame", f.Type)
	}

	var req HandshakeRequest
	if err := DecodeBody(f.Body, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handshake: %w", err)
	}

	var rejectErr error
	if validate != nil {
		rejectErr = validate(req)
	}
	if rejectErr != nil {
		ack = HandshakeAck{Accepted: false, Error: rejectErr.Error()}
	} else {
		ack.Accepted = true
	}

	body, err := json.Marshal(ack)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handshake acknowledgement: %w", err)
	}
	if err := ch.WriteFrame(&Frame{Type: FrameHandshakeAck, Body: body}); err != nil {
		return nil, fmt.Errorf("failed to send handshake acknowledgement: %w", err)
	}
	if rejectErr != nil {
		return nil, fmt.Errorf("handshake rejected: %w", rejectErr)
	}
	return &req, nil
}
