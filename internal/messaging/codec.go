package messaging

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ctagard/godot-bridge/internal/errors"
)

// responseSuffix turns a request kind into its paired response kind
const responseSuffix = "Response"

// Request is a typed request payload
type Request interface {
	Kind() string
}

// Response is a typed response payload. Its Kind must be ResponseKindFor the request kind.
type Response interface {
	Kind() string
}

// ResponseKindFor maps a request kind to the kind of its response
func ResponseKindFor(requestKind string) string {
	return requestKind + responseSuffix
}

// RequestKindFor maps a response kind back to the request kind, if it is one
func RequestKindFor(responseKind string) (string, bool) {
	if !strings.HasSuffix(responseKind, responseSuffix) || len(responseKind) == len(responseSuffix) {
		return "", false
	}
	return strings.TrimSuffix(responseKind, responseSuffix), true
}

// EncodeRequest builds the request frame for req under the given correlation ID
func EncodeRequest(id uint64, req Request) (*Frame, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", req.Kind(), err)
	}
	return &Frame{
		Type: FrameRequest,
		ID:   id,
		Kind: req.Kind(),
		Body: body,
	}, nil
}

// EncodeResponse builds the response frame answering request frame req
func EncodeResponse(req *Frame, resp Response) (*Frame, error) {
	f := &Frame{
		Type:   FrameResponse,
		ID:     req.ID,
		Kind:   ResponseKindFor(req.Kind),
		Status: StatusOK,
	}
	if resp == nil {
		return f, nil
	}
	if resp.Kind() != f.Kind {
		return nil, fmt.Errorf("handler for %s returned a %s payload, expected %s", req.Kind, resp.Kind(), f.Kind)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", f.Kind, err)
	}
	f.Body = body
	return f, nil
}

// EncodeErrorResponse builds a failed response frame answering request frame req
func EncodeErrorResponse(req *Frame, err error) *Frame {
	return &Frame{
		Type:   FrameResponse,
		ID:     req.ID,
		Kind:   ResponseKindFor(req.Kind),
		Status: StatusError,
		Error:  err.Error(),
	}
}

// DecodeResponse fills out from a response frame
func DecodeResponse(f *Frame, out Response) error {
	if f.Type != FrameResponse {
		return errors.ProtocolError(fmt.Sprintf("expected a response frame, got %q", f.Type), nil)
	}
	if f.Status == StatusError {
		return fmt.Errorf("%s failed on the peer: %s", f.Kind, f.Error)
	}
	if out == nil {
		return nil
	}
	if f.Kind != out.Kind() {
		return errors.ProtocolError(fmt.Sprintf("expected %s, got %s", out.Kind(), f.Kind), nil)
	}
	if len(f.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Body, out); err != nil {
		return errors.ProtocolError(fmt.Sprintf("failed to unmarshal %s", f.Kind), err)
	}
	return nil
}

// DecodeBody unmarshals a request body into out. An empty body leaves out untouched.
func DecodeBody(body json.RawMessage, out interface{}) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
