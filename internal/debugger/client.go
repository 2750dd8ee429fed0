package debugger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
)

// Client drives the DAP conversation with an attached runtime
type Client struct {
	transport *Transport
	log       logr.Logger

	// Response handling
	pendingRequests map[int]chan dap.Message
	mu              sync.Mutex

	// Capabilities from initialize response
	capabilities dap.Capabilities

	// Initialization synchronization
	initialized     chan struct{}
	initializedOnce sync.Once

	// Closed when the runtime terminates or the connection drops
	terminated     chan struct{}
	terminatedOnce sync.Once

	// Context for shutdown
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a new DAP client with the given transport
func NewClient(transport *Transport, log logr.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:       transport,
		log:             log,
		pendingRequests: make(map[int]chan dap.Message),
		initialized:     make(chan struct{}),
		terminated:      make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}

	// Start the message reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	return c
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.markTerminated()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) {
				c.log.V(1).Info("Runtime closed the debugger connection")
				return
			}

			consecutiveErrors++
			c.log.Info("DAP transport error", "attempt", consecutiveErrors, "max", maxConsecutiveErrors, "error", err.Error())

			// Persistent transport failures end the session
			if consecutiveErrors >= maxConsecutiveErrors {
				c.log.Info("Too many consecutive DAP transport errors, stopping read loop")
				return
			}
			continue
		}

		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

func (c *Client) markTerminated() {
	c.terminatedOnce.Do(func() {
		close(c.terminated)
	})
}

// handleMessage routes incoming messages to the appropriate handler
func (c *Client) handleMessage(msg dap.Message) {
	switch m := msg.(type) {
	case *dap.InitializedEvent:
		c.initializedOnce.Do(func() {
			close(c.initialized)
		})
		return
	case *dap.TerminatedEvent, *dap.ExitedEvent:
		c.log.V(1).Info("Runtime reported end of session", "event", fmt.Sprintf("%T", m))
		c.markTerminated()
		return
	case *dap.OutputEvent:
		c.log.V(1).Info("Runtime output", "category", m.Body.Category, "output", m.Body.Output)
		return
	}

	resp, ok := msg.(dap.ResponseMessage)
	if !ok {
		return
	}
	requestSeq := resp.GetResponse().RequestSeq

	c.mu.Lock()
	if ch, ok := c.pendingRequests[requestSeq]; ok {
		ch <- msg
		delete(c.pendingRequests, requestSeq)
	}
	c.mu.Unlock()
}

// register assigns a sequence number to req and creates its response channel
func (c *Client) register(req dap.RequestMessage) (int, chan dap.Message) {
	seq := c.transport.NextSeq()
	req.GetRequest().Seq = seq

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()
	return seq, respCh
}

func (c *Client) unregister(seq int) {
	c.mu.Lock()
	delete(c.pendingRequests, seq)
	c.mu.Unlock()
}

// sendAsync sends a request without waiting for the response
func (c *Client) sendAsync(req dap.RequestMessage) (chan dap.Message, error) {
	seq, respCh := c.register(req)
	if err := c.transport.Send(req); err != nil {
		c.unregister(seq)
		return nil, err
	}
	return respCh, nil
}

// sendRequest sends a request and waits for the response
func (c *Client) sendRequest(req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	seq, respCh := c.register(req)
	if err := c.transport.Send(req); err != nil {
		c.unregister(seq)
		return nil, err
	}
	return c.await(seq, respCh, req.GetRequest().Command, timeout)
}

func (c *Client) await(seq int, respCh chan dap.Message, command string, timeout time.Duration) (dap.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if errResp, ok := resp.(*dap.ErrorResponse); ok {
			return nil, fmt.Errorf("%s failed: %s", command, errResp.Message)
		}
		return resp, nil
	case <-timer.C:
		c.unregister(seq)
		return nil, fmt.Errorf("%s request timeout", command)
	case <-c.terminated:
		c.unregister(seq)
		return nil, fmt.Errorf("%s: runtime disconnected", command)
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// Initialize sends the initialize request
func (c *Client) Initialize(clientID, clientName string, timeout time.Duration) (*dap.InitializeResponse, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{
			ClientID:        clientID,
			ClientName:      clientName,
			AdapterID:       "godot-mono",
			Locale:          "en-US",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	}

	resp, err := c.sendRequest(req, timeout)
	if err != nil {
		return nil, err
	}

	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}

	if !initResp.Success {
		return nil, fmt.Errorf("initialize failed: %s", initResp.Message)
	}

	c.capabilities = initResp.Body

	return initResp, nil
}

// WaitInitialized waits for the initialized event with a timeout
func (c *Client) WaitInitialized(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.initialized:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for initialized event")
	case <-c.terminated:
		return fmt.Errorf("runtime disconnected before initialization")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// AttachAsync sends an attach request without waiting for response.
// The runtime may answer only after configurationDone.
func (c *Client) AttachAsync(args map[string]interface{}) (chan dap.Message, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach args: %w", err)
	}

	req := &dap.AttachRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "attach",
		},
		Arguments: argsJSON,
	}
	return c.sendAsync(req)
}

// WaitForAttachResponse waits for the attach response on the channel
func (c *Client) WaitForAttachResponse(respCh chan dap.Message, timeout time.Duration) (*dap.AttachResponse, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		attachResp, ok := resp.(*dap.AttachResponse)
		if !ok {
			if errResp, isErr := resp.(*dap.ErrorResponse); isErr {
				return nil, fmt.Errorf("attach failed: %s", errResp.Message)
			}
			return nil, fmt.Errorf("unexpected response type: %T", resp)
		}
		if !attachResp.Success {
			return nil, fmt.Errorf("attach failed: %s", attachResp.Message)
		}
		return attachResp, nil
	case <-timer.C:
		return nil, fmt.Errorf("attach response timeout")
	case <-c.terminated:
		return nil, fmt.Errorf("runtime disconnected during attach")
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone(timeout time.Duration) error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "configurationDone",
		},
	}

	resp, err := c.sendRequest(req, timeout)
	if err != nil {
		return err
	}

	configResp, ok := resp.(*dap.ConfigurationDoneResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}

	if !configResp.Success {
		return fmt.Errorf("configurationDone failed: %s", configResp.Message)
	}

	return nil
}

// Disconnect asks the runtime to end the debug session
func (c *Client) Disconnect(terminateDebuggee bool, timeout time.Duration) error {
	req := &dap.DisconnectRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "disconnect",
		},
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}

	_, err := c.sendRequest(req, timeout)
	return err
}

// Capabilities returns what the runtime reported during initialize
func (c *Client) Capabilities() dap.Capabilities {
	return c.capabilities
}

// Terminated is closed once the runtime ends the session or the connection drops
func (c *Client) Terminated() <-chan struct{} {
	return c.terminated
}

// Close shuts down the client. Subsequent calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.transport.Close()
		c.wg.Wait()
	})
	return c.closeErr
}
