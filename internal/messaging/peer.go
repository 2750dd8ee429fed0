package messaging

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally/v4"

	"github.com/ctagard/godot-bridge/internal/errors"
)

// pendingRequest is an in-flight request awaiting its response
type pendingRequest struct {
	correlationID uint64
	requestKind   string
	responseKind  string
	completion    chan result
}

type result struct {
	frame *Frame
	err   error
}

// peer is one established, handshaken connection. Both the client and the
// server run their connections through it: it correlates outbound requests
// with responses and hands inbound requests to the dispatcher.
type peer struct {
	ch         *Channel
	dispatcher *Dispatcher
	log        logr.Logger
	stats      tally.Scope

	mu          sync.Mutex
	pending     map[uint64]*pendingRequest
	nextID      uint64
	closed      bool
	closeReason string

	onClose func(p *peer, reason string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPeer(ch *Channel, dispatcher *Dispatcher, log logr.Logger, stats tally.Scope, onClose func(*peer, string)) *peer {
	ctx, cancel := context.WithCancel(context.Background())
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	return &peer{
		ch:         ch,
		dispatcher: dispatcher,
		log:        log,
		stats:      stats,
		pending:    make(map[uint64]*pendingRequest),
		onClose:    onClose,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// start launches the read loop
func (p *peer) start() {
	p.wg.Add(1)
	go p.readLoop()
}

func (p *peer) readLoop() {
	defer p.wg.Done()

	for {
		f, err := p.ch.ReadFrame()
		if err != nil {
			reason := "connection lost"
			if stderrors.Is(err, io.EOF) {
				reason = "peer closed the connection"
			} else if stderrors.Is(err, net.ErrClosed) {
				reason = "connection closed locally"
			} else {
				p.log.V(1).Info("Read failed", "error", err.Error())
			}
			p.shutdown(reason)
			return
		}

		switch f.Type {
		case FrameResponse:
			p.handleResponse(f)
		case FrameRequest:
			p.handleRequest(f)
		default:
			p.log.Info("Dropping unexpected frame", "type", string(f.Type), "id", f.ID)
			p.stats.Counter("frames_dropped").Inc(1)
		}
	}
}

func (p *peer) handleResponse(f *Frame) {
	p.mu.Lock()
	pr, ok := p.pending[f.ID]
	if ok {
		delete(p.pending, f.ID)
	}
	p.mu.Unlock()

	if !ok {
		// Late response to a request that already timed out or was cancelled
		p.log.V(1).Info("Ignoring response without pending request", "id", f.ID, "kind", f.Kind)
		return
	}

	if f.Kind != pr.responseKind {
		message := "response kind " + f.Kind + " does not match " + pr.requestKind + " request"
		if kind, ok := RequestKindFor(f.Kind); ok {
			message = "got the response to " + kind + " for a " + pr.requestKind + " request"
		}
		pr.completion <- result{err: errors.ProtocolError(message, nil)}
		return
	}
	pr.completion <- result{frame: f}
}

func (p *peer) handleRequest(f *Frame) {
	out, err := p.dispatcher.Dispatch(p.ctx, f)
	if err != nil {
		// Unhandled kinds are dropped without a response; the channel stays open
		p.log.Info("Dropping inbound request", "kind", f.Kind, "id", f.ID, "handled", p.dispatcher.Kinds(), "error", err.Error())
		p.stats.Counter("requests_unhandled").Inc(1)
		return
	}
	if err := p.ch.WriteFrame(out); err != nil {
		p.log.V(1).Info("Failed to send response", "kind", out.Kind, "id", out.ID, "error", err.Error())
	}
}

// request sends req and waits for the matching response, decoding it into resp
func (p *peer) request(ctx context.Context, req Request, resp Response, timeout time.Duration) error {
	kind := req.Kind()

	p.mu.Lock()
	if p.closed {
		reason := p.closeReason
		p.mu.Unlock()
		return errors.ConnectionClosed(reason)
	}
	p.nextID++
	id := p.nextID
	f, err := EncodeRequest(id, req)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	pr := &pendingRequest{
		correlationID: id,
		requestKind:   kind,
		responseKind:  ResponseKindFor(kind),
		completion:    make(chan result, 1),
	}
	p.pending[id] = pr
	p.stats.Gauge("pending_requests").Update(float64(len(p.pending)))
	p.mu.Unlock()

	p.stats.Counter("requests_sent").Inc(1)
	if err := p.ch.WriteFrame(f); err != nil {
		p.remove(id)
		return errors.ConnectionClosed("failed to send " + kind + " request").WithCause(err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pr.completion:
		if res.err != nil {
			return res.err
		}
		return DecodeResponse(res.frame, resp)
	case <-timer.C:
		p.remove(id)
		p.stats.Counter("request_timeouts").Inc(1)
		return errors.RequestTimeout(kind, id, timeout)
	case <-ctx.Done():
		p.remove(id)
		return ctx.Err()
	}
}

func (p *peer) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
	p.stats.Gauge("pending_requests").Update(float64(len(p.pending)))
}

func (p *peer) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// shutdown closes the channel and fails every pending request. Only the first call has an effect.
func (p *peer) shutdown(reason string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.closeReason = reason
	pending := p.pending
	p.pending = make(map[uint64]*pendingRequest)
	p.mu.Unlock()

	p.cancel()
	_ = p.ch.Close()

	for _, pr := range pending {
		pr.completion <- result{err: errors.ConnectionClosed(reason)}
	}
	p.stats.Gauge("pending_requests").Update(0)

	if p.onClose != nil {
		p.onClose(p, reason)
	}
}

// Close shuts the connection down and waits for the read loop to exit.
// It must not be called from the read loop.
func (p *peer) Close(reason string) {
	p.shutdown(reason)
	p.wg.Wait()
}
