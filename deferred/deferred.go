// Package deferred implements the deferred-request channel: a
// request/response rendezvous that pairs one caller with one responder
// across cooperative tasks, tagging every request with a monotonic
// RequestId so a response that arrives after its caller gave up can be
// told apart from the response meant for whoever is waiting now.
//
// Grounded on bus.go's Connection.Request/RequestWait/Reply (a
// subscribe-publish-wait request/response triple), generalized with two
// things bus.go does not provide: a monotonic wrapping RequestId in
// place of a random hex topic token, and an issuer-serializing mutex so
// concurrent Execute callers are served strictly FIFO rather than each
// getting an independent subscription.
package deferred

import (
	"context"
)

// RequestId is monotonic and wraps on overflow; it exists only to tell
// a stale response apart from the one the current caller is waiting for.
type RequestId uint32

type cmdSlot[Req any] struct {
	id  RequestId
	cmd Req
}

type respSlot[Resp any] struct {
	id  RequestId
	val Resp
}

// Channel pairs one caller with one responder. Req is the command type a
// caller sends; Resp is the value a responder sends back.
type Channel[Req, Resp any] struct {
	issuerMu chan struct{} // 1-buffered binary semaphore: serializes issuers
	nextID   RequestId
	cmdCh    chan cmdSlot[Req]
	respCh   chan respSlot[Resp]
}

// NewChannel returns a ready-to-use deferred channel.
func NewChannel[Req, Resp any]() *Channel[Req, Resp] {
	c := &Channel[Req, Resp]{
		issuerMu: make(chan struct{}, 1),
		cmdCh:    make(chan cmdSlot[Req]),
		respCh:   make(chan respSlot[Resp]),
	}
	c.issuerMu <- struct{}{}
	return c
}

// Execute acquires the issuer mutex (serializing concurrent issuers so
// requests are strictly FIFO), allocates the next RequestId, signals the
// command slot, then awaits the response slot — discarding any response
// whose ID doesn't match this call's, since that response legitimately
// belongs to a previous caller who already timed out.
//
// If ctx is cancelled before a matching response arrives, Execute
// returns ctx.Err(); the response, if the responder later sends it, is
// silently discarded by whichever caller reads the response slot next.
func (c *Channel[Req, Resp]) Execute(ctx context.Context, cmd Req) (Resp, error) {
	var zero Resp

	select {
	case <-c.issuerMu:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { c.issuerMu <- struct{}{} }()

	id := c.nextID
	c.nextID++

	select {
	case c.cmdCh <- cmdSlot[Req]{id: id, cmd: cmd}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	for {
		select {
		case r := <-c.respCh:
			if r.id != id {
				continue
			}
			return r.val, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Request is the token Receive hands the responder: the command plus its
// ID. Respond consumes it exactly once.
type Request[Req, Resp any] struct {
	id  RequestId
	cmd Req
	ch  chan<- respSlot[Resp]
}

func (r Request[Req, Resp]) ID() RequestId { return r.id }
func (r Request[Req, Resp]) Command() Req  { return r.cmd }

// Respond signals the response slot with (value, id). It blocks until a
// caller is reading the response slot — either the issuer that sent this
// request, or, if that issuer has already given up, the next issuer to
// call Execute, which will discard it by ID and keep waiting.
func (r Request[Req, Resp]) Respond(value Resp) {
	r.ch <- respSlot[Resp]{id: r.id, val: value}
}

// Receive awaits the command slot and returns a Request token carrying
// the command and its ID.
func (c *Channel[Req, Resp]) Receive(ctx context.Context) (Request[Req, Resp], error) {
	select {
	case cs := <-c.cmdCh:
		return Request[Req, Resp]{id: cs.id, cmd: cs.cmd, ch: c.respCh}, nil
	case <-ctx.Done():
		var zero Request[Req, Resp]
		return zero, ctx.Err()
	}
}
