package cfu

import (
	"context"
	"time"

	"github.com/jangala-dev/ecfw-core/bus"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/registry"
)

const logTag = "cfu"

// defaultRouteTimeout bounds how long RouteRequest waits for a
// component's reply before treating it as unreachable.
const defaultRouteTimeout = 500 * time.Millisecond

// Service routes CFU requests to registered components over a bus,
// mirroring the bus's own Connection.Request/RequestWait/Reply
// request-response shape: RouteRequest is the issuer side, each
// Component's Run loop is the responder side.
type Service struct {
	b            *bus.Bus
	issuer       *bus.Connection
	components   registry.List[*Component]
	routeTimeout time.Duration
}

// NewService builds a Service bound to b.
func NewService(b *bus.Bus) *Service {
	return &Service{b: b, issuer: b.NewConnection("cfu-router"), routeTimeout: defaultRouteTimeout}
}

// Register adds c to the set RouteRequest can address.
func (s *Service) Register(c *Component) error {
	return s.components.Register(&c.node, c)
}

func (s *Service) lookup(id ComponentId) (*Component, bool) {
	var found *Component
	s.components.Each(func(_ uint64, c *Component) bool {
		if c.ID() == id {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

func (s *Service) defaultVersionFor(id ComponentId) FwVersion {
	if c, ok := s.lookup(id); ok {
		return c.defaultVersion
	}
	return FwVersion{}
}

// RouteRequest looks up the component registered under to and forwards
// req through the bus, returning ecerr.InvalidComponent if no such
// component is registered.
func (s *Service) RouteRequest(ctx context.Context, to ComponentId, req Request) (Response, error) {
	if _, ok := s.lookup(to); !ok {
		return Response{}, ecerr.Wrapf(logTag, ecerr.InvalidComponent, nil, "route_request")
	}
	rctx, cancel := context.WithTimeout(ctx, s.routeTimeout)
	defer cancel()
	msg := s.issuer.NewMessage(componentTopic(to), req, false)
	reply, err := s.issuer.RequestWait(rctx, msg)
	if err != nil {
		return Response{}, ecerr.Wrap(logTag, ecerr.DeviceTimeout, err)
	}
	resp, ok := reply.Payload.(Response)
	if !ok {
		return Response{}, ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "unexpected reply payload")
	}
	return resp, nil
}

// subcomponentVersion is RouteRequest specialized for the FwVersion
// fan-out: a plain version query with no content/offer fields.
func (s *Service) subcomponentVersion(ctx context.Context, id ComponentId) (FwVersion, error) {
	resp, err := s.RouteRequest(ctx, id, Request{Kind: ReqFwVersion})
	if err != nil {
		return FwVersion{}, err
	}
	return resp.Version, nil
}

// Run serves c's request topic until ctx is done: receive one routed
// request, handle it against c, and reply unless handle says the
// request wasn't addressed to c.
func (s *Service) Run(ctx context.Context, c *Component) {
	conn := s.b.NewConnection("cfu-component")
	sub := conn.Subscribe(c.topic())
	defer conn.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			req, ok := msg.Payload.(Request)
			if !ok {
				continue
			}
			resp, shouldReply := c.handle(ctx, s, req)
			if shouldReply {
				conn.Reply(msg, resp, false)
			}
		}
	}
}
