package typec

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
)

// controllerHandle is what Service keeps for one registered controller:
// its port-status channel, local->global port mapping, and cache.
type controllerHandle struct {
	id       ControllerId
	numPorts int
	portBase GlobalPortId
	ch       *deferred.Channel[PDCommand, PDResponse]

	mu    sync.Mutex
	cache []PortStatus
}

// Service maintains a cached PortStatus for every port across all
// registered controllers and aggregates which ports have an unhandled
// event.
type Service struct {
	cmdTimeout time.Duration

	mu          sync.Mutex
	controllers map[ControllerId]*controllerHandle
	byGlobal    map[GlobalPortId]*controllerHandle
	pending     map[GlobalPortId]bool
}

func NewService(cmdTimeout time.Duration) *Service {
	return &Service{
		cmdTimeout:  cmdTimeout,
		controllers: make(map[ControllerId]*controllerHandle),
		byGlobal:    make(map[GlobalPortId]*controllerHandle),
		pending:     make(map[GlobalPortId]bool),
	}
}

// RegisterController tells the service about a controller wrapper's
// command channel and port count/base so queries can route to it.
func (s *Service) RegisterController(w *Wrapper) {
	h := &controllerHandle{
		id:       w.ID(),
		numPorts: w.NumPorts(),
		portBase: w.portBase,
		ch:       w.Channel(),
		cache:    make([]PortStatus, w.NumPorts()),
	}
	s.mu.Lock()
	s.controllers[w.ID()] = h
	for i := 0; i < h.numPorts; i++ {
		s.byGlobal[h.portBase+GlobalPortId(i)] = h
	}
	s.mu.Unlock()
}

// MarkPending implements PendingNotifier: a controller wrapper calls this
// after handling a port event to flag the port for the service's next
// poll pass.
func (s *Service) MarkPending(port GlobalPortId) {
	s.mu.Lock()
	s.pending[port] = true
	s.mu.Unlock()
}

// PollPending reads status and accumulated events for every currently
// pending port, diffs against the cache, updates it, and logs any
// change. It returns the set of ports it refreshed.
func (s *Service) PollPending(ctx context.Context) []GlobalPortId {
	s.mu.Lock()
	due := make([]GlobalPortId, 0, len(s.pending))
	for p, isPending := range s.pending {
		if isPending {
			due = append(due, p)
			delete(s.pending, p)
		}
	}
	s.mu.Unlock()

	for _, port := range due {
		h, local, ok := s.lookup(port)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, s.cmdTimeout)
		resp, err := h.ch.Execute(ctx, PDCommand{Kind: PDCommandClearEvents, Port: local})
		cancel()
		if err != nil {
			xlog.Warnf(logTag, "port %d clear_events: %v", port, err)
			continue
		}
		ctx2, cancel2 := context.WithTimeout(ctx, s.cmdTimeout)
		statusResp, err := h.ch.Execute(ctx2, PDCommand{Kind: PDCommandPortStatus, Port: local})
		cancel2()
		if err != nil {
			xlog.Warnf(logTag, "port %d get_port_status: %v", port, err)
			continue
		}

		h.mu.Lock()
		prev := h.cache[local]
		h.cache[local] = statusResp.Status
		h.mu.Unlock()

		if prev != statusResp.Status {
			xlog.Debugf(logTag, "port %d status changed: events=%v %+v", port, resp.Events, statusResp.Status)
		}
	}
	return due
}

func (s *Service) lookup(port GlobalPortId) (*controllerHandle, LocalPortId, bool) {
	s.mu.Lock()
	h, ok := s.byGlobal[port]
	s.mu.Unlock()
	if !ok {
		return nil, 0, false
	}
	return h, LocalPortId(port - h.portBase), true
}

// GetPortStatus returns the live port status, routed through the owning
// controller's deferred channel.
func (s *Service) GetPortStatus(ctx context.Context, port GlobalPortId) (PortStatus, error) {
	h, local, ok := s.lookup(port)
	if !ok {
		return PortStatus{}, ecerr.Wrapf("typec.service", ecerr.InvalidComponent, nil, "unknown port")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cmdTimeout)
	defer cancel()
	resp, err := h.ch.Execute(ctx, PDCommand{Kind: PDCommandPortStatus, Port: local})
	if err != nil {
		return PortStatus{}, err
	}
	return resp.Status, nil
}

// GetControllerStatus returns every cached port status for controllerID.
func (s *Service) GetControllerStatus(controllerID ControllerId) ([]PortStatus, error) {
	s.mu.Lock()
	h, ok := s.controllers[controllerID]
	s.mu.Unlock()
	if !ok {
		return nil, ecerr.Wrapf("typec.service", ecerr.InvalidComponent, nil, "unknown controller")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PortStatus, len(h.cache))
	copy(out, h.cache)
	return out, nil
}

// GetControllerNumPorts reports how many ports controllerID owns.
func (s *Service) GetControllerNumPorts(controllerID ControllerId) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.controllers[controllerID]
	if !ok {
		return 0, ecerr.Wrapf("typec.service", ecerr.InvalidComponent, nil, "unknown controller")
	}
	return h.numPorts, nil
}

// ControllerPortToGlobalID maps a (controller, local port) pair to its
// global port ID.
func (s *Service) ControllerPortToGlobalID(controllerID ControllerId, local LocalPortId) (GlobalPortId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.controllers[controllerID]
	if !ok {
		return 0, ecerr.Wrapf("typec.service", ecerr.InvalidComponent, nil, "unknown controller")
	}
	if int(local) >= h.numPorts {
		return 0, ecerr.Wrapf("typec.service", ecerr.InvalidComponent, nil, "port out of range")
	}
	return h.portBase + GlobalPortId(local), nil
}
