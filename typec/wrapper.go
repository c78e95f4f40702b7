package typec

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/powerpolicy"
)

const logTag = "typec"

// PendingNotifier is how a Wrapper tells the Type-C service that a
// global port has an event worth re-reading. Implemented by Service.
type PendingNotifier interface {
	MarkPending(port GlobalPortId)
}

// Wrapper adapts one concrete Controller to both the powerpolicy.Service
// (per-port device state) and a PendingNotifier (the Type-C service).
//
// The source design's three-way select_three(wait_port_event,
// wait_power_command, wait_pd_command) becomes cooperating goroutines
// here — one for port events, one for PD commands and one power-command
// loop per port — sharing a single mutex over
// the wrapper's cached status and event bookkeeping. A literal
// reflect.Select over a dynamic port count would be slower and less
// readable than Go's native "one goroutine per concern" idiom, and the
// three sources never need to be serviced in a specific relative order
// (§5 only orders port events against each other, ascending by port
// index, and orders deferred-channel callers against each other via the
// issuer mutex inside deferred.Channel).
type Wrapper struct {
	id         ControllerId
	ctrl       Controller
	policy     *powerpolicy.Service
	pending    PendingNotifier
	portBase   GlobalPortId
	devices    []*powerpolicy.Device
	cmdTimeout time.Duration

	pdCh *deferred.Channel[PDCommand, PDResponse]

	mu           sync.Mutex
	cachedStatus []PortStatus
	// activeEvents intentionally has a single slot rather than one per
	// port: the source repository caches only the most recently seen
	// port's event mask, a known bug (spec §9, "implementers: preserve
	// source behavior"). Reproduced as-is rather than silently fixed.
	activeEvents [1]PortEventKind
}

// NewWrapper builds a Wrapper over ctrl, registering one powerpolicy
// device per port. Every USB-C port is provider-capable in principle;
// whether a given port actually becomes a provider is judged at event
// time from the negotiated contract, not from a static flag.
func NewWrapper(id ControllerId, ctrl Controller, policy *powerpolicy.Service, pending PendingNotifier, portBase GlobalPortId, deviceTimeout, cmdTimeout time.Duration) (*Wrapper, error) {
	n := ctrl.NumPorts()
	w := &Wrapper{
		id:           id,
		ctrl:         ctrl,
		policy:       policy,
		pending:      pending,
		portBase:     portBase,
		devices:      make([]*powerpolicy.Device, n),
		cmdTimeout:   cmdTimeout,
		pdCh:         deferred.NewChannel[PDCommand, PDResponse](),
		cachedStatus: make([]PortStatus, n),
	}
	for i := 0; i < n; i++ {
		d := powerpolicy.NewDevice(powerpolicy.DeviceId(uint32(id)<<8|uint32(i)), deviceTimeout, true)
		if err := policy.RegisterDevice(d); err != nil {
			return nil, err
		}
		w.devices[i] = d
	}
	return w, nil
}

func (w *Wrapper) ID() ControllerId           { return w.id }
func (w *Wrapper) NumPorts() int              { return len(w.devices) }
func (w *Wrapper) GlobalPort(p LocalPortId) GlobalPortId { return w.portBase + GlobalPortId(p) }

// Channel exposes the deferred channel the Type-C service issues
// PDCommand requests against.
func (w *Wrapper) Channel() *deferred.Channel[PDCommand, PDResponse] { return w.pdCh }

// Run starts the wrapper's concurrent loops (port events, PD commands,
// and one device-policy loop per port) and blocks until ctx is cancelled.
func (w *Wrapper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2 + len(w.devices))

	go func() { defer wg.Done(); w.portEventLoop(ctx) }()
	go func() { defer wg.Done(); w.pdCommandLoop(ctx) }()
	for i := range w.devices {
		port := LocalPortId(i)
		go func() { defer wg.Done(); w.devicePolicyLoop(ctx, port) }()
	}
	wg.Wait()
}

func (w *Wrapper) portEventLoop(ctx context.Context) {
	for {
		flags, err := w.ctrl.WaitPortEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			xlog.Warnf(logTag, "controller %d wait_port_event: %v", w.id, err)
			continue
		}
		// Ports on one controller are processed in ascending index, per §5.
		for p := 0; p < len(w.devices); p++ {
			port := LocalPortId(p)
			if !flags.Has(port) {
				continue
			}
			w.handlePortEvent(port)
		}
	}
}

func (w *Wrapper) handlePortEvent(port LocalPortId) {
	events, err := w.ctrl.ClearPortEvents(port)
	if err != nil {
		xlog.Warnf(logTag, "controller %d port %d clear_port_events: %v", w.id, port, err)
		return
	}
	if events == 0 {
		w.mu.Lock()
		w.activeEvents[0] = 0
		w.mu.Unlock()
		return
	}

	status, err := w.ctrl.GetPortStatus(port)
	if err != nil {
		xlog.Warnf(logTag, "controller %d port %d get_port_status: %v", w.id, port, err)
		return
	}

	device := w.devices[port]

	if events&EventPlugInsertedOrRemoved != 0 {
		if status.ConnectionPresent {
			if device.State() != powerpolicy.Detached {
				xlog.Warnf(logTag, "controller %d port %d: connect while not detached, forcing detach", w.id, port)
				w.policy.Detach(device)
			}
			if err := w.policy.Attach(device); err != nil {
				xlog.Warnf(logTag, "controller %d port %d attach: %v", w.id, port, err)
			}
		} else {
			if err := w.ctrl.SetSourcing(port, true); err != nil {
				xlog.Warnf(logTag, "controller %d port %d reset sourcing: %v", w.id, port, err)
			}
			if err := w.ctrl.SetSourceCurrent(port, SourceCurrentUSBDefault, false); err != nil {
				xlog.Warnf(logTag, "controller %d port %d reset source current: %v", w.id, port, err)
			}
			w.policy.Detach(device)
		}
	}

	if events&EventNewPowerContractAsConsumer != 0 {
		switch {
		case status.DualPower && status.AvailableSinkContract != nil &&
			status.AvailableSinkContract.MaxPowerMW() <= consumerLowPowerThresholdMW:
			if err := w.ctrl.RequestPRSwap(port, RoleSource); err != nil {
				xlog.Warnf(logTag, "controller %d port %d request_pr_swap: %v", w.id, port, err)
			}
		case device.State() != powerpolicy.ConnectedProvider:
			w.policy.NotifyConsumerPowerCapability(device, status.AvailableSinkContract)
		}
	}

	if events&EventNewPowerContractAsProvider != 0 && device.State() != powerpolicy.ConnectedConsumer {
		if status.AvailableSourceContract != nil {
			if err := w.policy.RequestProviderPowerCapability(device); err != nil {
				xlog.Warnf(logTag, "controller %d port %d request_provider_power_capability: %v", w.id, port, err)
			}
		} else if device.State() == powerpolicy.ConnectedProvider {
			if err := w.policy.Disconnect(device); err != nil {
				xlog.Warnf(logTag, "controller %d port %d disconnect provider: %v", w.id, port, err)
			}
		}
	}

	w.mu.Lock()
	w.activeEvents[0] = events
	w.cachedStatus[port] = status
	w.mu.Unlock()

	w.pending.MarkPending(w.GlobalPort(port))
}

// devicePolicyLoop services powerpolicy requests addressed to one port's
// Device, translating them into controller actions.
func (w *Wrapper) devicePolicyLoop(ctx context.Context, port LocalPortId) {
	device := w.devices[port]
	for {
		req, err := device.Channel().Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		req.Respond(powerpolicy.DeviceResponse{Err: w.handleDeviceRequest(port, device, req.Command())})
	}
}

func (w *Wrapper) handleDeviceRequest(port LocalPortId, device *powerpolicy.Device, req powerpolicy.DeviceRequest) error {
	switch req.Kind {
	case powerpolicy.ActionConnectConsumer:
		return w.ctrl.EnableSinkPath(port, true)

	case powerpolicy.ActionConnectProvider:
		level, ok := capabilityToSourceCurrent(req.Capability)
		if !ok {
			return ecerr.Wrapf("typec.wrapper", ecerr.CannotProvide, nil, "unsupported capability")
		}
		if err := w.ctrl.SetSourcing(port, true); err != nil {
			return err
		}
		return w.ctrl.SetSourceCurrent(port, level, true)

	case powerpolicy.ActionNotifyProviderCapability:
		level, ok := capabilityToSourceCurrent(req.Capability)
		if !ok {
			return ecerr.Wrapf("typec.wrapper", ecerr.CannotProvide, nil, "unsupported capability")
		}
		return w.ctrl.SetSourceCurrent(port, level, true)

	case powerpolicy.ActionDisconnect:
		switch device.State() {
		case powerpolicy.ConnectedConsumer:
			return w.ctrl.EnableSinkPath(port, false)
		case powerpolicy.ConnectedProvider:
			if err := w.ctrl.SetSourcing(port, false); err != nil {
				return err
			}
			return w.ctrl.SetSourceCurrent(port, SourceCurrentUSBDefault, false)
		}
		return nil

	default:
		return ecerr.Wrapf("typec.wrapper", ecerr.InvalidActionInState, nil, "unknown action")
	}
}

// pdCommandLoop services the Type-C service's PortStatus / ClearEvents
// queries for this controller.
func (w *Wrapper) pdCommandLoop(ctx context.Context) {
	for {
		req, err := w.pdCh.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		cmd := req.Command()
		switch cmd.Kind {
		case PDCommandPortStatus:
			w.mu.Lock()
			status := w.cachedStatus[cmd.Port]
			w.mu.Unlock()
			req.Respond(PDResponse{Status: status})

		case PDCommandClearEvents:
			w.mu.Lock()
			events := w.activeEvents[0]
			w.activeEvents[0] = 0
			w.mu.Unlock()
			req.Respond(PDResponse{Events: events})

		default:
			req.Respond(PDResponse{Err: ecerr.Wrapf("typec.wrapper", ecerr.InvalidActionInState, nil, "unknown pd command")})
		}
	}
}
