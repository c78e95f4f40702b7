// Package charger drives a charger controller through Init -> Idle ->
// {PsuAttached, PsuDetached} on hardware events, accepting policy
// commands routed from powerpolicy via the ChargerNotifier interface.
package charger

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/powerpolicy"
	"github.com/jangala-dev/ecfw-core/x/ramp"
)

const logTag = "charger"

// maxChargeCurrentMA bounds the ramp's clamp ceiling; it is a safety
// backstop, not a target value.
const maxChargeCurrentMA = 5000

// State is the charger FSM's hardware-facing position.
type State uint8

const (
	StateInit State = iota
	StateIdle
	StatePsuAttached
	StatePsuDetached
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StatePsuAttached:
		return "psu_attached"
	case StatePsuDetached:
		return "psu_detached"
	default:
		return "?"
	}
}

// HWEventKind is a hardware-observed event that concurrently updates the
// FSM independent of any policy command in flight.
type HWEventKind uint8

const (
	HWInitialized HWEventKind = iota
	HWPsuAttached
	HWPsuDetached
	HWTimeout
)

// CommandKind is a policy-issued command.
type CommandKind uint8

const (
	CmdInitRequest CommandKind = iota
	CmdPolicyConfiguration
	CmdOem
)

type Command struct {
	Kind       CommandKind
	Capability powerpolicy.PowerCapability
	OemCode    uint8
	OemData    []byte
}

// OemHook observes vendor-passthrough commands.
type OemHook func(code uint8, data []byte)

// Controller is the concrete charger IC driver; its register layout is
// out of scope per spec §1.
type Controller interface {
	Init(ctx context.Context) error
	SetChargingCurrentMA(ctx context.Context, mA uint16) error
}

// Wrapper is the registered charger-policy endpoint for one controller.
// It implements powerpolicy.ChargerNotifier, translating every consumer
// capability change into a PolicyConfiguration command on the same path
// HandleCommand takes.
type Wrapper struct {
	ctrl       Controller
	cmdTimeout time.Duration
	oemHook    OemHook

	// rampSteps/rampDurationMs smooth any current change instead of
	// stepping it; the source is silent on ramping, so this is a
	// supplemented, non-conflicting behavior (see DESIGN.md). rampSteps
	// <= 1 or rampDurationMs == 0 disables ramping (snap).
	rampSteps      uint16
	rampDurationMs uint32

	mu            sync.Mutex
	state         State
	lastCurrentMA uint16
}

func NewWrapper(ctrl Controller, cmdTimeout time.Duration, rampSteps uint16, rampDurationMs uint32) *Wrapper {
	if cmdTimeout <= 0 {
		cmdTimeout = time.Second
	}
	return &Wrapper{
		ctrl:           ctrl,
		cmdTimeout:     cmdTimeout,
		rampSteps:      rampSteps,
		rampDurationMs: rampDurationMs,
		state:          StateInit,
	}
}

func (w *Wrapper) SetOemHook(hook OemHook) { w.oemHook = hook }

func (w *Wrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Wrapper) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// HandleHWEvent updates the FSM on a hardware-observed transition. A
// Timeout event clears the last commanded current in addition to
// returning to Idle, per §4.8.
func (w *Wrapper) HandleHWEvent(kind HWEventKind) {
	switch kind {
	case HWInitialized:
		w.setState(StateIdle)
	case HWPsuAttached:
		w.setState(StatePsuAttached)
	case HWPsuDetached:
		w.setState(StatePsuDetached)
	case HWTimeout:
		w.mu.Lock()
		w.state = StateIdle
		w.lastCurrentMA = 0
		w.mu.Unlock()
	}
}

// HandleCommand processes a policy command against the legal
// command-in-state matrix of §4.8.
func (w *Wrapper) HandleCommand(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CmdInitRequest:
		if w.State() != StateInit {
			return ecerr.Wrapf("charger.wrapper", ecerr.InvalidState, nil, "init_request only valid from init")
		}
		if err := w.ctrl.Init(ctx); err != nil {
			return ecerr.Wrapf("charger.wrapper", ecerr.DeviceError, err, "init")
		}
		w.setState(StateIdle)
		return nil

	case CmdPolicyConfiguration:
		return w.handlePolicyConfiguration(ctx, cmd.Capability)

	case CmdOem:
		if w.oemHook != nil {
			w.oemHook(cmd.OemCode, cmd.OemData)
		}
		return nil

	default:
		return ecerr.Wrapf("charger.wrapper", ecerr.InvalidActionInState, nil, "unknown command")
	}
}

func (w *Wrapper) handlePolicyConfiguration(ctx context.Context, cap powerpolicy.PowerCapability) error {
	switch w.State() {
	case StateIdle, StatePsuDetached:
		if cap.CurrentMA != 0 {
			return ecerr.Wrapf("charger.wrapper", ecerr.InvalidState, nil, "nonzero current requires psu attached")
		}
		return w.setCurrent(ctx, 0)
	case StatePsuAttached:
		return w.setCurrent(ctx, cap.CurrentMA)
	default:
		return ecerr.Wrapf("charger.wrapper", ecerr.InvalidState, nil, "policy_configuration not valid from init")
	}
}

// NotifyCapability implements powerpolicy.ChargerNotifier.
func (w *Wrapper) NotifyCapability(cap powerpolicy.PowerCapability) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cmdTimeout)
	defer cancel()
	if err := w.handlePolicyConfiguration(ctx, cap); err != nil {
		xlog.Warnf(logTag, "consumer capability notification rejected: %v", err)
	}
}

func (w *Wrapper) setCurrent(ctx context.Context, targetMA uint16) error {
	w.mu.Lock()
	cur := w.lastCurrentMA
	w.mu.Unlock()

	if w.rampSteps <= 1 || w.rampDurationMs == 0 || targetMA == cur {
		if err := w.ctrl.SetChargingCurrentMA(ctx, targetMA); err != nil {
			return ecerr.Wrapf("charger.wrapper", ecerr.DeviceError, err, "set_charging_current")
		}
		w.mu.Lock()
		w.lastCurrentMA = targetMA
		w.mu.Unlock()
		return nil
	}

	var rampErr error
	tick := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}
	set := func(level uint16) {
		if err := w.ctrl.SetChargingCurrentMA(ctx, level); err != nil && rampErr == nil {
			rampErr = err
		}
		w.mu.Lock()
		w.lastCurrentMA = level
		w.mu.Unlock()
	}
	ramp.StartLinear(cur, targetMA, maxChargeCurrentMA, w.rampDurationMs, w.rampSteps, tick, set)
	if rampErr != nil {
		return ecerr.Wrapf("charger.wrapper", ecerr.DeviceError, rampErr, "set_charging_current during ramp")
	}
	return nil
}
