package battery

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/registry"
)

const logTag = "battery"

// OemHook lets a board-specific extension observe EventOem traffic
// without the FSM itself knowing anything about vendor commands.
type OemHook func(code uint8, data []byte)

// Device drives one fuel gauge through its FSM. A state-machine timeout
// bounds each HandleEvent call end to end; on expiry an internal Timeout
// event is injected so the device settles into NotPresent the same way
// an explicit Timeout event would.
type Device struct {
	node           registry.Node[*Device]
	fg             FuelGauge
	machineTimeout time.Duration
	oemHook        OemHook

	mu      sync.Mutex
	stage   Stage
	static  StaticCache
	dynamic DynamicCache
}

// NewDevice builds a Device around fg. machineTimeout bounds each event's
// end-to-end handling (spec default 120s); pass 0 to use that default.
func NewDevice(fg FuelGauge, machineTimeout time.Duration) *Device {
	if machineTimeout <= 0 {
		machineTimeout = 120 * time.Second
	}
	return &Device{fg: fg, machineTimeout: machineTimeout, stage: StageNotPresent}
}

// SetOemHook registers the handler EventOem is forwarded to.
func (d *Device) SetOemHook(hook OemHook) { d.oemHook = hook }

func (d *Device) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

func (d *Device) Static() StaticCache {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.static
}

func (d *Device) Dynamic() DynamicCache {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dynamic
}

func (d *Device) setStage(s Stage) {
	d.mu.Lock()
	d.stage = s
	d.mu.Unlock()
}

// HandleEvent runs ev against the FSM, bounded by the state-machine
// timeout. A timed-out event is not itself returned to the caller as
// the event's result; the caller sees ContextTimeout and the FSM has
// separately been driven into NotPresent via an injected Timeout event.
func (d *Device) HandleEvent(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.machineTimeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() { resultCh <- d.dispatch(ctx, ev) }()

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		go d.dispatch(context.Background(), Event{Kind: EventTimeout})
		return ecerr.Wrapf("battery.device", ecerr.ContextTimeout, ctx.Err(), "state machine timeout")
	}
}

// dispatch resolves ev against the current stage per the §4.7 transition
// table, then runs the resulting step loop.
func (d *Device) dispatch(ctx context.Context, ev Event) error {
	cur := d.Stage()

	switch {
	case ev.Kind == EventDoInit:
		d.setStage(StageNotPresent)
		return d.stepLoop(ctx, StageNotPresent)

	case ev.Kind == EventPollDynamicData && cur == StagePresentOperationalPolling:
		return d.stepLoop(ctx, StagePresentOperationalPolling)

	case ev.Kind == EventPollStaticData && cur == StagePresentOperationalPolling:
		d.setStage(StagePresentOperationalInit)
		return d.stepLoop(ctx, StagePresentOperationalInit)

	case ev.Kind == EventTimeout:
		d.setStage(StagePresentNotOperational)
		return d.stepLoop(ctx, StagePresentNotOperational)

	case ev.Kind == EventOem:
		if d.oemHook != nil {
			d.oemHook(ev.OemCode, ev.OemData)
		}
		return nil

	default:
		return ecerr.Wrapf("battery.device", ecerr.InvalidActionInState, nil,
			"event not valid from %s", cur.String())
	}
}

// stepLoop walks the FSM forward from stage until it reaches a state
// that stops (returns to the caller) rather than continues.
func (d *Device) stepLoop(ctx context.Context, stage Stage) error {
	for {
		switch stage {
		case StageNotPresent:
			cctx, cancel := context.WithTimeout(ctx, d.fg.Timeout())
			err := d.fg.Ping(cctx)
			cancel()
			if err != nil {
				return ecerr.Wrapf("battery.device", ecerr.DeviceError, err, "ping")
			}

			cctx, cancel = context.WithTimeout(ctx, d.fg.Timeout())
			err = d.fg.Initialize(cctx)
			cancel()
			if err != nil {
				return ecerr.Wrapf("battery.device", ecerr.DeviceError, err, "initialize")
			}

			stage = StagePresentOperationalInit
			d.setStage(stage)
			continue

		case StagePresentOperationalInit:
			cctx, cancel := context.WithTimeout(ctx, d.fg.Timeout())
			cache, err := d.fg.UpdateStaticCache(cctx)
			cancel()
			if err != nil {
				return ecerr.Wrapf("battery.device", ecerr.DeviceError, err, "update_static_cache")
			}
			d.mu.Lock()
			d.static = cache
			d.mu.Unlock()

			stage = StagePresentOperationalPolling
			d.setStage(stage)
			return nil

		case StagePresentOperationalPolling:
			cctx, cancel := context.WithTimeout(ctx, d.fg.Timeout())
			cache, err := d.fg.UpdateDynamicCache(cctx)
			cancel()
			if err != nil {
				return ecerr.Wrapf("battery.device", ecerr.DeviceError, err, "update_dynamic_cache")
			}
			d.mu.Lock()
			d.dynamic = cache
			d.mu.Unlock()
			return nil

		case StagePresentNotOperational:
			xlog.Warnf(logTag, "device timed out, returning to not_present")
			d.setStage(StageNotPresent)
			return ecerr.Wrapf("battery.device", ecerr.DeviceTimeout, nil, "device did not respond in time")

		default:
			return ecerr.Wrapf("battery.device", ecerr.InvalidActionInState, nil, "unreachable stage")
		}
	}
}
