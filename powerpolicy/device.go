// Package powerpolicy selects, at all times, the single best consumer
// across registered power devices and manages the provider set,
// orchestrating device-side state transitions and surfacing
// state-change notifications over comms.
package powerpolicy

import (
	"sync"
	"time"

	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/registry"
)

// State is a power device's lifecycle stage.
type State uint8

const (
	Detached State = iota
	Idle
	ConnectedConsumer
	ConnectedProvider
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Idle:
		return "idle"
	case ConnectedConsumer:
		return "connected_consumer"
	case ConnectedProvider:
		return "connected_provider"
	default:
		return "?"
	}
}

// PowerCapability is a voltage/current pair; MaxPowerMW is the ordering
// key consumer selection and provider budgeting use.
type PowerCapability struct {
	VoltageMV uint16
	CurrentMA uint16
}

func (c PowerCapability) MaxPowerMW() uint32 {
	return uint32(c.VoltageMV) * uint32(c.CurrentMA) / 1000
}

// DeviceId identifies a registered power device; equality only.
type DeviceId uint32

// ActionKind is the request Service issues to a device's controller
// across the device's deferred channel.
type ActionKind uint8

const (
	ActionConnectConsumer ActionKind = iota
	ActionConnectProvider
	ActionDisconnect
	ActionNotifyProviderCapability
)

// DeviceRequest is what Service sends; DeviceResponse is what the
// concrete controller (typically a typec.Wrapper) sends back. A non-nil
// Err surfaces as a policy Failed per §4.4's failure model.
type DeviceRequest struct {
	Kind       ActionKind
	Capability PowerCapability
}

type DeviceResponse struct {
	Err error
}

// Device is the registered power-policy record for one port or power
// path. Its state is driven exclusively by Service; the controller on
// the other end of Channel() executes the hardware action and Acks or
// fails.
type Device struct {
	node    registry.Node[*Device]
	id      DeviceId
	ch      *deferred.Channel[DeviceRequest, DeviceResponse]
	timeout time.Duration

	providerCapable bool

	mu                sync.Mutex
	state             State
	capability        PowerCapability
	availableConsumer *PowerCapability
	inRecovery        bool
}

// NewDevice constructs an unregistered, Detached device. timeout bounds
// every device-channel action Service issues against it.
func NewDevice(id DeviceId, timeout time.Duration, providerCapable bool) *Device {
	return &Device{
		id:              id,
		ch:              deferred.NewChannel[DeviceRequest, DeviceResponse](),
		timeout:         timeout,
		providerCapable: providerCapable,
	}
}

func (d *Device) ID() DeviceId { return d.id }

// Channel is what the device's concrete controller Receives on and
// Responds through.
func (d *Device) Channel() *deferred.Channel[DeviceRequest, DeviceResponse] {
	return d.ch
}

func (d *Device) ProviderCapable() bool { return d.providerCapable }

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) Capability() PowerCapability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capability
}

func (d *Device) InRecovery() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inRecovery
}

func (d *Device) setRecovery(v bool) {
	d.mu.Lock()
	d.inRecovery = v
	d.mu.Unlock()
}

// AvailableConsumerCapability is what the device could sink if selected;
// nil means "not offering."
func (d *Device) AvailableConsumerCapability() *PowerCapability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.availableConsumer
}

// Attach transitions Detached -> Idle.
func (d *Device) Attach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Detached {
		return invalidState(Detached, d.state)
	}
	d.state = Idle
	return nil
}

// Detach unconditionally transitions to Detached (legal from Any).
func (d *Device) Detach() {
	d.mu.Lock()
	d.state = Detached
	d.availableConsumer = nil
	d.inRecovery = false
	d.mu.Unlock()
}

// NotifyConsumerCapability updates what this device could sink. A nil
// cap while ConnectedConsumer additionally transitions it to Idle, per
// the explicit "ConnectedConsumer --notify_consumer_power_capability
// (None)--> Idle" rule.
func (d *Device) NotifyConsumerCapability(cap *PowerCapability) {
	d.mu.Lock()
	d.availableConsumer = cap
	if cap == nil && d.state == ConnectedConsumer {
		d.state = Idle
	}
	d.mu.Unlock()
}

func (d *Device) commitConnectConsumer(cap PowerCapability) {
	d.mu.Lock()
	d.state = ConnectedConsumer
	d.capability = cap
	d.mu.Unlock()
}

func (d *Device) commitConnectProvider(cap PowerCapability) {
	d.mu.Lock()
	d.state = ConnectedProvider
	d.capability = cap
	d.mu.Unlock()
}

func (d *Device) commitDisconnect() {
	d.mu.Lock()
	d.state = Idle
	d.mu.Unlock()
}

func invalidState(expected, actual State) error {
	return ecerr.Wrapf("powerpolicy.device", ecerr.InvalidState, nil,
		"expected %s, got %s", expected, actual)
}
