// Package typec wraps a concrete USB-C/PD port-controller driver,
// bridging it to both the powerpolicy service (per-port device state)
// and a higher Type-C service (cached port-status aggregation for
// external queries).
package typec

import (
	"context"

	"github.com/jangala-dev/ecfw-core/powerpolicy"
)

// ControllerId, LocalPortId, and GlobalPortId are the newtype integers
// of spec §3: equality only, no arithmetic meaning beyond identity and
// (for GlobalPortId) the controller-relative offset a Service assigns.
type ControllerId uint32
type LocalPortId uint8
type GlobalPortId uint32

// PortEventKind is a bit set over the events a controller can report for
// one port.
type PortEventKind uint16

const (
	EventPlugInsertedOrRemoved      PortEventKind = 1 << 0
	EventNewPowerContractAsConsumer PortEventKind = 1 << 1
	EventNewPowerContractAsProvider PortEventKind = 1 << 2
)

// PortEventFlags is a bit-vector of local ports with pending events,
// bounded by the controller's NumPorts (at most 32 here).
type PortEventFlags uint32

func (f PortEventFlags) Has(port LocalPortId) bool { return f&(1<<uint(port)) != 0 }

// Contract is what one side of a connection currently has negotiated.
type Contract struct {
	IsSource   bool
	Capability powerpolicy.PowerCapability
}

func SinkContract(cap powerpolicy.PowerCapability) Contract {
	return Contract{IsSource: false, Capability: cap}
}

func SourceContract(cap powerpolicy.PowerCapability) Contract {
	return Contract{IsSource: true, Capability: cap}
}

// PortStatus is the cached state one port reports.
type PortStatus struct {
	ConnectionPresent       bool
	DebugConnection         bool
	DualPower               bool
	Contract                *Contract
	AvailableSinkContract   *powerpolicy.PowerCapability
	AvailableSourceContract *powerpolicy.PowerCapability
}

// SourceCurrent is the Type-C source-current level a provider capability
// maps onto.
type SourceCurrent uint8

const (
	SourceCurrentUSBDefault SourceCurrent = iota
	SourceCurrent1500mA
	SourceCurrent3000mA
)

// PowerRole selects which side of the connection sources power, used by
// RequestPRSwap.
type PowerRole uint8

const (
	RoleSink PowerRole = iota
	RoleSource
)

// Controller is the concrete PD-silicon driver this wrapper adapts. Its
// register layout (e.g. TPS6699x) is out of scope per spec §1; only this
// behavioral contract matters here.
type Controller interface {
	NumPorts() int
	WaitPortEvent(ctx context.Context) (PortEventFlags, error)
	ClearPortEvents(port LocalPortId) (PortEventKind, error)
	GetPortStatus(port LocalPortId) (PortStatus, error)
	EnableSinkPath(port LocalPortId, enable bool) error
	SetSourceCurrent(port LocalPortId, level SourceCurrent, signal bool) error
	SetSourcing(port LocalPortId, enable bool) error
	RequestPRSwap(port LocalPortId, role PowerRole) error
}

// PDCommandKind is the set of commands the Type-C service issues to a
// controller wrapper across its deferred channel.
type PDCommandKind uint8

const (
	PDCommandPortStatus PDCommandKind = iota
	PDCommandClearEvents
)

type PDCommand struct {
	Kind PDCommandKind
	Port LocalPortId
}

type PDResponse struct {
	Status PortStatus
	Events PortEventKind
	Err    error
}

// DebugAccessoryNotification is delivered on the internal USBC endpoint
// per §6 when a port's debug-accessory status changes.
type DebugAccessoryNotification struct {
	Port      GlobalPortId
	Connected bool
}

// capabilityToSourceCurrent maps a requested provider capability to one
// of the three Type-C source-current levels; a capability matching none
// of them is not providable.
func capabilityToSourceCurrent(cap powerpolicy.PowerCapability) (SourceCurrent, bool) {
	switch cap.CurrentMA {
	case 0, 900:
		return SourceCurrentUSBDefault, true
	case 1500:
		return SourceCurrent1500mA, true
	case 3000:
		return SourceCurrent3000mA, true
	default:
		return 0, false
	}
}

const defaultSourceCurrentMA = 900

func defaultSourceCapability() powerpolicy.PowerCapability {
	return powerpolicy.PowerCapability{VoltageMV: 5000, CurrentMA: defaultSourceCurrentMA}
}

// consumerLowPowerThresholdMW is the §4.5 heuristic boundary: a dual-role
// partner offering at most this much as a consumer contract looks like a
// phone-class source, so the wrapper requests a PR-swap to Source rather
// than sinking from it.
const consumerLowPowerThresholdMW = 15000
