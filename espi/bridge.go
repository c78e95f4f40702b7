package espi

import (
	"github.com/jangala-dev/ecfw-core/comms"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

const logTag = "espi"

// Bridge translates host eSPI writes, addressed by (offset, length) into
// the packed MemoryMap, into typed internal messages routed to the
// owning endpoint, and applies the reverse direction — an internal
// service's field update — back onto the map. It registers itself as
// the External(Host) endpoint's delegate to receive that reverse
// traffic.
type Bridge struct {
	mm       *MemoryMap
	fabric   *comms.Fabric
	hostID   comms.EndpointID
	endpoint *comms.Endpoint
}

// NewBridge builds a Bridge over mm and registers it against fabric's
// External(Host) endpoint.
func NewBridge(fabric *comms.Fabric, mm *MemoryMap) *Bridge {
	b := &Bridge{mm: mm, fabric: fabric, hostID: comms.External(comms.KindHost)}
	b.endpoint = fabric.RegisterEndpoint(b.hostID, b)
	return b
}

// Deliver implements comms.Delegate: the reverse path, applying an
// internal service's field-update message onto the memory map. Unknown
// payloads are dropped rather than erroring, matching comms.Delegate's
// "must not panic on an unexpected payload shape" contract.
func (b *Bridge) Deliver(msg comms.Message) {
	switch m := msg.Data.(type) {
	case BatteryMessage:
		b.mm.UpdateBattery(m)
	case ThermalMessage:
		b.mm.UpdateThermal(m)
	case TimeAlarmMessage:
		b.mm.UpdateTimeAlarm(m)
	case CapabilitiesMessage:
		b.mm.UpdateCapabilities(m)
	}
}

// HandleHostWrite classifies a host write addressed by (offset, length)
// and routes it to the owning endpoint, one field at a time. Version and
// Capabilities are read-only from the host's side and always report
// ecerr.InvalidLocation; any offset that doesn't land on a known field
// boundary does the same.
func (b *Bridge) HandleHostWrite(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > b.mm.Len() {
		return ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "write out of range")
	}

	for length > 0 {
		var consumed int
		var err error

		switch {
		case inSection(offset, versionOffset, versionSize):
			return ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "write to version section")
		case inSection(offset, capabilitiesOffset, capabilitiesSize):
			return ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "write to capabilities section")
		case inSection(offset, timeAlarmOffset, timeAlarmSize):
			consumed, err = b.routeTimeAlarm(offset)
		case inSection(offset, batteryOffset, batterySize):
			consumed, err = b.routeBattery(offset)
		case inSection(offset, thermalOffset, thermalSize):
			consumed, err = b.routeThermal(offset)
		default:
			return ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "offset matches no section")
		}

		if err != nil {
			return err
		}
		offset += consumed
		length -= consumed
	}
	return nil
}

func inSection(offset, base, size int) bool {
	return offset >= base && offset < base+size
}

func (b *Bridge) routeBattery(offset int) (int, error) {
	local := offset - batteryOffset
	if local%4 != 0 || local/4 >= int(batteryFieldCount) {
		return 0, ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "unknown battery field offset")
	}
	msg := BatteryMessage{Field: BatteryFieldID(local / 4), Value: b.mm.BatteryField(BatteryFieldID(local / 4))}
	b.fabric.Send(b.hostID, comms.Internal(comms.KindBattery), msg)
	return 4, nil
}

func (b *Bridge) routeThermal(offset int) (int, error) {
	local := offset - thermalOffset
	if local%4 != 0 || local/4 >= int(thermalFieldCount) {
		return 0, ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "unknown thermal field offset")
	}
	msg := ThermalMessage{Field: ThermalFieldID(local / 4), Value: b.mm.ThermalField(ThermalFieldID(local / 4))}
	b.fabric.Send(b.hostID, comms.Internal(comms.KindThermal), msg)
	return 4, nil
}

func (b *Bridge) routeTimeAlarm(offset int) (int, error) {
	local := uint16(offset - timeAlarmOffset)
	for _, f := range timeAlarmFields {
		if f.offset == local {
			msg := TimeAlarmMessage{Field: f.id, Value: b.mm.TimeAlarmField(f.id)}
			b.fabric.Send(b.hostID, comms.Internal(comms.KindTimeAlarm), msg)
			return int(f.size), nil
		}
	}
	return 0, ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "unknown time_alarm field offset")
}
