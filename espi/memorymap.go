package espi

import "encoding/binary"

// MemoryMap is the flat, little-endian byte buffer the host reads
// directly over eSPI. It is kept as raw bytes rather than a native Go
// struct so the layout is exactly the bytes on the wire, with no
// compiler-inserted padding to reason about.
type MemoryMap struct {
	buf [memoryMapSize]byte
}

// NewMemoryMap returns a zeroed map with the version header populated.
func NewMemoryMap(major, minor, spin, res0 uint8) *MemoryMap {
	m := &MemoryMap{}
	m.buf[0], m.buf[1], m.buf[2], m.buf[3] = major, minor, spin, res0
	return m
}

// Bytes exposes the raw buffer for the host-facing eSPI transport to
// read from; callers must not retain a reference past the next mutation.
func (m *MemoryMap) Bytes() []byte { return m.buf[:] }

// Len reports the memory map's total size in bytes.
func (m *MemoryMap) Len() int { return memoryMapSize }

func (m *MemoryMap) setU8(off uint16, v uint8)   { m.buf[off] = v }
func (m *MemoryMap) getU8(off uint16) uint8      { return m.buf[off] }
func (m *MemoryMap) setU16(off uint16, v uint16) { binary.LittleEndian.PutUint16(m.buf[off:], v) }
func (m *MemoryMap) getU16(off uint16) uint16    { return binary.LittleEndian.Uint16(m.buf[off:]) }
func (m *MemoryMap) setU32(off uint16, v uint32) { binary.LittleEndian.PutUint32(m.buf[off:], v) }
func (m *MemoryMap) getU32(off uint16) uint32    { return binary.LittleEndian.Uint32(m.buf[off:]) }

// UpdateBattery applies msg's field to the Battery section.
func (m *MemoryMap) UpdateBattery(msg BatteryMessage) {
	m.setU32(uint16(batteryOffset+int(msg.Field)*4), msg.Value)
}

// BatteryField reads id's current value back out of the Battery section.
func (m *MemoryMap) BatteryField(id BatteryFieldID) uint32 {
	return m.getU32(uint16(batteryOffset + int(id)*4))
}

// UpdateThermal applies msg's field to the Thermal section.
func (m *MemoryMap) UpdateThermal(msg ThermalMessage) {
	m.setU32(uint16(thermalOffset+int(msg.Field)*4), msg.Value)
}

// ThermalField reads id's current value back out of the Thermal section.
func (m *MemoryMap) ThermalField(id ThermalFieldID) uint32 {
	return m.getU32(uint16(thermalOffset + int(id)*4))
}

// UpdateTimeAlarm applies msg's field to the TimeAlarm section, writing
// only as many bytes as that field's real wire width.
func (m *MemoryMap) UpdateTimeAlarm(msg TimeAlarmMessage) {
	f := timeAlarmFields[msg.Field]
	off := uint16(timeAlarmOffset) + f.offset
	switch f.size {
	case 1:
		m.setU8(off, uint8(msg.Value))
	case 2:
		m.setU16(off, uint16(msg.Value))
	default:
		m.setU32(off, msg.Value)
	}
}

// TimeAlarmField reads id's current value back out of the TimeAlarm
// section, zero-extended to 32 bits.
func (m *MemoryMap) TimeAlarmField(id TimeAlarmFieldID) uint32 {
	f := timeAlarmFields[id]
	off := uint16(timeAlarmOffset) + f.offset
	switch f.size {
	case 1:
		return uint32(m.getU8(off))
	case 2:
		return uint32(m.getU16(off))
	default:
		return m.getU32(off)
	}
}

// UpdateCapabilities applies msg's field to the Capabilities section.
// There is no reverse (host-write) path for this section — see Bridge.
func (m *MemoryMap) UpdateCapabilities(msg CapabilitiesMessage) {
	switch msg.Field {
	case CapEvents:
		m.setU32(capabilitiesOffset+capEventsOffset, msg.Value)
	case CapFwVersion:
		off := uint16(capabilitiesOffset + capFwVersionOffset)
		m.setU8(off, uint8(msg.Value))
		m.setU8(off+1, uint8(msg.Value>>8))
		m.setU8(off+2, uint8(msg.Value>>16))
		m.setU8(off+3, uint8(msg.Value>>24))
	case CapSecureState:
		m.setU8(capabilitiesOffset+capSecureStateOffset, uint8(msg.Value))
	case CapBootStatus:
		m.setU8(capabilitiesOffset+capBootStatusOffset, uint8(msg.Value))
	case CapFanMask:
		m.setU8(capabilitiesOffset+capFanMaskOffset, uint8(msg.Value))
	case CapBatteryMask:
		m.setU8(capabilitiesOffset+capBatteryMaskOffset, uint8(msg.Value))
	case CapTempMask:
		m.setU16(capabilitiesOffset+capTempMaskOffset, uint16(msg.Value))
	case CapKeyMask:
		m.setU16(capabilitiesOffset+capKeyMaskOffset, uint16(msg.Value))
	case CapDebugMask:
		m.setU16(capabilitiesOffset+capDebugMaskOffset, uint16(msg.Value))
	}
}
