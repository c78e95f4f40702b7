// Package hw collects the device-facing interfaces the EC firmware core
// drives: I2C buses, GPIO/IRQ lines, and the concrete drivers (hw/ltc4015)
// that sit behind them. Everything here is typed against
// tinygo.org/x/drivers so the same code builds for host tests and an
// RP2040/RT685S target.
package hw

import (
	"tinygo.org/x/drivers"
)

// I2C is the subset of tinygo.org/x/drivers.I2C the module needs.
type I2C interface {
	Tx(addr uint16, w, r []byte) error
}

var _ I2C = (drivers.I2C)(nil)

// I2CBusFactory injects configured I2C instances by id, for board wiring
// code (cmd/ecsim) that looks buses up by name rather than wiring them
// directly.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// I2COwner is an I2C bus guarded by a timeout and (normally) a mutex held
// by whatever owns the physical bus; hw.I2CShim adapts one into the plain
// I2C shape the drivers expect.
type I2COwner interface {
	Tx(addr uint16, w, r []byte, timeoutMS int) error
}

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
	Number() int
}

// Edge selection for IRQ.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// IRQPin extends GPIOPin with interrupts; the HID bridge's interrupt
// passthrough FSM (hid.InterruptBridge) drives the host-side signal line
// through one of these.
type IRQPin interface {
	GPIOPin
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

// PinFactory supplies GPIO pins by the configured number scheme.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, bool)
}

func EdgeToString(e Edge) string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}
