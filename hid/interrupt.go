package hid

import "sync"

// InterruptState is the one-in-flight interrupt-passthrough FSM of
// §4.9: the device's interrupt line is relayed to the host as at most
// one outstanding notification at a time.
type InterruptState uint8

const (
	InterruptIdle InterruptState = iota
	InterruptAsserted
	InterruptWaiting
	InterruptReset
)

// Lines is the pair of GPIO-like line setters the bridge drives; the
// concrete pin implementation (an hw.GPIOPin) is out of scope here.
type Lines interface {
	SetHostLine(asserted bool)
	ClearDeviceLine()
}

// InterruptBridge tracks InterruptState and drives Lines accordingly.
// It is not safe to call its methods concurrently from more than the
// single device-interrupt goroutine and the single host-request/
// response goroutine it is designed for; the mutex only protects the
// state field itself against that pairing.
type InterruptBridge struct {
	lines Lines

	mu    sync.Mutex
	state InterruptState
}

func NewInterruptBridge(lines Lines) *InterruptBridge {
	return &InterruptBridge{lines: lines, state: InterruptIdle}
}

func (b *InterruptBridge) State() InterruptState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *InterruptBridge) setState(s InterruptState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// OnDeviceAssert is called when the peripheral's interrupt line goes
// low. A second assertion while one is already in flight is dropped:
// at most one outstanding notification reaches the host.
func (b *InterruptBridge) OnDeviceAssert() {
	b.mu.Lock()
	if b.state != InterruptIdle {
		b.mu.Unlock()
		return
	}
	b.state = InterruptAsserted
	b.mu.Unlock()
	b.lines.SetHostLine(true)
}

// OnHostRequestReceived fires once the host has read the request that
// the assertion was signaling; the host line is released so the host
// can observe the next edge only after the response completes.
func (b *InterruptBridge) OnHostRequestReceived() {
	b.mu.Lock()
	if b.state != InterruptAsserted {
		b.mu.Unlock()
		return
	}
	b.state = InterruptWaiting
	b.mu.Unlock()
	b.lines.SetHostLine(false)
}

// OnHostResponseSent fires once the host side has finished writing the
// response, clearing the device line and reopening the gate for the
// next device interrupt.
func (b *InterruptBridge) OnHostResponseSent() {
	b.mu.Lock()
	if b.state != InterruptWaiting {
		b.mu.Unlock()
		return
	}
	b.state = InterruptIdle
	b.mu.Unlock()
	b.lines.ClearDeviceLine()
}

// Reset forces the bridge back to Idle and clears both lines, used by
// the host side on any error.
func (b *InterruptBridge) Reset() {
	b.setState(InterruptReset)
	b.lines.SetHostLine(false)
	b.lines.ClearDeviceLine()
	b.setState(InterruptIdle)
}
