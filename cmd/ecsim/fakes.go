package main

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/ecfw-core/cfu"
	"github.com/jangala-dev/ecfw-core/hid"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/typec"
)

// memStore backs the NVRAM table with a plain map instead of a real
// battery-backed RTC register file.
type memStore struct {
	mu    sync.Mutex
	words map[int]uint32
}

func newMemStore() *memStore { return &memStore{words: make(map[int]uint32)} }

func (s *memStore) ReadWord(offset int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words[offset]
}

func (s *memStore) WriteWord(offset int, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[offset] = value
}

// fakeLTC4015Bus is a minimal register-file model of an LTC4015: reads
// are two-byte little-endian words, writes are a register byte followed
// by a little-endian word, matching the driver's own wire protocol.
type fakeLTC4015Bus struct {
	mu   sync.Mutex
	regs map[byte]uint16
}

func newFakeLTC4015Bus() *fakeLTC4015Bus {
	return &fakeLTC4015Bus{regs: map[byte]uint16{
		0x43: 0x0000, // CHEM_CELLS: Li-ion programmable variant, 0 cells strapped
	}}
}

func (f *fakeLTC4015Bus) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case len(w) == 1 && len(r) == 2:
		v := f.regs[w[0]]
		r[0] = byte(v)
		r[1] = byte(v >> 8)
	case len(w) == 3 && r == nil:
		f.regs[w[0]] = uint16(w[1]) | uint16(w[2])<<8
	}
	return nil
}

// fakeTypecController stands in for a PD-silicon driver (e.g. a
// TPS6699x) on a single port: it never reports a real port event in
// this demo, only what main drives by hand through setStatus.
type fakeTypecController struct {
	mu     sync.Mutex
	status typec.PortStatus
	events chan typec.PortEventFlags
}

func newFakeTypecController() *fakeTypecController {
	return &fakeTypecController{events: make(chan typec.PortEventFlags, 4)}
}

func (c *fakeTypecController) NumPorts() int { return 1 }

func (c *fakeTypecController) WaitPortEvent(ctx context.Context) (typec.PortEventFlags, error) {
	select {
	case f := <-c.events:
		return f, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *fakeTypecController) ClearPortEvents(port typec.LocalPortId) (typec.PortEventKind, error) {
	return typec.PortEventKind(0), nil
}

func (c *fakeTypecController) GetPortStatus(port typec.LocalPortId) (typec.PortStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *fakeTypecController) EnableSinkPath(port typec.LocalPortId, enable bool) error {
	xlog.Debugf("ecsim.typec", "port %d sink path enable=%v", port, enable)
	return nil
}

func (c *fakeTypecController) SetSourceCurrent(port typec.LocalPortId, level typec.SourceCurrent, signal bool) error {
	xlog.Debugf("ecsim.typec", "port %d source current=%v signal=%v", port, level, signal)
	return nil
}

func (c *fakeTypecController) SetSourcing(port typec.LocalPortId, enable bool) error {
	xlog.Debugf("ecsim.typec", "port %d sourcing=%v", port, enable)
	return nil
}

func (c *fakeTypecController) RequestPRSwap(port typec.LocalPortId, role typec.PowerRole) error {
	xlog.Debugf("ecsim.typec", "port %d power-role swap request=%v", port, role)
	return nil
}

// setStatus publishes a new cached status and wakes the port event loop.
// ClearPortEvents reports no event kinds, so the wrapper does not act on
// the new status.
func (c *fakeTypecController) setStatus(st typec.PortStatus, flags typec.PortEventFlags) {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
	select {
	case c.events <- flags:
	default:
	}
}

// fakeCFUWriter is the storage side of one updatable component; this
// demo never actually receives update content, so it only logs.
type fakeCFUWriter struct {
	name string
}

func (w *fakeCFUWriter) WriteContent(cmd cfu.ContentCommand) error {
	xlog.Debugf("ecsim.cfu", "%s: write_content seq=%d len=%d", w.name, cmd.SequenceNum, len(cmd.Data))
	return nil
}

func (w *fakeCFUWriter) PrepareForUpdate() error {
	xlog.Debugf("ecsim.cfu", "%s: prepare_for_update", w.name)
	return nil
}

func (w *fakeCFUWriter) FinalizeUpdate() error {
	xlog.Debugf("ecsim.cfu", "%s: finalize_update", w.name)
	return nil
}

// fakeHIDBus stands in for the target-side I2C engine the HID bridge
// drives; no host is attached in this demo, so NextTransaction simply
// blocks until shutdown rather than fabricating host traffic.
type fakeHIDBus struct{}

func (fakeHIDBus) NextTransaction(ctx context.Context) (hid.TransactionKind, uint16, error) {
	<-ctx.Done()
	return 0, 0, ctx.Err()
}

func (fakeHIDBus) ReadWord(ctx context.Context) (uint16, error) { <-ctx.Done(); return 0, ctx.Err() }
func (fakeHIDBus) ReadByte(ctx context.Context) (byte, error)   { <-ctx.Done(); return 0, ctx.Err() }

func (fakeHIDBus) ReadPayload(ctx context.Context, n int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (fakeHIDBus) WriteResponse(ctx context.Context, payload []byte) error {
	return nil
}

// fakeHIDLines stands in for the hw.GPIOPin pair the interrupt bridge
// toggles.
type fakeHIDLines struct{}

func (fakeHIDLines) SetHostLine(asserted bool) {
	xlog.Debugf("ecsim.hid", "host interrupt line asserted=%v", asserted)
}

func (fakeHIDLines) ClearDeviceLine() {
	xlog.Debugf("ecsim.hid", "device interrupt line cleared")
}

// waitOrDone sleeps for d unless ctx is cancelled first, returning false
// in that case.
func waitOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
