package hid

import "testing"

type fakeLines struct {
	hostAsserted bool
	deviceClears int
}

func (f *fakeLines) SetHostLine(asserted bool) { f.hostAsserted = asserted }
func (f *fakeLines) ClearDeviceLine()          { f.deviceClears++ }

func TestInterruptBridgeFullCycle(t *testing.T) {
	lines := &fakeLines{}
	b := NewInterruptBridge(lines)

	b.OnDeviceAssert()
	if b.State() != InterruptAsserted || !lines.hostAsserted {
		t.Fatalf("expected Asserted with host line up, got state=%v hostAsserted=%v", b.State(), lines.hostAsserted)
	}

	b.OnHostRequestReceived()
	if b.State() != InterruptWaiting || lines.hostAsserted {
		t.Fatalf("expected Waiting with host line down, got state=%v hostAsserted=%v", b.State(), lines.hostAsserted)
	}

	b.OnHostResponseSent()
	if b.State() != InterruptIdle || lines.deviceClears != 1 {
		t.Fatalf("expected Idle with device line cleared once, got state=%v clears=%d", b.State(), lines.deviceClears)
	}
}

func TestSecondAssertWhileInFlightIsDropped(t *testing.T) {
	lines := &fakeLines{}
	b := NewInterruptBridge(lines)

	b.OnDeviceAssert()
	b.OnDeviceAssert() // dropped: already Asserted
	if b.State() != InterruptAsserted {
		t.Fatalf("state = %v, want Asserted (second assert must be a no-op)", b.State())
	}
}

func TestResetClearsBothLinesAndReturnsToIdle(t *testing.T) {
	lines := &fakeLines{}
	b := NewInterruptBridge(lines)
	b.OnDeviceAssert()

	b.Reset()
	if b.State() != InterruptIdle {
		t.Fatalf("state = %v, want Idle after reset", b.State())
	}
	if lines.hostAsserted {
		t.Fatalf("host line should be deasserted after reset")
	}
	if lines.deviceClears != 1 {
		t.Fatalf("device line should be cleared once by reset, got %d", lines.deviceClears)
	}
}
