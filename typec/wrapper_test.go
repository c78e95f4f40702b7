package typec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jangala-dev/ecfw-core/comms"
	"github.com/jangala-dev/ecfw-core/powerpolicy"
)

type fakeNotifier struct {
	mu     sync.Mutex
	marked []GlobalPortId
}

func (f *fakeNotifier) MarkPending(p GlobalPortId) {
	f.mu.Lock()
	f.marked = append(f.marked, p)
	f.mu.Unlock()
}

// fakeController is a single-port controller whose WaitPortEvent returns
// one queued event set at a time, then blocks until ctx is done.
type fakeController struct {
	mu         sync.Mutex
	eventQueue []PortEventFlags
	events     PortEventKind
	status     PortStatus

	prSwapRequested bool
	sinkEnabled     bool
}

func (c *fakeController) NumPorts() int { return 1 }

func (c *fakeController) WaitPortEvent(ctx context.Context) (PortEventFlags, error) {
	for {
		c.mu.Lock()
		if len(c.eventQueue) > 0 {
			f := c.eventQueue[0]
			c.eventQueue = c.eventQueue[1:]
			c.mu.Unlock()
			return f, nil
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (c *fakeController) ClearPortEvents(port LocalPortId) (PortEventKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.events
	c.events = 0
	return e, nil
}

func (c *fakeController) GetPortStatus(port LocalPortId) (PortStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *fakeController) EnableSinkPath(port LocalPortId, enable bool) error {
	c.mu.Lock()
	c.sinkEnabled = enable
	c.mu.Unlock()
	return nil
}

func (c *fakeController) SetSourceCurrent(port LocalPortId, level SourceCurrent, signal bool) error {
	return nil
}

func (c *fakeController) SetSourcing(port LocalPortId, enable bool) error { return nil }

func (c *fakeController) RequestPRSwap(port LocalPortId, role PowerRole) error {
	c.mu.Lock()
	c.prSwapRequested = role == RoleSource
	c.mu.Unlock()
	return nil
}

func TestProviderFallbackPRSwapOnLowPowerDualRole(t *testing.T) {
	fabric := comms.NewFabric()
	policy := powerpolicy.NewService(fabric, powerpolicy.ProviderPolicy{
		LowPower:  powerpolicy.PowerCapability{VoltageMV: 5000, CurrentMA: 500},
		HighPower: powerpolicy.PowerCapability{VoltageMV: 5000, CurrentMA: 1500},
	})

	sinkCap := powerpolicy.PowerCapability{VoltageMV: 5000, CurrentMA: 3000} // 15000 mW
	ctrl := &fakeController{
		events: EventPlugInsertedOrRemoved | EventNewPowerContractAsConsumer,
		status: PortStatus{
			ConnectionPresent:     true,
			DualPower:             true,
			AvailableSinkContract: &sinkCap,
		},
		eventQueue: []PortEventFlags{1},
	}

	notifier := &fakeNotifier{}
	w, err := NewWrapper(0, ctrl, policy, notifier, 0, 50*time.Millisecond, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWrapper: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if !ctrl.prSwapRequested {
		t.Fatal("expected RequestPRSwap(Source) for a low-power dual-role consumer contract")
	}
}
