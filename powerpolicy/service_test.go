package powerpolicy

import (
	"context"
	"testing"
	"time"

	"github.com/jangala-dev/ecfw-core/comms"
)

// fakeController services a Device's deferred channel by Acking every
// request, as a real typec.Wrapper would for a healthy port.
func fakeController(t *testing.T, d *Device, stop <-chan struct{}) {
	t.Helper()
	for {
		select {
		case <-stop:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		req, err := d.Channel().Receive(ctx)
		cancel()
		if err != nil {
			continue
		}
		req.Respond(DeviceResponse{})
	}
}

type batteryRecorder struct {
	msgs []comms.Message
}

func (r *batteryRecorder) Deliver(msg comms.Message) { r.msgs = append(r.msgs, msg) }

func TestConsumerHandover(t *testing.T) {
	fabric := comms.NewFabric()
	var battery batteryRecorder
	fabric.RegisterEndpoint(comms.Internal(comms.KindBattery), &battery)

	svc := NewService(fabric, ProviderPolicy{
		LowPower:            PowerCapability{VoltageMV: 5000, CurrentMA: 500},
		HighPower:           PowerCapability{VoltageMV: 5000, CurrentMA: 1500},
		ThresholdMW:         15000,
		MaxRecoveryAttempts: 3,
	})

	d0 := NewDevice(0, 100*time.Millisecond, false)
	d1 := NewDevice(1, 100*time.Millisecond, false)
	if err := svc.RegisterDevice(d0); err != nil {
		t.Fatalf("register d0: %v", err)
	}
	if err := svc.RegisterDevice(d1); err != nil {
		t.Fatalf("register d1: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go fakeController(t, d0, stop)
	go fakeController(t, d1, stop)

	if err := svc.Attach(d0); err != nil {
		t.Fatalf("attach d0: %v", err)
	}
	cap0 := PowerCapability{VoltageMV: 5000, CurrentMA: 1500} // 7500 mW
	svc.NotifyConsumerPowerCapability(d0, &cap0)

	if d0.State() != ConnectedConsumer {
		t.Fatalf("d0 state = %v, want ConnectedConsumer", d0.State())
	}

	if err := svc.Attach(d1); err != nil {
		t.Fatalf("attach d1: %v", err)
	}
	cap1 := PowerCapability{VoltageMV: 5000, CurrentMA: 3000} // 15000 mW
	svc.NotifyConsumerPowerCapability(d1, &cap1)

	if d1.State() != ConnectedConsumer {
		t.Fatalf("d1 state = %v, want ConnectedConsumer", d1.State())
	}
	if d0.State() != Idle {
		t.Fatalf("d0 state = %v, want Idle after handover", d0.State())
	}

	if len(battery.msgs) != 3 {
		t.Fatalf("battery got %d messages, want 3: %+v", len(battery.msgs), battery.msgs)
	}
	first, ok := comms.As[ConsumerConnected](battery.msgs[0].Data)
	if !ok || first.DeviceID != d0.ID() {
		t.Fatalf("first message = %+v, want ConsumerConnected(d0)", battery.msgs[0])
	}
	disc, ok := comms.As[ConsumerDisconnected](battery.msgs[1].Data)
	if !ok || disc.DeviceID != d0.ID() {
		t.Fatalf("second message = %+v, want ConsumerDisconnected(d0)", battery.msgs[1])
	}
	conn, ok := comms.As[ConsumerConnected](battery.msgs[2].Data)
	if !ok || conn.DeviceID != d1.ID() || conn.Capability != cap1 {
		t.Fatalf("third message = %+v, want ConsumerConnected(d1, %+v)", battery.msgs[2], cap1)
	}
}

func TestInvalidTransitionSurfacesInvalidState(t *testing.T) {
	fabric := comms.NewFabric()
	svc := NewService(fabric, ProviderPolicy{
		LowPower: PowerCapability{VoltageMV: 5000, CurrentMA: 500},
	})
	d := NewDevice(0, 50*time.Millisecond, false)
	if err := svc.RegisterDevice(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	// d is Detached; disconnecting it is illegal.
	if err := svc.Disconnect(d); err == nil {
		t.Fatal("Disconnect on Detached device should fail")
	}
}
