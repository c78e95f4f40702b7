package comms

import "testing"

type recorder struct {
	msgs []Message
}

func (r *recorder) Deliver(msg Message) { r.msgs = append(r.msgs, msg) }

func TestSendFansOutToAllDelegates(t *testing.T) {
	f := NewFabric()
	var a, b recorder
	f.RegisterEndpoint(Internal(KindBattery), &a)
	f.RegisterEndpoint(Internal(KindBattery), &b)

	f.Send(Internal(KindPower), Internal(KindBattery), 42)

	if len(a.msgs) != 1 || len(b.msgs) != 1 {
		t.Fatalf("fan-out: a=%d b=%d, want 1 each", len(a.msgs), len(b.msgs))
	}
	if v, ok := As[int](a.msgs[0].Data); !ok || v != 42 {
		t.Fatalf("a payload = %v, ok=%v, want 42", v, ok)
	}
}

func TestSendToUnregisteredDestinationIsNoop(t *testing.T) {
	f := NewFabric()
	f.Send(Internal(KindPower), Internal(KindUSBC), struct{}{})
}

func TestAsAcceptsValueOrPointer(t *testing.T) {
	type payload struct{ n int }
	v, ok := As[payload](payload{n: 3})
	if !ok || v.n != 3 {
		t.Fatalf("As(value) = %v, %v", v, ok)
	}
	v, ok = As[payload](&payload{n: 4})
	if !ok || v.n != 4 {
		t.Fatalf("As(pointer) = %v, %v", v, ok)
	}
	if _, ok := As[payload]("wrong type"); ok {
		t.Fatal("As should reject mismatched payload type")
	}
	if _, ok := As[payload](nil); ok {
		t.Fatal("As(nil) should report !ok")
	}
}

func TestOemEndpointsCarryKey(t *testing.T) {
	f := NewFabric()
	var got recorder
	f.RegisterEndpoint(InternalOem(7), &got)
	f.Send(Internal(KindHost), InternalOem(7), "hi")
	f.Send(Internal(KindHost), InternalOem(8), "wrong key")
	if len(got.msgs) != 1 {
		t.Fatalf("oem(7) got %d messages, want 1", len(got.msgs))
	}
}
