package cfu

import (
	"context"
	"testing"
	"time"

	"github.com/jangala-dev/ecfw-core/bus"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

type fakeWriter struct {
	written        []ContentCommand
	writeErr       error
	prepareErr     error
	finalizeErr    error
	prepareCalled  bool
	finalizeCalled bool
}

func (w *fakeWriter) WriteContent(cmd ContentCommand) error {
	w.written = append(w.written, cmd)
	return w.writeErr
}
func (w *fakeWriter) PrepareForUpdate() error { w.prepareCalled = true; return w.prepareErr }
func (w *fakeWriter) FinalizeUpdate() error   { w.finalizeCalled = true; return w.finalizeErr }

func newTestService(t *testing.T) (*Service, context.Context, context.CancelFunc) {
	t.Helper()
	b := bus.NewBus(4)
	svc := NewService(b)
	svc.routeTimeout = 200 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	return svc, ctx, cancel
}

func TestRouteRequestToUnregisteredComponentIsInvalidComponent(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	_, err := svc.RouteRequest(ctx, 7, Request{Kind: ReqFwVersion})
	if !ecerr.Is(err, ecerr.InvalidComponent) {
		t.Fatalf("err = %v, want InvalidComponent", err)
	}
}

func TestFwVersionRequestReturnsComponentVersion(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	w := &fakeWriter{}
	c := NewComponent(1, FwVersion{Major: 2, Minor: 3}, FwVersion{}, w)
	if err := svc.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go svc.Run(ctx, c)

	resp, err := svc.RouteRequest(ctx, 1, Request{Kind: ReqFwVersion})
	if err != nil {
		t.Fatalf("RouteRequest: %v", err)
	}
	if resp.Version != (FwVersion{Major: 2, Minor: 3}) {
		t.Fatalf("version = %+v", resp.Version)
	}
}

func TestFwVersionFanOutSubstitutesDefaultOnSubcomponentFailure(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	primary := NewComponent(1, FwVersion{Major: 1}, FwVersion{}, &fakeWriter{})
	primary.SetSubcomponents([]ComponentId{2, 3})

	sub2 := NewComponent(2, FwVersion{Major: 2}, FwVersion{Major: 9, Minor: 9}, &fakeWriter{})
	// component 3 is declared as a subcomponent but never registered,
	// modeling an unreachable subcomponent.

	if err := svc.Register(primary); err != nil {
		t.Fatalf("Register(primary): %v", err)
	}
	if err := svc.Register(sub2); err != nil {
		t.Fatalf("Register(sub2): %v", err)
	}
	go svc.Run(ctx, primary)
	go svc.Run(ctx, sub2)

	resp, err := svc.RouteRequest(ctx, 1, Request{Kind: ReqFwVersion})
	if err != nil {
		t.Fatalf("RouteRequest: %v", err)
	}
	if resp.Version != (FwVersion{Major: 1}) {
		t.Fatalf("primary version = %+v", resp.Version)
	}
	if len(resp.Subcomps) != 2 {
		t.Fatalf("subcomps = %+v, want 2 entries", resp.Subcomps)
	}
	if resp.Subcomps[0].Component != 2 || resp.Subcomps[0].Version != (FwVersion{Major: 2}) {
		t.Fatalf("subcomps[0] = %+v", resp.Subcomps[0])
	}
	if resp.Subcomps[1].Component != 3 || resp.Subcomps[1].Version != (FwVersion{}) {
		t.Fatalf("subcomps[1] = %+v, want zero-value default for unreachable component", resp.Subcomps[1])
	}
}

func TestGiveOfferMismatchedTargetGetsNoReply(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	c := NewComponent(5, FwVersion{}, FwVersion{}, &fakeWriter{})
	if err := svc.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go svc.Run(ctx, c)

	rctx, rcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer rcancel()
	_, err := svc.RouteRequest(rctx, 5, Request{Kind: ReqGiveOffer, Offer: Offer{TargetComponent: 6}})
	if !ecerr.Is(err, ecerr.DeviceTimeout) {
		t.Fatalf("err = %v, want DeviceTimeout (no reply sent for mismatched offer target)", err)
	}
}

func TestGiveOfferMatchingTargetIsAccepted(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	c := NewComponent(5, FwVersion{}, FwVersion{}, &fakeWriter{})
	if err := svc.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go svc.Run(ctx, c)

	resp, err := svc.RouteRequest(ctx, 5, Request{Kind: ReqGiveOffer, Offer: Offer{TargetComponent: 5}})
	if err != nil {
		t.Fatalf("RouteRequest: %v", err)
	}
	if resp.OfferRes != OfferAccepted {
		t.Fatalf("OfferRes = %v, want OfferAccepted", resp.OfferRes)
	}
}

func TestGiveContentWritesThroughWriter(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	w := &fakeWriter{}
	c := NewComponent(9, FwVersion{}, FwVersion{}, w)
	if err := svc.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go svc.Run(ctx, c)

	cmd := ContentCommand{SequenceNum: 1, Address: 0x1000, Data: []byte{0xDE, 0xAD}}
	resp, err := svc.RouteRequest(ctx, 9, Request{Kind: ReqGiveContent, Content: cmd})
	if err != nil {
		t.Fatalf("RouteRequest: %v", err)
	}
	if resp.ContentRes != ContentAccepted {
		t.Fatalf("ContentRes = %v, want ContentAccepted", resp.ContentRes)
	}
	if len(w.written) != 1 || w.written[0].Address != 0x1000 {
		t.Fatalf("written = %+v", w.written)
	}
}

func TestPrepareAndFinalizeInvokeWriterHooks(t *testing.T) {
	svc, ctx, cancel := newTestService(t)
	defer cancel()

	w := &fakeWriter{}
	c := NewComponent(3, FwVersion{}, FwVersion{}, w)
	if err := svc.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go svc.Run(ctx, c)

	if _, err := svc.RouteRequest(ctx, 3, Request{Kind: ReqPrepareForUpdate}); err != nil {
		t.Fatalf("RouteRequest(prepare): %v", err)
	}
	if !w.prepareCalled {
		t.Fatal("expected PrepareForUpdate to be called")
	}

	if _, err := svc.RouteRequest(ctx, 3, Request{Kind: ReqFinalizeUpdate}); err != nil {
		t.Fatalf("RouteRequest(finalize): %v", err)
	}
	if !w.finalizeCalled {
		t.Fatal("expected FinalizeUpdate to be called")
	}
}
