package resetblock

import (
	"context"
	"testing"
	"time"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

func TestResetWaitsForEveryBlockerBeforeResetting(t *testing.T) {
	var resetCalled bool
	sys := NewSystem(func() { resetCalled = true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	a := NewBlocker("a")
	b := NewBlocker("b")
	if err := sys.Register(a); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := sys.Register(b); err != nil {
		t.Fatalf("Register b: %v", err)
	}

	done := make(chan struct{}, 2)
	go func() {
		a.WaitForReset(ctx, func(context.Context) { order = append(order, "a") })
		done <- struct{}{}
	}()
	go func() {
		b.WaitForReset(ctx, func(context.Context) { order = append(order, "b") })
		done <- struct{}{}
	}()

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	if err := sys.Reset(rctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	<-done
	<-done

	if !resetCalled {
		t.Fatal("reset hook was not invoked")
	}
	if len(order) != 2 {
		t.Fatalf("order = %v, want both blockers to have run", order)
	}
}

func TestResetTimesOutWhenABlockerNeverAcknowledges(t *testing.T) {
	sys := NewSystem(func() { t.Fatal("reset hook must not run when a blocker never acknowledges") })

	stuck := NewBlocker("stuck")
	if err := sys.Register(stuck); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// stuck never calls WaitForReset, so it never drains its pending
	// channel or signals done.

	rctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sys.Reset(rctx)
	if !ecerr.Is(err, ecerr.ContextTimeout) {
		t.Fatalf("err = %v, want ContextTimeout", err)
	}
}

func TestRegisterRejectsDoubleRegistration(t *testing.T) {
	sys := NewSystem(func() {})
	b := NewBlocker("dup")

	if err := sys.Register(b); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := sys.Register(b); !ecerr.Is(err, ecerr.NodeAlreadyInList) {
		t.Fatalf("err = %v, want NodeAlreadyInList", err)
	}
}

func TestWaitForResetReturnsEarlyOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBlocker("cancelled")

	done := make(chan struct{})
	go func() {
		b.WaitForReset(ctx, func(context.Context) { t.Error("beforeReset must not run") })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForReset did not return after context cancellation")
	}
}
