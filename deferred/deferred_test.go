package deferred

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestExecuteReceiveRoundTrip(t *testing.T) {
	ch := NewChannel[string, int]()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := ch.Receive(ctx)
		if err != nil {
			t.Errorf("Receive: %v", err)
			return
		}
		if req.Command() != "ping" {
			t.Errorf("Command() = %q, want ping", req.Command())
		}
		req.Respond(7)
	}()

	got, err := ch.Execute(ctx, "ping")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != 7 {
		t.Fatalf("Execute result = %d, want 7", got)
	}
	<-done
}

func TestExecuteIsFIFOUnderConcurrentIssuers(t *testing.T) {
	ch := NewChannel[int, int]()
	ctx := context.Background()

	const n = 20
	var order []int
	var mu sync.Mutex

	responder := make(chan struct{})
	go func() {
		defer close(responder)
		for i := 0; i < n; i++ {
			req, err := ch.Receive(ctx)
			if err != nil {
				t.Errorf("Receive: %v", err)
				return
			}
			mu.Lock()
			order = append(order, req.Command())
			mu.Unlock()
			req.Respond(req.Command())
		}
	}()

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := ch.Execute(ctx, i)
			if err != nil {
				t.Errorf("Execute(%d): %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()
	<-responder

	for i, v := range results {
		if v != i {
			t.Fatalf("results[%d] = %d, want %d", i, v, i)
		}
	}
	if len(order) != n {
		t.Fatalf("responder saw %d requests, want %d", len(order), n)
	}
}

func TestExecuteCancelledResponseDiscardedByNextCaller(t *testing.T) {
	ch := NewChannel[string, string]()

	ctx1, cancel1 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel1()

	req1done := make(chan struct{})
	var req1 Request[string, string]
	go func() {
		defer close(req1done)
		var err error
		req1, err = ch.Receive(context.Background())
		if err != nil {
			t.Errorf("Receive req1: %v", err)
		}
	}()

	if _, err := ch.Execute(ctx1, "first"); err == nil {
		t.Fatal("Execute should have timed out waiting for a response")
	}
	<-req1done

	// req1's response arrives late; it must not be handed to a fresh
	// Execute call waiting for its own, differently-ID'd response.
	go req1.Respond("stale")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req2, err := ch.Receive(context.Background())
		if err != nil {
			t.Errorf("Receive req2: %v", err)
			return
		}
		req2.Respond("fresh")
	}()

	got, err := ch.Execute(ctx2, "second")
	if err != nil {
		t.Fatalf("Execute(second): %v", err)
	}
	if got != "fresh" {
		t.Fatalf("Execute(second) = %q, want %q (stale response must be discarded)", got, "fresh")
	}
	<-done
}
