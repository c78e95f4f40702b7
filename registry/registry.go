// Package registry implements the intrusive, statically-built registry
// used to bind long-lived objects (endpoints, PD controllers,
// power-policy devices, fuel gauges, CFU components, reset blockers)
// into per-destination lists without heap churn after registration.
//
// A Node lives embedded inside the object that owns it. Registration is
// once-only and permanent: there is no removal, matching the firmware
// convention that every registered object has process-wide lifetime.
package registry

import (
	"sync"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

// Node is embedded in the struct being registered. It must not be copied
// once registered.
type Node[T any] struct {
	value      T
	next       *Node[T]
	seq        uint64
	registered bool
}

// Seq returns the node's registration sequence number, valid only after
// Register succeeds. Used to break ties by registration order (oldest
// first) independent of a list's walk order.
func (n *Node[T]) Seq() uint64 { return n.seq }

// List is a singly-linked, prepend-only registry of *Node[T].
type List[T any] struct {
	mu   sync.Mutex
	head *Node[T]
	next uint64
}

// Register binds value into node and prepends node to the list. It
// returns ecerr.NodeAlreadyInList if node is already registered anywhere
// — re-registration is a programmer error, not a recoverable one, but
// the fabric-facing callers (CFU component registration) need an error
// return rather than a panic, so this returns rather than calls
// ecerr.Fatalf; callers for whom duplicate registration is truly a bug
// (buffer/comms internals) should panic on a non-nil return themselves.
func (l *List[T]) Register(node *Node[T], value T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if node.registered {
		return ecerr.NodeAlreadyInList
	}
	node.value = value
	node.registered = true
	node.seq = l.next
	l.next++
	node.next = l.head
	l.head = node
	return nil
}

// Each walks the list head-to-tail, which is most-recently-registered
// first (reverse registration order), invoking fn(seq, value) for each
// node until fn returns false. The list may grow concurrently with a
// walk in progress (nodes are only ever prepended, never reordered or
// removed), so Each takes no lock while iterating.
func (l *List[T]) Each(fn func(seq uint64, value T) bool) {
	l.mu.Lock()
	n := l.head
	l.mu.Unlock()
	for n != nil {
		if !fn(n.seq, n.value) {
			return
		}
		n = n.next
	}
}

// Len reports the number of registered nodes.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.next)
}

// Oldest returns, among the registered values for which keep returns
// true, the one that better ranks highest, along with its sequence
// number; ties go to the lowest sequence number (the oldest
// registration). ok is false if no value satisfies keep. This is the shape the
// power-policy consumer-selection algorithm needs: "walk all devices,
// pick the maximal one, break ties by registration order."
func Oldest[T any](l *List[T], better func(candidate, current T) bool, keep func(T) bool) (value T, seq uint64, ok bool) {
	l.Each(func(s uint64, v T) bool {
		if !keep(v) {
			return true
		}
		if !ok || better(v, value) || (!better(value, v) && s < seq) {
			value, seq, ok = v, s, true
		}
		return true
	})
	return
}
