// Package buffer gives a statically allocated backing slice dynamic
// borrow discipline: at any moment a Buffer has either zero handles, one
// mutable handle, or N immutable handles outstanding. It is the
// primitive that lets a fixed-size array be threaded through
// asynchronous producers and consumers (the HID bridge's shared scratch
// area) without a global lock.
//
// Grounded on x/shmring's span-acquire/release bookkeeping, generalized
// from an atomic byte-ring index pair to a typed single-slot borrow
// counter: the ring's "producer/consumer never overlap" discipline
// becomes "one mutable handle xor many immutable handles."
//
// Guards carry no concurrency primitive of their own. Correctness relies
// on the single-threaded cooperative scheduling model described in
// spec §5; a violation is a lost invariant, not a recoverable race, so
// it panics via ecerr.Fatalf rather than returning an error.
package buffer

import "github.com/jangala-dev/ecfw-core/internal/ecerr"

// Buffer owns a fixed backing slice and its current borrow state.
type Buffer[T any] struct {
	data    []T
	mutable bool
	shared  int
}

// New wraps an existing, statically allocated backing slice.
func New[T any](backing []T) *Buffer[T] {
	return &Buffer[T]{data: backing}
}

// Len reports the backing slice's length.
func (b *Buffer[T]) Len() int { return len(b.data) }

// BorrowMut obtains the mutable guard. Panics if any borrow (mutable or
// immutable) is outstanding.
func (b *Buffer[T]) BorrowMut() *OwnedRef[T] {
	if b.mutable {
		ecerr.Fatalf("buffer", "borrow_mut: mutable borrow already outstanding")
	}
	if b.shared > 0 {
		ecerr.Fatalf("buffer", "borrow_mut: %d immutable borrow(s) outstanding", b.shared)
	}
	b.mutable = true
	return &OwnedRef[T]{buf: b}
}

// Borrow obtains an immutable guard. Panics if a mutable borrow is
// outstanding; otherwise coexists with any number of other immutable
// guards via a counter.
func (b *Buffer[T]) Borrow() *SharedRef[T] {
	if b.mutable {
		ecerr.Fatalf("buffer", "borrow: mutable borrow outstanding")
	}
	b.shared++
	return &SharedRef[T]{buf: b, start: 0, end: len(b.data)}
}

// OwnedRef is the mutable handle. Release must be called exactly once;
// calling it twice panics (an un-matched release is an iteration-
// invalidation-class bug per §7).
type OwnedRef[T any] struct {
	buf      *Buffer[T]
	released bool
}

// Slice returns the full backing slice for mutation.
func (o *OwnedRef[T]) Slice() []T {
	if o.released {
		ecerr.Fatalf("buffer", "use of owned ref after release")
	}
	return o.buf.data
}

// Release drops the mutable borrow.
func (o *OwnedRef[T]) Release() {
	if o.released {
		ecerr.Fatalf("buffer", "owned ref released twice")
	}
	o.released = true
	o.buf.mutable = false
}

// SharedRef is an immutable, clonable, slice-able handle. Release must be
// called exactly once per handle obtained from Borrow, Clone, or Sub.
type SharedRef[T any] struct {
	buf        *Buffer[T]
	start, end int
	released   bool
}

// Data returns this view's slice of the backing data.
func (s *SharedRef[T]) Data() []T {
	if s.released {
		ecerr.Fatalf("buffer", "use of shared ref after release")
	}
	return s.buf.data[s.start:s.end]
}

func (s *SharedRef[T]) Len() int { return s.end - s.start }

// Clone obtains another immutable handle over the same range, bumping
// the shared-borrow counter.
func (s *SharedRef[T]) Clone() *SharedRef[T] {
	if s.released {
		ecerr.Fatalf("buffer", "clone of released shared ref")
	}
	s.buf.shared++
	return &SharedRef[T]{buf: s.buf, start: s.start, end: s.end}
}

// Sub creates a narrower shared view over [a, b) of this view's range,
// bumping the shared-borrow counter. It is a caller-input error (not a
// programmer-contract violation) to request a < len(view) && b <=
// len(view) outside those bounds, or a > b.
func (s *SharedRef[T]) Sub(a, b int) (*SharedRef[T], error) {
	if s.released {
		ecerr.Fatalf("buffer", "slice of released shared ref")
	}
	n := s.Len()
	if a < 0 || b < a || a >= n || b > n {
		return nil, ecerr.InvalidData
	}
	s.buf.shared++
	return &SharedRef[T]{buf: s.buf, start: s.start + a, end: s.start + b}, nil
}

// Release drops one immutable borrow.
func (s *SharedRef[T]) Release() {
	if s.released {
		ecerr.Fatalf("buffer", "shared ref released twice")
	}
	if s.buf.shared <= 0 {
		ecerr.Fatalf("buffer", "shared ref released with no outstanding immutable borrow")
	}
	s.released = true
	s.buf.shared--
}
