package buffer

import "testing"

func mustPanic(t *testing.T, what string) {
	t.Helper()
	if r := recover(); r == nil {
		t.Fatalf("%s: expected panic", what)
	}
}

func TestMutableExcludesMutable(t *testing.T) {
	b := New(make([]byte, 4))
	o1 := b.BorrowMut()
	defer mustPanic(t, "second borrow_mut")
	_ = o1
	b.BorrowMut()
}

func TestMutableExcludesImmutable(t *testing.T) {
	b := New(make([]byte, 4))
	b.BorrowMut()
	defer mustPanic(t, "borrow while mutably borrowed")
	b.Borrow()
}

func TestManyImmutableCoexist(t *testing.T) {
	b := New(make([]byte, 4))
	s1 := b.Borrow()
	s2 := b.Borrow()
	s1.Release()
	s2.Release()
	// Buffer should be free again.
	o := b.BorrowMut()
	o.Release()
}

func TestImmutableExcludesMutable(t *testing.T) {
	b := New(make([]byte, 4))
	s := b.Borrow()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on borrow_mut while immutable outstanding")
		}
		s.Release()
	}()
	b.BorrowMut()
}

func TestOwnedRefSlice(t *testing.T) {
	backing := []byte{1, 2, 3, 4}
	b := New(backing)
	o := b.BorrowMut()
	o.Slice()[0] = 9
	o.Release()
	if backing[0] != 9 {
		t.Fatalf("mutation through OwnedRef.Slice not reflected: %v", backing)
	}
}

func TestSharedSubBounds(t *testing.T) {
	b := New([]byte{0, 1, 2, 3, 4})
	s := b.Borrow()
	defer s.Release()

	sub, err := s.Sub(1, 3)
	if err != nil {
		t.Fatalf("Sub(1,3): %v", err)
	}
	defer sub.Release()
	if got := sub.Data(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Sub(1,3).Data() = %v", got)
	}

	if _, err := s.Sub(5, 5); err == nil {
		t.Fatal("Sub(5,5) should fail: start must be < len")
	}
	if _, err := s.Sub(0, 6); err == nil {
		t.Fatal("Sub(0,6) should fail: end must be <= len")
	}
}

func TestReleaseTwicePanics(t *testing.T) {
	b := New(make([]byte, 2))
	s := b.Borrow()
	s.Release()
	defer mustPanic(t, "double release")
	s.Release()
}
