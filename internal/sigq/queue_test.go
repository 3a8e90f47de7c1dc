//go:build unix

package sigq

import (
	"errors"
	"testing"
)

func assertRingClosed(t *testing.T, s *Supervisor, want ...*Element) {
	t.Helper()
	got := s.Tracked()
	if len(got) != len(want) {
		t.Fatalf("ring has %d elements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ring position %d holds unexpected element", i)
		}
	}

	head := &s.ring.head
	if len(want) == 0 {
		if !s.ring.empty() {
			t.Fatalf("empty ring must point back at the sentinel")
		}
		return
	}
	// Walk backwards as well to check the prev links close the ring.
	e := head.prev
	for i := len(want) - 1; i >= 0; i-- {
		if e != want[i] {
			t.Fatalf("backward walk mismatch at %d", i)
		}
		e = e.prev
	}
	if e != head {
		t.Fatalf("backward walk did not return to the sentinel")
	}
}

func TestInsertRejectsNil(t *testing.T) {
	s := New()
	if err := s.Insert(nil, nil); !errors.Is(err, ErrNilElement) {
		t.Fatalf("expected ErrNilElement, got %v", err)
	}
	if err := s.Remove(nil); !errors.Is(err, ErrNilElement) {
		t.Fatalf("expected ErrNilElement, got %v", err)
	}
}

func TestInsertInitializesElement(t *testing.T) {
	s := New()
	e := NewElement([]string{"/bin/true"}, WithDirectWait())
	e.child, e.reaped, e.status = 42, 41, 7

	if err := s.Insert(e, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if e.child != 0 || e.reaped != 0 || e.status != 0 {
		t.Fatalf("insert did not reset child bookkeeping: child=%d reaped=%d status=%d", e.child, e.reaped, e.status)
	}
	if !e.Tracked() {
		t.Fatalf("insert must mark the element as taking the reaper path")
	}
	if e.mu == nil || e.cond == nil {
		t.Fatalf("insert must create the element lock")
	}
	if e.Owner() == 0 {
		t.Fatalf("expected owning thread to be recorded")
	}

	if err := s.Remove(e); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if e.mu != nil || e.cond != nil {
		t.Fatalf("remove must drop the element lock")
	}
	assertRingClosed(t, s)
}

func TestRingOrderAcrossInsertAndRemove(t *testing.T) {
	s := New()
	a := NewElement([]string{"/bin/true"})
	b := NewElement([]string{"/bin/true"})
	c := NewElement([]string{"/bin/true"})
	d := NewElement([]string{"/bin/true"})

	assertRingClosed(t, s)

	// Appending after the previous element keeps insertion order.
	if err := s.Insert(a, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(b, a); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(c, b); err != nil {
		t.Fatal(err)
	}
	assertRingClosed(t, s, a, b, c)

	// A nil predecessor places the element at the head.
	if err := s.Insert(d, nil); err != nil {
		t.Fatal(err)
	}
	assertRingClosed(t, s, d, a, b, c)

	if err := s.Remove(b); err != nil {
		t.Fatal(err)
	}
	assertRingClosed(t, s, d, a, c)

	if err := s.Remove(d); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(c); err != nil {
		t.Fatal(err)
	}
	assertRingClosed(t, s, a)

	if err := s.Remove(a); err != nil {
		t.Fatal(err)
	}
	assertRingClosed(t, s)

	if got := len(s.Tracked()); got != 0 {
		t.Fatalf("expected empty ring, got %d elements", got)
	}
}

func TestRemoveClosesHandshakePipes(t *testing.T) {
	s := New()
	e := NewElement([]string{"/bin/true"})
	if err := s.Insert(e, nil); err != nil {
		t.Fatal(err)
	}
	r, w, err := pipeForTest(t)
	if err != nil {
		t.Fatal(err)
	}
	e.pipes[0], e.pipes[1] = r, w

	if err := s.Remove(e); err != nil {
		t.Fatal(err)
	}
	if e.pipes[0] != nil || e.pipes[1] != nil {
		t.Fatalf("remove must clear pipe ends")
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Fatalf("expected write end to be closed")
	}
}
