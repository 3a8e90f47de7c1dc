//go:build unix

package sigq

import "sync"

// ring is a circular doubly linked list of elements with a permanent
// sentinel. Mutators hold the child-signal mask for the whole mutation; that
// is the only exclusion against the reaper, which walks the ring without
// taking mu. mu orders mutators among themselves.
type ring struct {
	mu   sync.Mutex
	head Element
}

func newRing() *ring {
	r := &ring{}
	r.head.next = &r.head
	r.head.prev = &r.head
	return r
}

// link places e after prev, or at the head when prev is nil or unlinked.
func (r *ring) link(e, prev *Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil || !prev.linked {
		prev = &r.head
	}
	e.prev = prev
	e.next = prev.next
	prev.next.prev = e
	prev.next = e
	e.linked = true
}

func (r *ring) unlink(e *Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !e.linked {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	e.linked = false
}

// find returns the first linked element forked as pid. Callers must hold
// the mask or be running as the delivery callback.
func (r *ring) find(pid int) *Element {
	for e := r.head.next; e != nil && e != &r.head; e = e.next {
		if e.child == pid {
			return e
		}
	}
	return nil
}

// each visits linked elements from the head under the same rules as find.
func (r *ring) each(fn func(*Element) bool) {
	for e := r.head.next; e != nil && e != &r.head; e = e.next {
		if !fn(e) {
			return
		}
	}
}

func (r *ring) empty() bool {
	return r.head.next == &r.head && r.head.prev == &r.head
}

// snapshot lists linked elements in ring order.
func (r *ring) snapshot() []*Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Element
	r.each(func(e *Element) bool {
		out = append(out, e)
		return true
	})
	return out
}
