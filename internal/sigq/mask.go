package sigq

import "sync"

// sigmask blocks delivery of the child signal the way sighold/sigrelse do.
// Holds nest. A delivery arriving while any hold is outstanding is recorded
// as pending and runs on the goroutine that drops the last hold. A delivery
// in progress keeps new holds waiting until it returns, so the callback
// never observes state a holder is mutating.
type sigmask struct {
	mu      sync.Mutex
	cond    *sync.Cond
	depth   int
	pending func()
	// gen counts completed deliveries; pause waits for it to move.
	gen uint64
}

func newSigmask() *sigmask {
	m := &sigmask{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *sigmask) hold() {
	m.mu.Lock()
	m.depth++
	m.mu.Unlock()
}

func (m *sigmask) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		return
	}
	m.depth--
	m.flushLocked()
}

// deliver runs fn now, or defers it until the mask is released. Only the
// latest pending callback is kept: deliveries coalesce like a real signal.
func (m *sigmask) deliver(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth > 0 {
		m.pending = fn
		return
	}
	m.runLocked(fn)
}

// pause drops one hold, waits for the next delivery to complete and takes
// the hold back. The caller must hold the mask.
func (m *sigmask) pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.gen
	if m.depth > 0 {
		m.depth--
	}
	m.flushLocked()
	for m.gen == gen {
		m.cond.Wait()
	}
	m.depth++
}

func (m *sigmask) held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth > 0
}

func (m *sigmask) flushLocked() {
	if m.depth == 0 && m.pending != nil {
		fn := m.pending
		m.pending = nil
		m.runLocked(fn)
	}
}

func (m *sigmask) runLocked(fn func()) {
	fn()
	m.gen++
	m.cond.Broadcast()
}
