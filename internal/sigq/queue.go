//go:build unix

package sigq

import (
	"os"
	"sync"
)

// Insert links e into the ring after prev, or at the head when prev is nil.
// It resets the element's child bookkeeping, marks it as taking the reaper
// path and creates its private lock. The child signal is held for the whole
// call so the reaper never walks a half-linked ring.
func (s *Supervisor) Insert(e, prev *Element) error {
	if e == nil {
		return ErrNilElement
	}
	s.mask.hold()
	defer s.mask.release()

	e.child = 0
	e.reaped = 0
	e.status = 0
	e.reaper = true
	e.pipes = [2]*os.File{}
	e.owner = threadID()
	e.mu = &sync.Mutex{}
	e.cond = sync.NewCond(e.mu)
	s.ring.link(e, prev)

	s.log.Debug().Int("owner", e.owner).Msg("insert")
	return nil
}

// Remove unlinks e, drops its lock, closes any handshake pipe ends still
// open and clears the child bookkeeping. The outcome of the last wait stays
// available through Last. Removing an element that was never inserted is
// caller misuse.
func (s *Supervisor) Remove(e *Element) error {
	if e == nil {
		return ErrNilElement
	}
	s.mask.hold()
	defer s.mask.release()

	s.ring.unlink(e)
	e.cond = nil
	e.mu = nil
	e.closePipes()
	s.log.Debug().Int("child", e.child).Int("reaped", e.reaped).Msg("remove")
	e.owner = 0
	e.child = 0
	e.reaped = 0
	e.status = 0
	return nil
}
