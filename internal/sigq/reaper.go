//go:build unix

package sigq

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/metrics"
)

// reap drains terminated children and hands each to the element forked as
// it. Several terminations can coalesce into one delivery, so it keeps
// collecting until nothing is pending. It runs as the child-signal delivery
// callback: it never blocks, never logs and never fails outward.
func (s *Supervisor) reap() {
	if s.mode == ReapAny {
		s.reapAny()
		return
	}
	s.reapTracked()
}

// reapAny collects every terminated child in the process group. A pid no
// element owns is discarded.
func (s *Supervisor) reapAny() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(0, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			// ECHILD, EINTR and friends end the drain.
			return
		}
		if e := s.ring.find(pid); e != nil {
			e.collect(pid, ws)
			metrics.ObserveReaped(metrics.PathReaper)
			continue
		}
		metrics.IncrementUntracked()
	}
}

// reapTracked polls each pending element's own pid, so children started
// elsewhere in the process are left for their owners.
func (s *Supervisor) reapTracked() {
	s.ring.each(func(e *Element) bool {
		if e.child <= 0 || e.reaped == e.child {
			return true
		}
		for {
			var ws unix.WaitStatus
			pid, err := unix.Wait4(e.child, &ws, unix.WNOHANG, nil)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if err == nil && pid == e.child {
				e.collect(pid, ws)
				metrics.ObserveReaped(metrics.PathReaper)
			}
			return true
		}
	})
}
