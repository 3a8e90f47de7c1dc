//go:build unix

package sigq

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/metrics"
	"github.com/Paintersrp/scriptq/internal/stopwatch"
)

// waiter blocks until the reaper has collected e's child. It releases the
// handshake before blocking and accounts the elapsed time.
type waiter interface {
	wait(e *Element) (int, unix.WaitStatus)
}

// condWaiter rendezvouses with the reaper on the element's own lock and
// condition variable.
type condWaiter struct {
	s *Supervisor
}

func (w condWaiter) wait(e *Element) (int, unix.WaitStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closePipes()
	begin := w.s.clock.Now()
	for e.reaped != e.child {
		e.cond.Wait()
	}
	e.elapsed = stopwatch.Diff(w.s.clock.Now(), begin)
	e.cumulative += e.elapsed
	return e.reaped, e.status
}

// suspendWaiter uses the child-signal mask as its lock and suspends until
// the next delivery, for hosts that do not want a lock per element.
type suspendWaiter struct {
	s *Supervisor
}

func (w suspendWaiter) wait(e *Element) (int, unix.WaitStatus) {
	m := w.s.mask
	m.hold()
	defer m.release()

	e.closePipes()
	begin := w.s.clock.Now()
	for e.reaped != e.child {
		m.pause()
	}
	e.elapsed = stopwatch.Diff(w.s.clock.Now(), begin)
	e.cumulative += e.elapsed
	return e.reaped, e.status
}

// Wait releases e's child from its handshake and blocks until the child has
// been reaped, returning the reaped pid.
//
// A tracked element is collected through the reaper and is then removed from
// the ring, dropping the disposition reference ForkTracked took. A
// direct-wait element is collected with a blocking wait4 on its own pid and
// never touches the ring or the disposition table.
func (s *Supervisor) Wait(e *Element) (int, error) {
	if e == nil {
		return -1, ErrNilElement
	}
	s.log.Debug().Int("owner", threadID()).Int("child", e.child).Bool("reaper", e.reaper).Msg("wait")

	var (
		pid    int
		status unix.WaitStatus
		err    error
	)
	if e.reaper {
		pid, status, err = s.waitUnregister(e)
	} else {
		pid, status, err = s.waitDirect(e)
	}
	if proc := e.proc; proc != nil {
		e.proc = nil
		_ = proc.Release()
	}
	e.last = Result{Pid: pid, Status: status, Elapsed: e.elapsed}
	metrics.ObserveWait(e.elapsed)

	s.log.Debug().Int("child", pid).Int("status", decodeStatus(status)).Dur("elapsed", e.elapsed).Msg("fini")
	if err != nil {
		return -1, err
	}
	if pid <= 0 {
		return -1, fmt.Errorf("%w: no child collected", ErrWaitMismatch)
	}
	return pid, nil
}

func (s *Supervisor) waitUnregister(e *Element) (int, unix.WaitStatus, error) {
	if e.mu == nil {
		return -1, 0, ErrNotTracked
	}
	pid, status := s.waiter.wait(e)
	s.log.Debug().Int("child", e.child).Int("reaped", pid).Msg("wake")

	errRemove := s.Remove(e)
	_, errDisable := s.Disable(unix.SIGCHLD, nil)
	return pid, status, errors.Join(errRemove, errDisable)
}

func (s *Supervisor) waitDirect(e *Element) (int, unix.WaitStatus, error) {
	e.closePipes()
	if e.child <= 0 {
		return -1, 0, fmt.Errorf("%w: element has no child", ErrWaitMismatch)
	}

	begin := s.clock.Now()
	var (
		ws  unix.WaitStatus
		pid int
		err error
	)
	for {
		pid, err = unix.Wait4(e.child, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid == e.child {
			break
		}
	}
	e.elapsed = stopwatch.Diff(s.clock.Now(), begin)
	e.cumulative += e.elapsed

	if err != nil {
		e.reaped = -1
		return -1, 0, fmt.Errorf("%w: wait4 %d: %v", ErrWaitMismatch, e.child, err)
	}
	e.reaped = pid
	e.status = ws
	metrics.ObserveReaped(metrics.PathDirect)
	s.log.Debug().Int("child", e.child).Int("reaped", pid).Msg("waitpid")
	return pid, ws, nil
}
