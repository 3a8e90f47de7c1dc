//go:build unix

package sigq

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/metrics"
)

// ForkTracked forks the child described by e and returns its pid.
//
// A tracked element is linked into the ring (unless it already is) and the
// child-signal disposition is enabled before the child exists. The child
// then blocks on the handshake pipe until the owner calls Wait on e, so it
// can never terminate before its owner is ready to observe it. Every
// successful ForkTracked must be followed by Wait; a failed one has already
// undone its ring and disposition bookkeeping.
func (s *Supervisor) ForkTracked(e *Element) (int, error) {
	if e == nil {
		return 0, ErrNilElement
	}
	if len(e.argv) == 0 {
		return 0, ErrNoCommand
	}

	inserted := false
	if e.reaper {
		if !e.linked {
			if err := s.Insert(e, nil); err != nil {
				return 0, err
			}
			inserted = true
		}
		if _, err := s.Enable(unix.SIGCHLD, nil); err != nil {
			if inserted {
				_ = s.Remove(e)
			}
			return 0, err
		}
	} else {
		e.child = 0
		e.reaped = 0
		e.status = 0
	}

	unwind := func() {
		if !e.reaper {
			return
		}
		if inserted {
			_ = s.Remove(e)
		}
		_, _ = s.Disable(unix.SIGCHLD, nil)
	}

	r, w, err := os.Pipe()
	if err != nil {
		unwind()
		return 0, fmt.Errorf("%w: %v", ErrPipe, err)
	}
	e.pipes = [2]*os.File{r, w}

	cmd := shimCommand(handshakeInit, e.argv, e.env, e.dir, e.stdin, e.stdout, e.stderr)
	cmd.ExtraFiles = []*os.File{r}

	s.mask.hold()
	if err := cmd.Start(); err != nil {
		e.closePipes()
		s.mask.release()
		unwind()
		return 0, fmt.Errorf("%w: %v", ErrFork, err)
	}
	e.child = cmd.Process.Pid
	e.proc = cmd.Process
	s.mask.release()

	metrics.IncrementForked()
	s.log.Debug().Int("owner", threadID()).Int("child", e.child).Bool("reaper", e.reaper).Msg("fork")
	return e.child, nil
}
