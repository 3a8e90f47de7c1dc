//go:build unix

package sigq

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/metrics"
)

type runResult struct {
	pid    int
	status unix.WaitStatus
	err    error
}

// Run executes argv[0] with argv, waits for it and returns its decoded
// status: the exit code, 128 plus the signal for a signalled child, or
// ExitExecFailure when the program could not be executed. Setup, fork and
// wait failures return -1 with an error.
//
// SIGINT and SIGQUIT are diverted while any Run is in flight. If ctx is
// cancelled while Run is blocked, the child is killed and fully reaped
// before Run returns, and the diversion is undone if no other Run remains.
// Run bypasses the ring: its child is collected with wait4 on its own pid.
func (s *Supervisor) Run(ctx context.Context, argv []string) (status int, err error) {
	if len(argv) == 0 {
		return -1, ErrNoCommand
	}
	if err := ctx.Err(); err != nil {
		metrics.ObserveRunResult(metrics.ResultCancelled)
		return -1, err
	}

	if err := s.sigs.enterRun(); err != nil {
		metrics.ObserveRunResult(metrics.ResultError)
		return -1, err
	}
	defer func() {
		if errLeave := s.sigs.leaveRun(); errLeave != nil && err == nil {
			status, err = -1, errLeave
		}
		metrics.ObserveRunResult(runOutcome(status, err))
	}()

	cmd := shimCommand(execInit, argv, nil, "", nil, nil, nil)
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrFork, err)
	}
	pid := cmd.Process.Pid
	defer func() { _ = cmd.Process.Release() }()
	if s.runStarted != nil {
		s.runStarted(pid)
	}
	s.log.Debug().Int("child", pid).Strs("argv", argv).Msg("run")

	done := make(chan runResult, 1)
	go func() {
		done <- waitPid(pid)
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		// Cancellation cleanup: kill, then reap regardless of the kill's outcome.
		if errKill := unix.Kill(pid, unix.SIGKILL); errKill != nil && !errors.Is(errKill, unix.ESRCH) {
			s.log.Debug().Err(errKill).Int("child", pid).Msg("kill on cancel")
		}
		<-done
		s.log.Debug().Int("child", pid).Msg("run cancelled")
		return -1, ctx.Err()
	}

	if res.err != nil {
		return -1, fmt.Errorf("%w: wait4 %d: %v", ErrWaitMismatch, pid, res.err)
	}
	if res.pid != pid {
		return -1, fmt.Errorf("%w: got %d, want %d", ErrWaitMismatch, res.pid, pid)
	}
	metrics.ObserveReaped(metrics.PathRun)
	return decodeStatus(res.status), nil
}

// waitPid blocks in wait4 for exactly pid, retrying on EINTR.
func waitPid(pid int) runResult {
	for {
		var ws unix.WaitStatus
		got, err := unix.Wait4(pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return runResult{pid: got, status: ws, err: err}
	}
}

func runOutcome(status int, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCancelled
	case err != nil:
		return metrics.ResultError
	case status == ExitExecFailure:
		return metrics.ResultExecFailure
	default:
		return metrics.ResultOK
	}
}

// RunArgv is a convenience for Run on the default Supervisor.
func RunArgv(ctx context.Context, argv ...string) (int, error) {
	return Default().Run(ctx, argv)
}
