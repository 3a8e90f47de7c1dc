//go:build unix

package sigq

import (
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Result is the outcome of one wait.
type Result struct {
	Pid     int
	Status  unix.WaitStatus
	Elapsed time.Duration
}

// ExitCode decodes Status the way a shell does: the exit code for a normal
// exit, 128 plus the signal number for a signalled child, -1 otherwise.
func (r Result) ExitCode() int {
	return decodeStatus(r.Status)
}

// Element tracks one supervised child. It is owned by the caller that created
// it; while linked, its ring links belong to the Supervisor.
type Element struct {
	next, prev *Element
	linked     bool

	// owner is the OS thread that inserted the element. Diagnostic only.
	owner int

	child  int
	reaped int
	status unix.WaitStatus
	reaper bool

	// pipes[0] is the read end handed to the child, pipes[1] the write end
	// whose close releases it.
	pipes [2]*os.File
	proc  *os.Process

	mu   *sync.Mutex
	cond *sync.Cond

	elapsed    time.Duration
	cumulative time.Duration
	last       Result

	argv   []string
	env    []string
	dir    string
	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// ElementOption configures an Element.
type ElementOption func(*Element)

// WithEnv sets the child's environment. A nil env inherits the host's.
func WithEnv(env []string) ElementOption {
	return func(e *Element) {
		e.env = append([]string(nil), env...)
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) ElementOption {
	return func(e *Element) {
		e.dir = dir
	}
}

// WithStdio sets the child's standard streams. Nil streams inherit the host's.
func WithStdio(stdin, stdout, stderr *os.File) ElementOption {
	return func(e *Element) {
		e.stdin = stdin
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithDirectWait marks the element as a bare child collected by a direct
// blocking wait instead of through the ring and the reaper.
func WithDirectWait() ElementOption {
	return func(e *Element) {
		e.reaper = false
	}
}

// NewElement returns an element that will run argv when forked. argv[0] must
// be a path; no PATH lookup is performed.
func NewElement(argv []string, opts ...ElementOption) *Element {
	e := &Element{
		argv:   append([]string(nil), argv...),
		reaper: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pid returns the forked child's pid, or 0 before a successful fork.
func (e *Element) Pid() int {
	return e.child
}

// Reaped returns the pid collected for this element. It equals Pid once the
// child has been reaped.
func (e *Element) Reaped() int {
	return e.reaped
}

// Status returns the raw wait status. Valid only once Reaped() == Pid().
// Remove clears it; use Last after Wait.
func (e *Element) Status() unix.WaitStatus {
	return e.status
}

// Last returns the outcome of the most recent Wait on the element. It
// survives Remove, which clears the live fields.
func (e *Element) Last() Result {
	return e.last
}

// Tracked reports whether the element takes the ring and reaper path.
func (e *Element) Tracked() bool {
	return e.reaper
}

// Elapsed returns the duration of the most recent wait.
func (e *Element) Elapsed() time.Duration {
	return e.elapsed
}

// Cumulative returns the total wait duration across every wait on this element.
func (e *Element) Cumulative() time.Duration {
	return e.cumulative
}

// Owner returns the OS thread id that last inserted the element.
func (e *Element) Owner() int {
	return e.owner
}

func (e *Element) closePipes() {
	for i, f := range e.pipes {
		if f != nil {
			_ = f.Close()
			e.pipes[i] = nil
		}
	}
}

// collect records a reaped pid and wakes a waiter blocked on the element.
func (e *Element) collect(pid int, status unix.WaitStatus) {
	if e.mu == nil {
		e.reaped = pid
		e.status = status
		return
	}
	e.mu.Lock()
	e.reaped = pid
	e.status = status
	e.cond.Signal()
	e.mu.Unlock()
}

func decodeStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return -1
	}
}
