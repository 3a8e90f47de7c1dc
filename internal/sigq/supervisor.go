//go:build unix

package sigq

import (
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/stopwatch"
)

// WaitStrategy selects how Wait blocks on a tracked element.
type WaitStrategy string

const (
	// WaitCond blocks on the element's condition variable. This is the
	// threaded strategy and the default.
	WaitCond WaitStrategy = "cond"
	// WaitSuspend holds the child-signal mask in place of a lock and
	// suspends until a delivery arrives.
	WaitSuspend WaitStrategy = "suspend"
)

// ReapMode selects which children the reaper collects.
type ReapMode string

const (
	// ReapTracked collects only children owned by ring elements, leaving
	// every other child to whoever started it.
	ReapTracked ReapMode = "tracked"
	// ReapAny collects every terminated child in the process group and
	// discards the ones no element is waiting for.
	ReapAny ReapMode = "any"
)

// Supervisor owns the ring, the child-signal mask and the disposition table.
// All three are process-wide in effect because signal dispositions are; run
// a single Supervisor per process outside of tests.
type Supervisor struct {
	log      zerolog.Logger
	clock    stopwatch.Clock
	strategy WaitStrategy
	mode     ReapMode

	mask   *sigmask
	ring   *ring
	sigs   *dispositions
	waiter waiter

	// runStarted is called with the child pid once Run has forked.
	runStarted func(pid int)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for debug tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.log = log
	}
}

// WithClock sets the clock used for elapsed-time bookkeeping.
func WithClock(clock stopwatch.Clock) Option {
	return func(s *Supervisor) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithWaitStrategy selects the Wait strategy. Unknown values fall back to WaitCond.
func WithWaitStrategy(strategy WaitStrategy) Option {
	return func(s *Supervisor) {
		s.strategy = strategy
	}
}

// WithReapMode selects the reaper's collection mode. Unknown values fall back to ReapTracked.
func WithReapMode(mode ReapMode) Option {
	return func(s *Supervisor) {
		s.mode = mode
	}
}

func withInstaller(inst installer) Option {
	return func(s *Supervisor) {
		s.sigs.inst = inst
	}
}

// New constructs a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		log:      zerolog.Nop(),
		clock:    stopwatch.System(),
		strategy: WaitCond,
		mode:     ReapTracked,
		mask:     newSigmask(),
		ring:     newRing(),
	}
	s.sigs = newDispositions(osInstaller{}, s.mask, s.log)
	for _, opt := range opts {
		opt(s)
	}
	s.sigs.log = s.log
	s.sigs.fallback = s.action

	switch s.strategy {
	case WaitSuspend:
		s.waiter = suspendWaiter{s: s}
	default:
		s.strategy = WaitCond
		s.waiter = condWaiter{s: s}
	}
	if s.mode != ReapAny {
		s.mode = ReapTracked
	}
	return s
}

var (
	defaultOnce       sync.Once
	defaultSupervisor *Supervisor
	defaultOpts       []Option
	defaultMu         sync.Mutex
)

// Configure sets the options used by Default. It has no effect once Default
// has been called.
func Configure(opts ...Option) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOpts = append([]Option(nil), opts...)
}

// Default returns the process-wide Supervisor, constructing it on first use.
func Default() *Supervisor {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		opts := defaultOpts
		defaultMu.Unlock()
		defaultSupervisor = New(opts...)
	})
	return defaultSupervisor
}

// Strategy reports the Wait strategy in use.
func (s *Supervisor) Strategy() WaitStrategy {
	return s.strategy
}

// Mode reports the reap mode in use.
func (s *Supervisor) Mode() ReapMode {
	return s.mode
}

// SetDisposition enables the handled signal |signum| when signum is positive
// and disables it when negative. Enables are refcounted: the first installs
// h (or the default action) and later ones only count; the last disable
// restores the saved disposition and remembers h for the next enable. It
// returns whether the disposition is active afterwards.
func (s *Supervisor) SetDisposition(signum int, h Handler) (bool, error) {
	return s.sigs.set(signum, h)
}

// Enable is SetDisposition with a positive signal number.
func (s *Supervisor) Enable(sig unix.Signal, h Handler) (bool, error) {
	return s.sigs.set(int(sig), h)
}

// Disable is SetDisposition with a negated signal number.
func (s *Supervisor) Disable(sig unix.Signal, h Handler) (bool, error) {
	return s.sigs.set(-int(sig), h)
}

// Refcount returns the number of outstanding enables for sig.
func (s *Supervisor) Refcount(sig unix.Signal) int {
	return s.sigs.refcount(sig)
}

// Active reports whether sig currently has an installed disposition.
func (s *Supervisor) Active(sig unix.Signal) bool {
	return s.sigs.refcount(sig) > 0
}

// Caught reports whether sig has been delivered to the default action since
// it was last installed.
func (s *Supervisor) Caught(sig unix.Signal) bool {
	return s.sigs.isCaught(sig)
}

// ActiveRuns returns the number of Run calls in flight.
func (s *Supervisor) ActiveRuns() int {
	return s.sigs.activeRuns()
}

// HandledSignals lists the signals that have a disposition slot.
func HandledSignals() []unix.Signal {
	return append([]unix.Signal(nil), handledSignals...)
}

// Tracked lists the elements currently linked into the ring, in ring order.
func (s *Supervisor) Tracked() []*Element {
	s.mask.hold()
	defer s.mask.release()
	return s.ring.snapshot()
}

// ChildInfo is a point in time view of a linked element.
type ChildInfo struct {
	Pid    int
	Owner  int
	Reaped bool
}

// Children snapshots the linked elements with the child signal held, so the
// reaper cannot update them mid-read.
func (s *Supervisor) Children() []ChildInfo {
	s.mask.hold()
	defer s.mask.release()
	elems := s.ring.snapshot()
	out := make([]ChildInfo, 0, len(elems))
	for _, e := range elems {
		out = append(out, ChildInfo{
			Pid:    e.child,
			Owner:  e.owner,
			Reaped: e.child > 0 && e.reaped == e.child,
		})
	}
	return out
}

// action is the default disposition for every handled signal.
func (s *Supervisor) action(sig unix.Signal) {
	s.sigs.markCaught(sig)
	if sig == unix.SIGCHLD {
		s.reap()
	}
}
