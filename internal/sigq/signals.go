//go:build unix

package sigq

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/metrics"
)

// Handler is a signal callback. Handlers for the child signal run with the
// child-signal mask held and must not block or call back into the
// Supervisor.
type Handler func(sig unix.Signal)

// handledSignals is the fixed disposition table. There is no extension point.
var handledSignals = []unix.Signal{
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGCHLD,
	unix.SIGHUP,
	unix.SIGTERM,
	unix.SIGPIPE,
}

// savedDisposition is what installing a channel replaced. Go cannot read the
// previous sigaction, so only the ignored state is carried back.
type savedDisposition struct {
	ignored bool
}

type installer interface {
	install(sig unix.Signal, ch chan<- os.Signal) (savedDisposition, error)
	restore(sig unix.Signal, ch chan<- os.Signal, saved savedDisposition) error
}

type osInstaller struct{}

func (osInstaller) install(sig unix.Signal, ch chan<- os.Signal) (savedDisposition, error) {
	saved := savedDisposition{ignored: signal.Ignored(sig)}
	signal.Notify(ch, sig)
	return saved, nil
}

func (osInstaller) restore(sig unix.Signal, ch chan<- os.Signal, saved savedDisposition) error {
	signal.Stop(ch)
	if saved.ignored {
		signal.Ignore(sig)
	}
	return nil
}

type disposition struct {
	sig     unix.Signal
	handler Handler
	active  int
	saved   savedDisposition

	ch   chan os.Signal
	done chan struct{}
}

// dispositions is the refcounted signal table. mu serializes every change;
// methods suffixed Locked expect the caller to hold it.
type dispositions struct {
	mu      sync.Mutex
	table   []*disposition
	running int

	caught atomic.Uint64

	inst     installer
	mask     *sigmask
	fallback Handler
	log      zerolog.Logger
}

func newDispositions(inst installer, mask *sigmask, log zerolog.Logger) *dispositions {
	t := &dispositions{inst: inst, mask: mask, log: log}
	t.reset()
	return t
}

// reset returns the table to its initial state without touching installed
// channels.
func (t *dispositions) reset() {
	t.table = make([]*disposition, 0, len(handledSignals))
	for _, sig := range handledSignals {
		t.table = append(t.table, &disposition{sig: sig})
	}
	t.running = 0
	t.caught.Store(0)
}

func (t *dispositions) lookup(sig unix.Signal) *disposition {
	for _, d := range t.table {
		if d.sig == sig {
			return d
		}
	}
	return nil
}

// set enables the signal for a positive signum and disables it for a
// negative one, returning whether the disposition is active afterwards.
func (t *dispositions) set(signum int, h Handler) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocked(signum, h)
}

func (t *dispositions) setLocked(signum int, h Handler) (bool, error) {
	enable := signum >= 0
	sig := unix.Signal(signum)
	if !enable {
		sig = unix.Signal(-signum)
	}
	d := t.lookup(sig)
	if d == nil {
		return false, fmt.Errorf("%w: %d", ErrUnknownSignal, sig)
	}

	if enable {
		prev := d.active
		d.active++
		if prev <= 0 {
			t.clearCaught(sig)
			use := h
			if use == nil {
				use = d.handler
			}
			ch := make(chan os.Signal, 8)
			saved, err := t.inst.install(sig, ch)
			if err != nil {
				d.active--
				t.publish(d)
				return d.active > 0, fmt.Errorf("%w: install %s: %v", ErrHandlerInstall, unix.SignalName(sig), err)
			}
			d.saved = saved
			d.ch = ch
			d.done = make(chan struct{})
			d.active = 1
			if h != nil {
				d.handler = h
			}
			go t.dispatch(sig, use, ch, d.done)
			t.log.Debug().Str("signal", unix.SignalName(sig)).Msg("disposition installed")
		}
	} else {
		d.active--
		if d.active <= 0 {
			if d.ch != nil {
				if err := t.inst.restore(sig, d.ch, d.saved); err != nil {
					t.publish(d)
					return d.active > 0, fmt.Errorf("%w: restore %s: %v", ErrHandlerInstall, unix.SignalName(sig), err)
				}
				close(d.done)
				d.ch = nil
				d.done = nil
				t.log.Debug().Str("signal", unix.SignalName(sig)).Msg("disposition restored")
			}
			d.active = 0
			d.handler = h
		}
	}
	t.publish(d)
	return d.active > 0, nil
}

func (t *dispositions) dispatch(sig unix.Signal, h Handler, ch <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ch:
			t.deliver(sig, h)
		}
	}
}

func (t *dispositions) deliver(sig unix.Signal, h Handler) {
	if h == nil {
		h = t.fallback
	}
	if h == nil {
		return
	}
	if sig == unix.SIGCHLD {
		t.mask.deliver(func() { h(sig) })
		return
	}
	h(sig)
}

func (t *dispositions) publish(d *disposition) {
	metrics.SetSignalRefcount(unix.SignalName(d.sig), d.active)
}

func (t *dispositions) refcount(sig unix.Signal) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d := t.lookup(sig); d != nil {
		return d.active
	}
	return 0
}

func (t *dispositions) markCaught(sig unix.Signal) {
	if sig <= 0 || sig >= 64 {
		return
	}
	bit := uint64(1) << uint(sig)
	for {
		old := t.caught.Load()
		if old&bit != 0 || t.caught.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

func (t *dispositions) clearCaught(sig unix.Signal) {
	if sig <= 0 || sig >= 64 {
		return
	}
	bit := uint64(1) << uint(sig)
	for {
		old := t.caught.Load()
		if old&bit == 0 || t.caught.CompareAndSwap(old, old&^bit) {
			return
		}
	}
}

func (t *dispositions) isCaught(sig unix.Signal) bool {
	if sig <= 0 || sig >= 64 {
		return false
	}
	return t.caught.Load()&(uint64(1)<<uint(sig)) != 0
}

// enterRun diverts SIGINT and SIGQUIT for the first concurrent run; nested
// runs only count.
func (t *dispositions) enterRun() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running++
	if t.running > 1 {
		return nil
	}
	if _, err := t.setLocked(int(unix.SIGINT), nil); err != nil {
		t.running--
		return err
	}
	if _, err := t.setLocked(int(unix.SIGQUIT), nil); err != nil {
		t.running--
		_, _ = t.setLocked(-int(unix.SIGINT), nil)
		return err
	}
	return nil
}

// leaveRun restores SIGINT and SIGQUIT when the last concurrent run leaves.
func (t *dispositions) leaveRun() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	if t.running > 0 {
		return nil
	}
	t.running = 0
	_, errInt := t.setLocked(-int(unix.SIGINT), nil)
	_, errQuit := t.setLocked(-int(unix.SIGQUIT), nil)
	return errors.Join(errInt, errQuit)
}

func (t *dispositions) activeRuns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
