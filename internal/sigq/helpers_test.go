//go:build unix

package sigq

import (
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/stopwatch"
)

func pipeForTest(t *testing.T) (*os.File, *os.File, error) {
	t.Helper()
	return os.Pipe()
}

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Unix(1_700_000_000, 0), step: step}
}

func (c *stepClock) Now() stopwatch.Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return stopwatch.At(c.now)
}

// reapedOf reads the element's collected pid under its lock.
func reapedOf(e *Element) (int, unix.WaitStatus) {
	if e.mu == nil {
		return e.reaped, e.status
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reaped, e.status
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf(format, args...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeInstaller struct {
	mu          sync.Mutex
	installs    map[unix.Signal]int
	restores    map[unix.Signal]int
	chans       map[unix.Signal]chan<- os.Signal
	failInstall map[unix.Signal]error
	failRestore map[unix.Signal]error
}

func newFakeInstaller() *fakeInstaller {
	return &fakeInstaller{
		installs:    map[unix.Signal]int{},
		restores:    map[unix.Signal]int{},
		chans:       map[unix.Signal]chan<- os.Signal{},
		failInstall: map[unix.Signal]error{},
		failRestore: map[unix.Signal]error{},
	}
}

func (f *fakeInstaller) install(sig unix.Signal, ch chan<- os.Signal) (savedDisposition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failInstall[sig]; err != nil {
		return savedDisposition{}, err
	}
	f.installs[sig]++
	f.chans[sig] = ch
	return savedDisposition{}, nil
}

func (f *fakeInstaller) restore(sig unix.Signal, ch chan<- os.Signal, saved savedDisposition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRestore[sig]; err != nil {
		return err
	}
	f.restores[sig]++
	delete(f.chans, sig)
	return nil
}

func (f *fakeInstaller) counts(sig unix.Signal) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs[sig], f.restores[sig]
}

func (f *fakeInstaller) raise(sig unix.Signal) bool {
	f.mu.Lock()
	ch := f.chans[sig]
	f.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- sig
	return true
}
