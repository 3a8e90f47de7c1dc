// Package stopwatch provides the begin/now/diff timer used for elapsed-time
// bookkeeping. It is never on a correctness path.
package stopwatch

import "time"

// Stamp is a point on the monotonic clock.
type Stamp struct {
	t time.Time
}

// Clock yields stamps. Tests substitute a fake clock.
type Clock interface {
	Now() Stamp
}

type monotonic struct{}

// System returns the process monotonic clock.
func System() Clock {
	return monotonic{}
}

func (monotonic) Now() Stamp {
	return Stamp{t: time.Now()}
}

// Begin is shorthand for System().Now().
func Begin() Stamp {
	return Stamp{t: time.Now()}
}

// At builds a stamp from a wall time; used by fake clocks.
func At(t time.Time) Stamp {
	return Stamp{t: t}
}

// Diff returns end minus begin, clamped at zero.
func Diff(end, begin Stamp) time.Duration {
	if begin.t.IsZero() || end.t.IsZero() {
		return 0
	}
	d := end.t.Sub(begin.t)
	if d < 0 {
		return 0
	}
	return d
}
