package cli

import (
	stdcontext "context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/scriptq/internal/api"
	"github.com/Paintersrp/scriptq/internal/sigq"
)

// supervisorReporter adapts a Supervisor to the diagnostics server.
type supervisorReporter struct {
	sup *sigq.Supervisor
}

func (r supervisorReporter) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if r.sup == nil {
		return nil, api.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &api.StatusReport{
		GeneratedAt:  time.Now().UTC(),
		WaitStrategy: string(r.sup.Strategy()),
		ReapMode:     string(r.sup.Mode()),
		ActiveRuns:   r.sup.ActiveRuns(),
	}
	for _, sig := range sigq.HandledSignals() {
		report.Signals = append(report.Signals, api.SignalReport{
			Name:     unix.SignalName(sig),
			Number:   int(sig),
			Refcount: r.sup.Refcount(sig),
			Caught:   r.sup.Caught(sig),
		})
	}
	for _, child := range r.sup.Children() {
		report.Children = append(report.Children, api.ChildReport{
			Pid:    child.Pid,
			Owner:  child.Owner,
			Reaped: child.Reaped,
		})
	}
	return report, nil
}
