package api

import (
	stdcontext "context"
	"errors"
	"time"
)

// ErrUnavailable reports that no supervisor is attached to the server.
var ErrUnavailable = errors.New("supervisor unavailable")

// SignalReport describes one slot of the disposition table.
type SignalReport struct {
	Name     string `json:"name"`
	Number   int    `json:"number"`
	Refcount int    `json:"refcount"`
	Caught   bool   `json:"caught"`
}

// ChildReport describes a tracked element that is linked into the ring.
type ChildReport struct {
	Pid    int  `json:"pid"`
	Owner  int  `json:"owner"`
	Reaped bool `json:"reaped"`
}

// StatusReport is a point in time view of the supervisor.
type StatusReport struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	WaitStrategy string         `json:"wait_strategy"`
	ReapMode     string         `json:"reap_mode"`
	ActiveRuns   int            `json:"active_runs"`
	Signals      []SignalReport `json:"signals"`
	Children     []ChildReport  `json:"children"`
}

// Reporter exposes the supervisor state required by diagnostics servers.
type Reporter interface {
	Status(stdcontext.Context) (*StatusReport, error)
}
