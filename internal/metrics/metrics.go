package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reap paths reported by ObserveReaped.
const (
	PathReaper = "reaper"
	PathDirect = "direct"
	PathRun    = "run"
)

// Run results reported by ObserveRunResult.
const (
	ResultOK          = "ok"
	ResultExecFailure = "exec_failure"
	ResultError       = "error"
	ResultCancelled   = "cancelled"
)

var (
	registry = prometheus.NewRegistry()

	childrenForked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scriptq",
		Name:      "children_forked_total",
		Help:      "Total number of tracked children forked.",
	})

	childrenReaped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scriptq",
		Name:      "children_reaped_total",
		Help:      "Total number of children reaped, by collection path.",
	}, []string{"path"})

	untrackedReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scriptq",
		Name:      "untracked_reaped_total",
		Help:      "Children collected by the reaper that matched no tracked element.",
	})

	runResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scriptq",
		Name:      "run_results_total",
		Help:      "Outcomes of synchronous exec-and-wait runs.",
	}, []string{"result"})

	waitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scriptq",
		Name:      "wait_duration_seconds",
		Help:      "Time spent blocked waiting for a tracked child.",
	})

	signalRefcount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scriptq",
		Name:      "signal_refcount",
		Help:      "Number of overlapping enables sharing an installed signal disposition.",
	}, []string{"signal"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scriptq",
		Name:      "build_info",
		Help:      "Build metadata for the running scriptq binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once

	// Resolved up front so the reaper path never allocates label children.
	reapedByPath = map[string]prometheus.Counter{}
)

func init() {
	registry.MustRegister(childrenForked, childrenReaped, untrackedReaped, runResults, waitDuration, signalRefcount, buildInfo)
	for _, path := range []string{PathReaper, PathDirect, PathRun} {
		reapedByPath[path] = childrenReaped.WithLabelValues(path)
	}
}

// Registry returns the Prometheus registry containing all scriptq metrics.
func Registry() *prometheus.Registry {
	return registry
}

// IncrementForked counts one successfully forked tracked child.
func IncrementForked() {
	childrenForked.Inc()
}

// ObserveReaped counts a child collected through the given path.
func ObserveReaped(path string) {
	if c, ok := reapedByPath[path]; ok {
		c.Inc()
	}
}

// IncrementUntracked counts a reaped child no element was waiting for.
func IncrementUntracked() {
	untrackedReaped.Inc()
}

// ObserveRunResult records the outcome of one run.
func ObserveRunResult(result string) {
	if result == "" {
		result = ResultError
	}
	runResults.WithLabelValues(result).Inc()
}

// ObserveWait records how long a waiter was blocked.
func ObserveWait(d time.Duration) {
	if d < 0 {
		return
	}
	waitDuration.Observe(d.Seconds())
}

// SetSignalRefcount publishes the current refcount for a signal.
func SetSignalRefcount(signal string, n int) {
	if signal == "" {
		return
	}
	signalRefcount.WithLabelValues(signal).Set(float64(n))
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
