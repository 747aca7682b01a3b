package metrics

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	launches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procwire",
		Name:      "launches_total",
		Help:      "Total number of successfully spawned child processes.",
	})

	launchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procwire",
		Name:      "launch_failures_total",
		Help:      "Total number of launches that failed before a handle existed.",
	})

	activeProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwire",
		Name:      "active_processes",
		Help:      "Child processes currently running under management.",
	})

	exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwire",
		Name:      "exits_total",
		Help:      "Child process exits grouped by outcome.",
	}, []string{"outcome"})

	pipelineRollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procwire",
		Name:      "pipeline_rollbacks_total",
		Help:      "Pipelines torn down because a stage failed to launch.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procwire",
		Name:      "build_info",
		Help:      "Build metadata for the running procwire binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(launches, launchFailures, activeProcesses, exits, pipelineRollbacks, buildInfo)
}

// Registry returns the Prometheus registry containing all procwire metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the metrics registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ProcessStarted records a successful spawn.
func ProcessStarted() {
	launches.Inc()
	activeProcesses.Inc()
}

// LaunchFailed records a spawn that never produced a handle.
func LaunchFailed() {
	launchFailures.Inc()
}

// ProcessExited records the exit of a managed process. Exit codes are
// bucketed into outcomes rather than labelled individually to keep the
// series bounded.
func ProcessExited(code int) {
	activeProcesses.Dec()
	outcome := "failure"
	if code == 0 {
		outcome = "success"
	} else if code > 128 {
		outcome = "signal:" + strconv.Itoa(code-128)
	}
	exits.WithLabelValues(outcome).Inc()
}

// PipelineRolledBack records an aggregate pipeline teardown.
func PipelineRolledBack() {
	pipelineRollbacks.Inc()
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
