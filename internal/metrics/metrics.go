// Package metrics wires the batch job's counters into
// github.com/prometheus/client_golang. There is no HTTP server in this job's
// scope (spec §1 keeps the core free of ambient services); instead the
// Registry is written, on request, to a textfile-collector-compatible path,
// the idiomatic way Prometheus instrumentation works for jobs that do not
// stay up to be scraped.
package metrics

import (
	"github.com/google/renameio/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry bundles the counters, the gauge and the one histogram the driver
// records against. It is passed as a plain constructor argument, the
// way the teacher's components take collaborators — never consulted through
// a package-level global.
type Registry struct {
	reg *prometheus.Registry

	EventsProcessed     prometheus.Counter
	SessionsEmitted     *prometheus.CounterVec
	SplitBumps          prometheus.Counter
	HardErrors          *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	PendingSessionGauge prometheus.Gauge
}

// New builds a Registry with all series registered against a fresh
// prometheus.Registry (never the global DefaultRegisterer, so tests and
// repeated batch invocations in one process never collide on duplicate
// registration).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cros_session_deriver",
			Name:      "events_processed_total",
			Help:      "Raw telemetry events read and dispatched in this run.",
		}),
		SessionsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cros_session_deriver",
			Name:      "derived_sessions_emitted_total",
			Help:      "Derived session rows emitted, labeled by action.",
		}, []string{"action"}),
		SplitBumps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cros_session_deriver",
			Name:      "split_counter_bumps_total",
			Help:      "REAL_IDLE -> active transitions that incremented split_counter.",
		}),
		HardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cros_session_deriver",
			Name:      "hard_errors_total",
			Help:      "Fatal errors aborting the batch, labeled by kind.",
		}, []string{"kind"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cros_session_deriver",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of one batch run.",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingSessionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cros_session_deriver",
			Name:      "pending_sessions",
			Help:      "Pending sessions held in the State Index at the end of the run.",
		}),
	}

	reg.MustRegister(r.EventsProcessed, r.SessionsEmitted, r.SplitBumps, r.HardErrors, r.BatchDuration, r.PendingSessionGauge)
	return r
}

// WriteTextfile writes the current metric snapshot to path in the Prometheus
// text exposition format, suitable for node_exporter's textfile collector
// or Pushgateway ingestion — the idiomatic delivery path for a batch job
// that exits rather than staying up to be scraped. The write goes through
// renameio so a crash mid-encode never leaves a truncated file for the next
// scrape to pick up.
func (r *Registry) WriteTextfile(path string) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer pendingFile.Cleanup()

	enc := expfmt.NewEncoder(pendingFile, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	return pendingFile.CloseAtomicallyReplace()
}
