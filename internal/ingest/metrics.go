package ingest

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the counters of one run in a private registry, so a run
// never touches the global default registry.
type metrics struct {
	registry *prometheus.Registry
	files    *prometheus.CounterVec
	skips    *prometheus.CounterVec
	upserts  *prometheus.CounterVec
	pruned   prometheus.Counter
	duration prometheus.Gauge
	finished prometheus.Gauge
	services prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zugdienste",
			Name:      "files_total",
			Help:      "Files seen by the scan, by outcome.",
		}, []string{"outcome"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zugdienste",
			Name:      "skipped_files_total",
			Help:      "Skipped files by reason.",
		}, []string{"reason"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zugdienste",
			Name:      "upserts_total",
			Help:      "Service upserts by result.",
		}, []string{"result"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zugdienste",
			Name:      "pruned_services_total",
			Help:      "Stale services deleted by the scan.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zugdienste",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of the last scan.",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zugdienste",
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last scan finished.",
		}),
		services: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zugdienste",
			Name:      "services",
			Help:      "Rows in the services table after the scan.",
		}),
	}

	m.registry.MustRegister(m.files, m.skips, m.upserts, m.pruned, m.duration, m.finished, m.services)

	// Pre-create the outcome series so a scan with no files still reports zeros.
	for _, k := range []OutcomeKind{OutcomeOK, OutcomeSkipped, OutcomeExcluded} {
		m.files.WithLabelValues(k.String())
	}

	return m
}

// writeTextfile writes all metrics in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (m *metrics) writeTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
