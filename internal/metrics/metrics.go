// ABOUTME: Prometheus metrics describing the outcome of a cvetrack run.
// ABOUTME: Metrics are written to a node_exporter textfile since the tool exits after each run.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RunSummary is what a completed run reports
type RunSummary struct {
	Packages         int
	Patched          int
	Unpatched        int
	ChangesPatched   int
	ChangesUnpatched int
	HistorySnapshots int
	Timestamp        time.Time
}

type MetricsWriter struct {
	logger *logrus.Logger

	issueCount       *prometheus.GaugeVec
	changeCount      *prometheus.GaugeVec
	historySnapshots prometheus.Gauge
	packageCount     prometheus.Gauge
	lastRunTime      prometheus.Gauge
}

func NewMetricsWriter(logger *logrus.Logger) *MetricsWriter {
	return &MetricsWriter{
		logger: logger,

		issueCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cvetrack_issues",
				Help: "Number of tracked issues by set",
			},
			[]string{"set"},
		),

		changeCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cvetrack_changes",
				Help: "Number of status transitions found in the last run by bucket",
			},
			[]string{"bucket"},
		),

		historySnapshots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cvetrack_history_snapshots",
				Help: "Number of snapshots in the change history",
			},
		),

		packageCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cvetrack_packages",
				Help: "Number of packages in the last scan report",
			},
		),

		lastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cvetrack_last_run_timestamp_seconds",
				Help: "Timestamp of the last successful cvetrack run",
			},
		),
	}
}

// Registry returns a fresh registry populated from summary
func (m *MetricsWriter) Registry(summary RunSummary) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(m.issueCount)
	registry.MustRegister(m.changeCount)
	registry.MustRegister(m.historySnapshots)
	registry.MustRegister(m.packageCount)
	registry.MustRegister(m.lastRunTime)

	// Reset to avoid stale label values between runs
	m.issueCount.Reset()
	m.changeCount.Reset()

	m.issueCount.WithLabelValues("patched").Set(float64(summary.Patched))
	m.issueCount.WithLabelValues("unpatched").Set(float64(summary.Unpatched))
	m.changeCount.WithLabelValues("patched").Set(float64(summary.ChangesPatched))
	m.changeCount.WithLabelValues("unpatched").Set(float64(summary.ChangesUnpatched))
	m.historySnapshots.Set(float64(summary.HistorySnapshots))
	m.packageCount.Set(float64(summary.Packages))
	m.lastRunTime.Set(float64(summary.Timestamp.Unix()))

	return registry
}

// WriteTextfile writes the summary in the Prometheus text format to path
func (m *MetricsWriter) WriteTextfile(path string, summary RunSummary) error {
	if err := prometheus.WriteToTextfile(path, m.Registry(summary)); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"operation": "write_metrics",
		"path":      path,
	}).Debug("Wrote metrics textfile")
	return nil
}
