// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed:
//   - panelcast_model_compute_seconds: Histogram of per-model run duration by mode
//   - panelcast_adapter_collect_seconds: Histogram of panel collection duration
//   - panelcast_workers: Gauge of workers used by the last run
//   - panelcast_groups: Gauge of groups in the last panel
//   - panelcast_rows_emitted_total: Counter of result rows by mode
//   - panelcast_last_run_timestamp_seconds: Gauge of the last successful run time
//   - panelcast_errors_total: Counter of errors by component and reason
//
// Metrics implements forecast.Observer, so it can be passed to forecast.WithObserver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/panelcast/pkg/forecast"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	ModelComputeSeconds   *prometheus.HistogramVec
	AdapterCollectSeconds prometheus.Histogram
	Workers               prometheus.Gauge
	Groups                prometheus.Gauge
	RowsEmitted           *prometheus.CounterVec
	LastRunTimestamp      prometheus.Gauge
	ErrorsTotal           *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, run string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"run": run}

	return &Metrics{
		ModelComputeSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "panelcast_model_compute_seconds",
			Help:        "Time spent running one model over the whole panel",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"model", "mode"}),

		AdapterCollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "panelcast_adapter_collect_seconds",
			Help:        "Time spent collecting the panel from its source",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		Workers: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "panelcast_workers",
			Help:        "Workers used by the last run",
			ConstLabels: labels,
		}),

		Groups: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "panelcast_groups",
			Help:        "Groups in the last collected panel",
			ConstLabels: labels,
		}),

		RowsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "panelcast_rows_emitted_total",
			Help:        "Result rows produced",
			ConstLabels: labels,
		}, []string{"mode"}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "panelcast_last_run_timestamp_seconds",
			Help:        "Unix time of the last successful run",
			ConstLabels: labels,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "panelcast_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// ModelStarted implements forecast.Observer.
func (m *Metrics) ModelStarted(model string, mode forecast.Mode) {}

// ModelFinished implements forecast.Observer.
func (m *Metrics) ModelFinished(model string, mode forecast.Mode, duration time.Duration, err error) {
	if err != nil {
		m.RecordError("model", string(mode)+"_failed")
		return
	}
	m.ModelComputeSeconds.WithLabelValues(model, string(mode)).Observe(duration.Seconds())
}

// RecordCollect records the time spent collecting the panel.
func (m *Metrics) RecordCollect(seconds float64) {
	m.AdapterCollectSeconds.Observe(seconds)
}

// RecordRun records the shape and completion time of a successful run.
func (m *Metrics) RecordRun(mode forecast.Mode, workers, groups, rows int, at time.Time) {
	m.Workers.Set(float64(workers))
	m.Groups.Set(float64(groups))
	m.RowsEmitted.WithLabelValues(string(mode)).Add(float64(rows))
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
