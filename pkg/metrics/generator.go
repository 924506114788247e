package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GeneratorMetrics records stage timings and row counts for dataset generation runs.
type GeneratorMetrics struct {
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	pools    *prometheus.GaugeVec
}

// NewGeneratorMetrics registers the generator metrics on the provided registerer.
func NewGeneratorMetrics(reg prometheus.Registerer) *GeneratorMetrics {
	if reg == nil {
		return &GeneratorMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datagen_stage_duration_seconds",
		Help:    "Duration of dataset generation stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datagen_rows_total",
		Help: "Rows generated per table.",
	}, []string{"table"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datagen_stage_success",
		Help: "Successful dataset generation stages.",
	}, []string{"stage"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datagen_stage_failure",
		Help: "Failed dataset generation stages.",
	}, []string{"stage"})
	pools := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datagen_pool_size",
		Help: "Identities per pool in the latest run.",
	}, []string{"pool"})
	reg.MustRegister(duration, rows, success, failure, pools)
	return &GeneratorMetrics{
		duration: duration,
		rows:     rows,
		success:  success,
		failure:  failure,
		pools:    pools,
	}
}

// ObserveDuration records the duration for the named stage.
func (g *GeneratorMetrics) ObserveDuration(stage string, duration time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	g.duration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// AddRows adds n generated rows for the named table.
func (g *GeneratorMetrics) AddRows(table string, n int) {
	if g == nil || g.rows == nil || n <= 0 {
		return
	}
	g.rows.WithLabelValues(normalizeLabel(table)).Add(float64(n))
}

// IncSuccess increments the success counter for the named stage.
func (g *GeneratorMetrics) IncSuccess(stage string) {
	if g == nil || g.success == nil {
		return
	}
	g.success.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncFailure increments the failure counter for the named stage.
func (g *GeneratorMetrics) IncFailure(stage string) {
	if g == nil || g.failure == nil {
		return
	}
	g.failure.WithLabelValues(normalizeLabel(stage)).Inc()
}

// SetPoolSize records the size of the named identity pool.
func (g *GeneratorMetrics) SetPoolSize(pool string, n int) {
	if g == nil || g.pools == nil {
		return
	}
	g.pools.WithLabelValues(normalizeLabel(pool)).Set(float64(n))
}

// Track times fn under the named stage and counts its outcome.
func (g *GeneratorMetrics) Track(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	g.ObserveDuration(stage, time.Since(start))
	if err != nil {
		g.IncFailure(stage)
		return err
	}
	g.IncSuccess(stage)
	return nil
}

func normalizeLabel(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
