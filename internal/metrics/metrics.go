// Package metrics registers the pipeline's Prometheus instruments. Init is
// optional: when it was never called (unit tests, one-shot CLI runs without
// the monitoring server) every helper is a no-op.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "collector_"

const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultError   = "error"

	EnrichGenerated = "generated"
	EnrichCached    = "cached"
	EnrichFallback  = "fallback"
	EnrichSkipped   = "skipped"
)

var (
	registerOnce sync.Once

	tilesTotal       *prometheus.CounterVec
	recordsValidated *prometheus.CounterVec
	enrichmentsTotal *prometheus.CounterVec
	rowsLoaded       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
)

// Init registers all pipeline metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		tilesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tiles_total",
				Help: "Harvest tile outcomes by result",
			},
			[]string{"result"},
		)
		recordsValidated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_validated_total",
				Help: "Cleaning stage validation outcomes by result",
			},
			[]string{"result"},
		)
		enrichmentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "enrichments_total",
				Help: "Enrichment outcomes by source",
			},
			[]string{"outcome"},
		)
		rowsLoaded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_loaded_total",
				Help: "Production load outcomes by result",
			},
			[]string{"result"},
		)
		stageDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stage_duration_seconds",
				Help:    "Pipeline stage wall time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"stage"},
		)

		prometheus.MustRegister(
			tilesTotal,
			recordsValidated,
			enrichmentsTotal,
			rowsLoaded,
			stageDuration,
		)
	})
}

// IncTile counts one tile outcome.
func IncTile(result string) {
	if tilesTotal != nil {
		tilesTotal.WithLabelValues(result).Inc()
	}
}

// AddValidated counts cleaning outcomes.
func AddValidated(result string, n int) {
	if recordsValidated != nil && n > 0 {
		recordsValidated.WithLabelValues(result).Add(float64(n))
	}
}

// IncEnrichment counts one enrichment outcome.
func IncEnrichment(outcome string) {
	if enrichmentsTotal != nil {
		enrichmentsTotal.WithLabelValues(outcome).Inc()
	}
}

// AddLoaded counts production rows by load result.
func AddLoaded(result string, n int) {
	if rowsLoaded != nil && n > 0 {
		rowsLoaded.WithLabelValues(result).Add(float64(n))
	}
}

// ObserveStage records one stage execution's wall time.
func ObserveStage(stage string, d time.Duration) {
	if stageDuration != nil {
		stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}
