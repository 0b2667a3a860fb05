// Package metrics holds the ingestion pipeline Prometheus metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vedollar"

// Batch outcomes
const (
	OutcomeSaved       = "saved"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeSaveFailed  = "save_failed"
)

// Ingest contains the ingestion pipeline metrics
type Ingest struct {
	// Observations handed to storage, per source
	ObservationsTotal *prometheus.CounterVec

	// Records dropped by a provider (unparseable, invalid), per source
	SkippedTotal *prometheus.CounterVec

	// Provider runs, per source and outcome
	BatchesTotal *prometheus.CounterVec

	// Provider fetch duration, per source
	FetchDuration *prometheus.HistogramVec

	// Unix time of the last saved batch, per source
	LastSuccess *prometheus.GaugeVec
}

// NewIngest creates the ingestion metrics, registered with the given registerer
func NewIngest(reg prometheus.Registerer) *Ingest {
	factory := promauto.With(reg)

	return &Ingest{
		ObservationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_ingested_total",
				Help:      "Total number of rate observations handed to storage",
			},
			[]string{"source"},
		),
		SkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_skipped_total",
				Help:      "Total number of source records that could not be turned into observations",
			},
			[]string{"source"},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of provider runs, by outcome",
			},
			[]string{"source", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Provider fetch duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms, 200ms, 400ms...
			},
			[]string{"source"},
		),
		LastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last saved batch",
			},
			[]string{"source"},
		),
	}
}

// RecordSaved records a persisted batch
func (m *Ingest) RecordSaved(source string, observations, skipped int, fetchSeconds float64) {
	m.ObservationsTotal.WithLabelValues(source).Add(float64(observations))
	m.SkippedTotal.WithLabelValues(source).Add(float64(skipped))
	m.BatchesTotal.WithLabelValues(source, OutcomeSaved).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(fetchSeconds)
	m.LastSuccess.WithLabelValues(source).SetToCurrentTime()
}

// RecordFailure records a failed provider run
func (m *Ingest) RecordFailure(source, outcome string) {
	m.BatchesTotal.WithLabelValues(source, outcome).Inc()
}
