package metrics

import (
	"strconv"

	"BarPull/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	chunksTotal    *prometheus.CounterVec
	chunkBars      *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	barsSaved      *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
	completeness   *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder whose collectors live on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		chunksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_chunks_total",
				Help: "Chunks resolved by the provider chain, by outcome",
			},
			[]string{"provider", "outcome"},
		),
		chunkBars: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_chunk_bars_total",
				Help: "Bars returned by providers",
			},
			[]string{"provider"},
		),
		providerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_provider_errors_total",
				Help: "Provider failures after retries, by classification",
			},
			[]string{"provider", "kind"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_provider_retries_total",
				Help: "Retries of transient provider failures",
			},
			[]string{"provider"},
		),
		barsSaved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_bars_saved_total",
				Help: "Bars written to the store",
			},
			[]string{"symbol", "timeframe", "op"},
		),
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_jobs_total",
				Help: "Finished jobs by kind and success",
			},
			[]string{"kind", "success"},
		),
		completeness: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barpull_completeness_percent",
				Help: "Latest completeness percentage per series",
			},
			[]string{"symbol", "timeframe"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordChunk records one resolved chunk.
func (r *Recorder) RecordChunk(provider string, outcome models.ChunkOutcome, bars int) {
	if provider == "" {
		provider = "none"
	}
	r.chunksTotal.WithLabelValues(provider, string(outcome)).Inc()
	if bars > 0 {
		r.chunkBars.WithLabelValues(provider).Add(float64(bars))
	}
}

func (r *Recorder) RecordProviderError(provider, kind string) {
	r.providerErrors.WithLabelValues(provider, kind).Inc()
}

func (r *Recorder) RecordRetry(provider string) {
	r.retriesTotal.WithLabelValues(provider).Inc()
}

// RecordBarsSaved records inserted and updated rows of one upsert.
func (r *Recorder) RecordBarsSaved(symbol string, tf models.Timeframe, inserted, updated int) {
	if inserted > 0 {
		r.barsSaved.WithLabelValues(symbol, string(tf), "insert").Add(float64(inserted))
	}
	if updated > 0 {
		r.barsSaved.WithLabelValues(symbol, string(tf), "update").Add(float64(updated))
	}
}

func (r *Recorder) RecordJob(kind models.JobKind, success bool) {
	r.jobsTotal.WithLabelValues(string(kind), strconv.FormatBool(success)).Inc()
}

// RecordCompleteness sets the latest completeness gauge for a series.
func (r *Recorder) RecordCompleteness(symbol string, tf models.Timeframe, pct float64) {
	r.completeness.WithLabelValues(symbol, string(tf)).Set(pct)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
