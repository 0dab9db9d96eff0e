package sparsetile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Builder reports to.
// A nil *Metrics disables reporting.
type Metrics struct {
	TilesIngested      prometheus.Counter
	IngestErrors       prometheus.Counter
	PayloadBytes       *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	FinalizeDuration   prometheus.Histogram
	ColumnMapUnmatched prometheus.Counter
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	tilesIngested := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sparsetile",
		Name:      "tiles_ingested_total",
		Help:      "Blocks localized and stored",
	})

	ingestErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sparsetile",
		Name:      "ingest_errors_total",
		Help:      "Ingest calls that failed",
	})

	payloadBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sparsetile",
		Name:      "payload_bytes_total",
		Help:      "Bytes handed to the store, by payload kind",
	}, []string{"kind"})

	ingestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sparsetile",
		Name:      "ingest_duration_seconds",
		Help:      "Time spent in Ingest",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	finalizeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sparsetile",
		Name:      "finalize_duration_seconds",
		Help:      "Time spent in Finalize",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	unmatched := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sparsetile",
		Name:      "colmap_unmatched_total",
		Help:      "Local features absent from the global id union",
	})

	reg.MustRegister(tilesIngested, ingestErrors, payloadBytes, ingestDuration, finalizeDuration, unmatched)

	return &Metrics{
		TilesIngested:      tilesIngested,
		IngestErrors:       ingestErrors,
		PayloadBytes:       payloadBytes,
		IngestDuration:     ingestDuration,
		FinalizeDuration:   finalizeDuration,
		ColumnMapUnmatched: unmatched,
	}
}

func (m *Metrics) observeIngest(start time.Time, err error) {
	if m == nil {
		return
	}
	m.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.IngestErrors.Inc()
		return
	}
	m.TilesIngested.Inc()
}

func (m *Metrics) observeFinalize(start time.Time) {
	if m == nil {
		return
	}
	m.FinalizeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) addPayload(kind payloadKind, n int) {
	if m == nil {
		return
	}
	m.PayloadBytes.WithLabelValues(kind.String()).Add(float64(n))
}

func (m *Metrics) addUnmatched(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ColumnMapUnmatched.Add(float64(n))
}
