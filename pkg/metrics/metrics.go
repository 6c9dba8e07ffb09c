package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Identity map metrics

	IdentityMapMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "objstore_identity_map_mode",
			Help: "Whether the identity map is in small (0) or large (1) mode, by transaction kind",
		},
		[]string{"kind"},
	)

	IdentityMapEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objstore_identity_map_entries",
			Help: "Live entries in the identity map of the most recent transaction",
		},
	)

	IdentityMapEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objstore_identity_map_evictions_total",
			Help: "Total large-mode identity map entries evicted to stay within capacity",
		},
	)

	// Commit metrics

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_commit_duration_seconds",
			Help:    "Time taken to commit a writer transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitDrainRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_commit_drain_rounds",
			Help:    "Number of dirty-set drain rounds a commit needed to reach a fixpoint",
			Buckets: []float64{1, 2, 3, 4, 5, 10, 25, 100},
		},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objstore_commits_total",
			Help: "Total commits attempted, by outcome",
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	ObjectsStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objstore_objects_stored_total",
			Help: "Total objects written at commit across all transactions",
		},
	)

	ObjectsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objstore_objects_deleted_total",
			Help: "Total objects erased at commit across all transactions",
		},
	)

	// Schema persistor metrics

	SchemaPersistsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objstore_schema_persists_total",
			Help: "Total table schema records written at commit, by kind",
		},
		[]string{"kind"}, // "version" or "singleton_oid"
	)

	// Enumeration / cursor metrics

	EnumerateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_enumerate_duration_seconds",
			Help:    "Wall-clock time a full Enumerate pass took to exhaust",
			Buckets: prometheus.DefBuckets,
		},
	)

	CursorReseeksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objstore_cursor_reseeks_total",
			Help: "Total times the cursor guard detected an out-of-band move and reseeked",
		},
	)

	// Relation chain metrics

	RelationChainPromotionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objstore_relation_chain_promotions_total",
			Help: "Total relation chains promoted from linear scan to a hash index",
		},
	)

	// Writer lock metrics

	WriterWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objstore_writer_wait_duration_seconds",
			Help:    "Time a BeginUpdate call spent waiting for the single writer slot",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		IdentityMapMode,
		IdentityMapEntries,
		IdentityMapEvictions,
		CommitDuration,
		CommitDrainRounds,
		CommitsTotal,
		ObjectsStoredTotal,
		ObjectsDeletedTotal,
		SchemaPersistsTotal,
		EnumerateDuration,
		CursorReseeksTotal,
		RelationChainPromotionsTotal,
		WriterWaitDuration,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
