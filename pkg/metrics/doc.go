/*
Package metrics provides Prometheus metrics collection and exposition for objstore.

The metrics package defines and registers objstore's metrics using the Prometheus
client library, providing observability into the identity map, commit behavior,
enumeration, and the single-writer lock. Metrics are exposed via an HTTP endpoint
for scraping by Prometheus servers.

# Architecture

objstore's metrics system follows Prometheus best practices with instrumentation
at the transaction-manager boundary rather than inside hot per-object loops:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Identity map: mode, entries, evictions     │          │
	│  │  Commit: duration, drain rounds, outcome    │          │
	│  │  Schema persistor: persists by kind         │          │
	│  │  Enumeration: duration, cursor reseeks      │          │
	│  │  Relation chain: promotions to hash index   │          │
	│  │  Writer lock: wait duration                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Gauges:
  - objstore_identity_map_mode{kind}: 0 (small) or 1 (large)
  - objstore_identity_map_entries: live entries in the last transaction

Counters:
  - objstore_identity_map_evictions_total
  - objstore_commits_total{outcome}
  - objstore_objects_stored_total / objstore_objects_deleted_total
  - objstore_schema_persists_total{kind}
  - objstore_cursor_reseeks_total
  - objstore_relation_chain_promotions_total

Histograms:
  - objstore_commit_duration_seconds
  - objstore_commit_drain_rounds
  - objstore_enumerate_duration_seconds
  - objstore_writer_wait_duration_seconds

# Usage

Recording a commit:

	timer := metrics.NewTimer()
	err := tx.Commit()
	timer.ObserveDuration(metrics.CommitDuration)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.CommitsTotal.WithLabelValues(outcome).Inc()

Serving the endpoint:

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())

Polling a live database:

	collector := metrics.NewCollector(db) // db implements metrics.StatsSource
	collector.Start()
	defer collector.Stop()

# Design Notes

Metrics are recorded at the Transaction/Database boundary (commit,
enumerate, writer-lock acquisition), never inside the per-object saver/
loader callbacks: those run once per stored object and a histogram
observation there would dominate the operation's own cost.

# See Also

  - Prometheus client docs: https://github.com/prometheus/client_golang
  - Prometheus naming conventions: https://prometheus.io/docs/practices/naming/
*/
package metrics
