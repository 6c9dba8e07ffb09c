package metrics

import "time"

// TxStats is the subset of objtx.Transaction / objdb.Database
// observability a Collector polls: enough to drive the identity-map and
// writer-lock gauges without pulling pkg/metrics into an import cycle
// with pkg/objtx or pkg/objdb (both of which may want to record
// metrics themselves without depending on a concrete collector).
type TxStats struct {
	IdentityMapMode    string // "small" or "large", for the most recently closed writer transaction
	IdentityMapEntries int
	WriterLockHeld     bool
}

// StatsSource is implemented by whatever owns the live database (an
// *objdb.Database in cmd/objstore) and polled periodically by Collector.
type StatsSource interface {
	Stats() TxStats
}

// Collector periodically samples a StatsSource and updates the package
// gauges, following the teacher's ticker-driven collection loop.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats := c.source.Stats()

	mode := 0.0
	if stats.IdentityMapMode == "large" {
		mode = 1.0
	}
	IdentityMapMode.WithLabelValues("last").Set(mode)
	IdentityMapEntries.Set(float64(stats.IdentityMapEntries))
}
