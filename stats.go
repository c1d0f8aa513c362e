package stratacache

// Metric names reported by the coordinator.
const (
	MetricHits       = "stratacache_hits_total"
	MetricMisses     = "stratacache_misses_total"
	MetricBackfills  = "stratacache_backfills_total"
	MetricPromotions = "stratacache_promotions_total"
	MetricFallbacks  = "stratacache_fallbacks_total"

	MetricTxCommitted = "stratacache_transactions_committed_total"
	MetricTxAborted   = "stratacache_transactions_aborted_total"

	MetricLockWaitSeconds = "stratacache_lock_wait_seconds"
)

// Collector receives operational metrics from the coordinator.
// Implementations must be cheap; the coordinator calls them on hot paths.
// A Prometheus-backed implementation lives in stats/prometheus.
type Collector interface {
	IncCounter(name string, delta int64)
	SetGauge(name string, value int64)
	ObserveHistogram(name string, value float64)
}

// NopCollector is the default when Options.Stats is nil.
type NopCollector struct{}

func (NopCollector) IncCounter(string, int64)         {}
func (NopCollector) SetGauge(string, int64)           {}
func (NopCollector) ObserveHistogram(string, float64) {}
