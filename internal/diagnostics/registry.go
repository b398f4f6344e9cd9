// Package diagnostics wraps a Prometheus registerer with the advisory
// counters and gauges internal/lob, internal/wal, pkg/bus and
// internal/aggregator report through. Every metric here is advisory:
// nothing in the core branches on a counter's value, and a nil
// *Registry disables collection entirely rather than panicking.
package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric the core's optional components report
// through. Construct one with NewRegistry and pass it (or nil) to
// component constructors that accept *Registry.
type Registry struct {
	WalSegmentCount  prometheus.Gauge
	WalSegmentBytes  prometheus.Gauge
	WalRecordsTotal  prometheus.Counter
	BusEnqueuedTotal *prometheus.CounterVec
	BusDroppedTotal  *prometheus.CounterVec
	BookCrossTotal   *prometheus.CounterVec
	BookLockedTotal  *prometheus.CounterVec
	CandlesSealedTotal *prometheus.CounterVec
}

// NewRegistry constructs every metric against reg. Passing
// prometheus.NewRegistry() keeps this process's metrics isolated from
// the default global registry, matching the teacher's
// NewPrometheusRegistry convention.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		WalSegmentCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lobcore_wal_segment_count",
			Help: "Number of WAL segment files currently on disk.",
		}),
		WalSegmentBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lobcore_wal_segment_bytes",
			Help: "Total bytes across all WAL segment files.",
		}),
		WalRecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lobcore_wal_records_total",
			Help: "Total WAL records appended since process start.",
		}),
		BusEnqueuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_bus_enqueued_total",
			Help: "Total messages enqueued onto a bus subscriber, by topic.",
		}, []string{"topic"}),
		BusDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_bus_dropped_total",
			Help: "Total messages that failed delivery (full or disconnected), by topic.",
		}, []string{"topic"}),
		BookCrossTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_book_cross_total",
			Help: "Total updates that would cross the book, by symbol and resolution policy.",
		}, []string{"symbol", "policy"}),
		BookLockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_book_locked_total",
			Help: "Total State() calls that observed the book in the Locked state, by symbol.",
		}, []string{"symbol"}),
		CandlesSealedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_candles_sealed_total",
			Help: "Total candles sealed, by symbol and timeframe.",
		}, []string{"symbol", "timeframe_ns"}),
	}
}

// ObserveWalStats copies a wal.Stats-shaped snapshot into the gauges.
// Accepting plain values instead of *wal.Manager keeps this package free
// of a dependency on internal/wal.
func (r *Registry) ObserveWalStats(segmentCount int, totalBytes int64) {
	if r == nil {
		return
	}
	r.WalSegmentCount.Set(float64(segmentCount))
	r.WalSegmentBytes.Set(float64(totalBytes))
}

// IncWalRecords increments the WAL record counter by n. A nil Registry
// is a no-op, so every call site can pass an optional Registry without
// a nil check of its own.
func (r *Registry) IncWalRecords(n int) {
	if r == nil {
		return
	}
	r.WalRecordsTotal.Add(float64(n))
}

// IncBusEnqueued increments the enqueue counter for topic.
func (r *Registry) IncBusEnqueued(topic string) {
	if r == nil {
		return
	}
	r.BusEnqueuedTotal.WithLabelValues(topic).Inc()
}

// IncBusDropped increments the drop counter for topic.
func (r *Registry) IncBusDropped(topic string) {
	if r == nil {
		return
	}
	r.BusDroppedTotal.WithLabelValues(topic).Inc()
}

// IncBookCross increments the cross counter for (symbol, policy).
func (r *Registry) IncBookCross(symbol, policy string) {
	if r == nil {
		return
	}
	r.BookCrossTotal.WithLabelValues(symbol, policy).Inc()
}

// IncBookLocked increments the locked-state counter for symbol.
func (r *Registry) IncBookLocked(symbol string) {
	if r == nil {
		return
	}
	r.BookLockedTotal.WithLabelValues(symbol).Inc()
}

// IncCandlesSealed increments the sealed-candle counter for (symbol, tf).
func (r *Registry) IncCandlesSealed(symbol, timeframeNs string) {
	if r == nil {
		return
	}
	r.CandlesSealedTotal.WithLabelValues(symbol, timeframeNs).Inc()
}
