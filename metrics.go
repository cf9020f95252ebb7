package vecstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    searchCounter   prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSearch(collection string, limit int, duration time.Duration, err error) {
//	    p.searchCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordGetCollection is called after each collection resolution.
	// custom is true when a CollectionFactory produced the collection.
	RecordGetCollection(backend string, custom bool, err error)

	// RecordListCollections is called after each collection listing.
	RecordListCollections(backend string, duration time.Duration, err error)

	// RecordPrepare is called after each store preparation.
	RecordPrepare(backend string, duration time.Duration, err error)

	// RecordUpsert is called after each upsert operation.
	RecordUpsert(collection string, duration time.Duration, err error)

	// RecordGet is called after each point lookup.
	RecordGet(collection string, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(collection string, duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// limit is the number of matches requested.
	RecordSearch(collection string, limit int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGetCollection(string, bool, error)            {}
func (NoopMetricsCollector) RecordListCollections(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordPrepare(string, time.Duration, error)         {}
func (NoopMetricsCollector) RecordUpsert(string, time.Duration, error)          {}
func (NoopMetricsCollector) RecordGet(string, time.Duration, error)             {}
func (NoopMetricsCollector) RecordDelete(string, time.Duration, error)          {}
func (NoopMetricsCollector) RecordSearch(string, int, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCollectionCount  atomic.Int64
	GetCollectionCustom atomic.Int64
	GetCollectionErrors atomic.Int64
	ListCount           atomic.Int64
	ListErrors          atomic.Int64
	ListTotalNanos      atomic.Int64
	PrepareCount        atomic.Int64
	PrepareErrors       atomic.Int64
	UpsertCount         atomic.Int64
	UpsertErrors        atomic.Int64
	UpsertTotalNanos    atomic.Int64
	GetCount            atomic.Int64
	GetErrors           atomic.Int64
	DeleteCount         atomic.Int64
	DeleteErrors        atomic.Int64
	SearchCount         atomic.Int64
	SearchErrors        atomic.Int64
	SearchTotalNanos    atomic.Int64
}

// RecordGetCollection implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGetCollection(backend string, custom bool, err error) {
	b.GetCollectionCount.Add(1)
	if custom {
		b.GetCollectionCustom.Add(1)
	}
	if err != nil {
		b.GetCollectionErrors.Add(1)
	}
}

// RecordListCollections implements MetricsCollector.
func (b *BasicMetricsCollector) RecordListCollections(backend string, duration time.Duration, err error) {
	b.ListCount.Add(1)
	b.ListTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ListErrors.Add(1)
	}
}

// RecordPrepare implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrepare(backend string, duration time.Duration, err error) {
	b.PrepareCount.Add(1)
	if err != nil {
		b.PrepareErrors.Add(1)
	}
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(collection string, duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(collection string, duration time.Duration, err error) {
	b.GetCount.Add(1)
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(collection string, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(collection string, limit int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCollectionCount:  b.GetCollectionCount.Load(),
		GetCollectionCustom: b.GetCollectionCustom.Load(),
		GetCollectionErrors: b.GetCollectionErrors.Load(),
		ListCount:           b.ListCount.Load(),
		ListErrors:          b.ListErrors.Load(),
		ListAvgNanos:        avgNanos(&b.ListTotalNanos, &b.ListCount),
		PrepareCount:        b.PrepareCount.Load(),
		PrepareErrors:       b.PrepareErrors.Load(),
		UpsertCount:         b.UpsertCount.Load(),
		UpsertErrors:        b.UpsertErrors.Load(),
		UpsertAvgNanos:      avgNanos(&b.UpsertTotalNanos, &b.UpsertCount),
		GetCount:            b.GetCount.Load(),
		GetErrors:           b.GetErrors.Load(),
		DeleteCount:         b.DeleteCount.Load(),
		DeleteErrors:        b.DeleteErrors.Load(),
		SearchCount:         b.SearchCount.Load(),
		SearchErrors:        b.SearchErrors.Load(),
		SearchAvgNanos:      avgNanos(&b.SearchTotalNanos, &b.SearchCount),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	c := count.Load()
	if c == 0 {
		return 0
	}
	return total.Load() / c
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCollectionCount  int64
	GetCollectionCustom int64
	GetCollectionErrors int64
	ListCount           int64
	ListErrors          int64
	ListAvgNanos        int64
	PrepareCount        int64
	PrepareErrors       int64
	UpsertCount         int64
	UpsertErrors        int64
	UpsertAvgNanos      int64
	GetCount            int64
	GetErrors           int64
	DeleteCount         int64
	DeleteErrors        int64
	SearchCount         int64
	SearchErrors        int64
	SearchAvgNanos      int64
}
