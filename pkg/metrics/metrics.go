// Package metrics exports L-Store's buffer pool and query counters as
// Prometheus metrics, replacing a hand-rolled text exporter with
// github.com/prometheus/client_golang's Collector interface.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lstore-db/lstore/pkg/storage"
)

// Counters holds the query-engine-side counters a server wraps around
// Insert/Select/Update/Delete/Sum calls. Buffer pool counters live on
// storage.BufferPool itself and are read directly in Collect.
type Counters struct {
	QueriesExecuted atomic.Uint64
	QueriesFailed   atomic.Uint64
	InsertsExecuted atomic.Uint64
	InsertsFailed   atomic.Uint64
	UpdatesExecuted atomic.Uint64
	UpdatesFailed   atomic.Uint64
	DeletesExecuted atomic.Uint64
	DeletesFailed   atomic.Uint64
	SumsExecuted    atomic.Uint64
	SumsFailed      atomic.Uint64
	MergesCompleted atomic.Uint64
}

// NewCounters returns a zeroed counter set.
func NewCounters() *Counters { return &Counters{} }

// Collector implements prometheus.Collector over a buffer pool and a
// set of query counters.
type Collector struct {
	pool     *storage.BufferPool
	counters *Counters

	bufferHits        *prometheus.Desc
	bufferMisses      *prometheus.Desc
	bufferEvictions   *prometheus.Desc
	bufferSoftGrowths *prometheus.Desc
	bufferResident    *prometheus.Desc
	bufferCapacity    *prometheus.Desc

	queriesTotal       *prometheus.Desc
	queriesFailedTotal *prometheus.Desc
	insertsTotal       *prometheus.Desc
	insertsFailedTotal *prometheus.Desc
	updatesTotal       *prometheus.Desc
	updatesFailedTotal *prometheus.Desc
	deletesTotal       *prometheus.Desc
	deletesFailedTotal *prometheus.Desc
	sumsTotal          *prometheus.Desc
	sumsFailedTotal    *prometheus.Desc
	mergesTotal        *prometheus.Desc
}

// NewCollector builds a Collector under the given metric namespace
// (e.g. "lstore"). Register it with a prometheus.Registry and serve
// that registry with promhttp.HandlerFor.
func NewCollector(namespace string, pool *storage.BufferPool, counters *Counters) *Collector {
	if namespace == "" {
		namespace = "lstore"
	}
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		pool:     pool,
		counters: counters,

		bufferHits:        mk("buffer_pool_hits_total", "Buffer pool page hits"),
		bufferMisses:      mk("buffer_pool_misses_total", "Buffer pool page misses"),
		bufferEvictions:   mk("buffer_pool_evictions_total", "Buffer pool page evictions"),
		bufferSoftGrowths: mk("buffer_pool_soft_growths_total", "Buffer pool soft-capacity growth events"),
		bufferResident:    mk("buffer_pool_resident_pages", "Pages currently resident in the buffer pool"),
		bufferCapacity:    mk("buffer_pool_capacity_pages", "Buffer pool capacity in pages"),

		queriesTotal:       mk("queries_total", "Total query-engine operations executed"),
		queriesFailedTotal: mk("queries_failed_total", "Total query-engine operations that failed"),
		insertsTotal:       mk("inserts_total", "Total insert operations executed"),
		insertsFailedTotal: mk("inserts_failed_total", "Total insert operations that failed"),
		updatesTotal:       mk("updates_total", "Total update operations executed"),
		updatesFailedTotal: mk("updates_failed_total", "Total update operations that failed"),
		deletesTotal:       mk("deletes_total", "Total delete operations executed"),
		deletesFailedTotal: mk("deletes_failed_total", "Total delete operations that failed"),
		sumsTotal:          mk("sums_total", "Total range-sum operations executed"),
		sumsFailedTotal:    mk("sums_failed_total", "Total range-sum operations that failed"),
		mergesTotal:        mk("merges_completed_total", "Total merge passes completed"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.bufferHits, c.bufferMisses, c.bufferEvictions, c.bufferSoftGrowths, c.bufferResident, c.bufferCapacity,
		c.queriesTotal, c.queriesFailedTotal,
		c.insertsTotal, c.insertsFailedTotal,
		c.updatesTotal, c.updatesFailedTotal,
		c.deletesTotal, c.deletesFailedTotal,
		c.sumsTotal, c.sumsFailedTotal,
		c.mergesTotal,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.bufferHits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.bufferMisses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.bufferEvictions, prometheus.CounterValue, float64(stats.Evictions))
	ch <- prometheus.MustNewConstMetric(c.bufferSoftGrowths, prometheus.CounterValue, float64(stats.SoftGrowths))
	ch <- prometheus.MustNewConstMetric(c.bufferResident, prometheus.GaugeValue, float64(stats.Resident))
	ch <- prometheus.MustNewConstMetric(c.bufferCapacity, prometheus.GaugeValue, float64(stats.Capacity))

	ch <- prometheus.MustNewConstMetric(c.queriesTotal, prometheus.CounterValue, float64(c.counters.QueriesExecuted.Load()))
	ch <- prometheus.MustNewConstMetric(c.queriesFailedTotal, prometheus.CounterValue, float64(c.counters.QueriesFailed.Load()))
	ch <- prometheus.MustNewConstMetric(c.insertsTotal, prometheus.CounterValue, float64(c.counters.InsertsExecuted.Load()))
	ch <- prometheus.MustNewConstMetric(c.insertsFailedTotal, prometheus.CounterValue, float64(c.counters.InsertsFailed.Load()))
	ch <- prometheus.MustNewConstMetric(c.updatesTotal, prometheus.CounterValue, float64(c.counters.UpdatesExecuted.Load()))
	ch <- prometheus.MustNewConstMetric(c.updatesFailedTotal, prometheus.CounterValue, float64(c.counters.UpdatesFailed.Load()))
	ch <- prometheus.MustNewConstMetric(c.deletesTotal, prometheus.CounterValue, float64(c.counters.DeletesExecuted.Load()))
	ch <- prometheus.MustNewConstMetric(c.deletesFailedTotal, prometheus.CounterValue, float64(c.counters.DeletesFailed.Load()))
	ch <- prometheus.MustNewConstMetric(c.sumsTotal, prometheus.CounterValue, float64(c.counters.SumsExecuted.Load()))
	ch <- prometheus.MustNewConstMetric(c.sumsFailedTotal, prometheus.CounterValue, float64(c.counters.SumsFailed.Load()))
	ch <- prometheus.MustNewConstMetric(c.mergesTotal, prometheus.CounterValue, float64(c.counters.MergesCompleted.Load()))
}
