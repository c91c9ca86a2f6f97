package database

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/event"
)

// CMAP event names as reported in event.PoolEvent.Type.
const (
	poolEventConnectionCreated = "ConnectionCreated"
	poolEventConnectionClosed  = "ConnectionClosed"
	poolEventCheckedOut        = "ConnectionCheckedOut"
	poolEventCheckedIn         = "ConnectionCheckedIn"
	poolEventCheckOutFailed    = "ConnectionCheckOutFailed"
	poolEventPoolCleared       = "ConnectionPoolCleared"
)

// PoolStatsCollector tracks MongoDB connection pool state from driver pool
// events and exports it as Prometheus metrics. Register its Monitor on the
// client options before connecting.
type PoolStatsCollector struct {
	service string
	maxSize uint64

	open           atomic.Int64
	inUse          atomic.Int64
	created        atomic.Uint64
	checkoutFailed atomic.Uint64
	cleared        atomic.Uint64

	openDesc           *prometheus.Desc
	inUseDesc          *prometheus.Desc
	maxDesc            *prometheus.Desc
	createdDesc        *prometheus.Desc
	checkoutFailedDesc *prometheus.Desc
	clearedDesc        *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for a pool capped at maxSize
// connections.
func NewPoolStatsCollector(service string, maxSize uint64) *PoolStatsCollector {
	labels := []string{"service"}
	return &PoolStatsCollector{
		service: service,
		maxSize: maxSize,
		openDesc: prometheus.NewDesc(
			"db_pool_open_connections",
			"Number of open connections in the pool",
			labels, nil,
		),
		inUseDesc: prometheus.NewDesc(
			"db_pool_in_use_connections",
			"Number of connections currently checked out",
			labels, nil,
		),
		maxDesc: prometheus.NewDesc(
			"db_pool_max_connections",
			"Maximum number of connections allowed",
			labels, nil,
		),
		createdDesc: prometheus.NewDesc(
			"db_pool_new_connections_total",
			"Total number of new connections created",
			labels, nil,
		),
		checkoutFailedDesc: prometheus.NewDesc(
			"db_pool_checkout_failures_total",
			"Total number of failed connection checkouts",
			labels, nil,
		),
		clearedDesc: prometheus.NewDesc(
			"db_pool_cleared_total",
			"Total number of times the pool was cleared after an error",
			labels, nil,
		),
	}
}

// Monitor returns a pool monitor that feeds this collector.
func (c *PoolStatsCollector) Monitor() *event.PoolMonitor {
	return &event.PoolMonitor{Event: c.handle}
}

func (c *PoolStatsCollector) handle(e *event.PoolEvent) {
	switch e.Type {
	case poolEventConnectionCreated:
		c.open.Add(1)
		c.created.Add(1)
	case poolEventConnectionClosed:
		c.open.Add(-1)
	case poolEventCheckedOut:
		c.inUse.Add(1)
	case poolEventCheckedIn:
		c.inUse.Add(-1)
	case poolEventCheckOutFailed:
		c.checkoutFailed.Add(1)
	case poolEventPoolCleared:
		c.cleared.Add(1)
	}
}

// Describe sends the descriptors of all metrics to the provided channel.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openDesc
	ch <- c.inUseDesc
	ch <- c.maxDesc
	ch <- c.createdDesc
	ch <- c.checkoutFailedDesc
	ch <- c.clearedDesc
}

// Collect sends the current pool statistics.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.openDesc, prometheus.GaugeValue, float64(c.open.Load()), c.service)
	ch <- prometheus.MustNewConstMetric(c.inUseDesc, prometheus.GaugeValue, float64(c.inUse.Load()), c.service)
	ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(c.maxSize), c.service)
	ch <- prometheus.MustNewConstMetric(c.createdDesc, prometheus.CounterValue, float64(c.created.Load()), c.service)
	ch <- prometheus.MustNewConstMetric(c.checkoutFailedDesc, prometheus.CounterValue, float64(c.checkoutFailed.Load()), c.service)
	ch <- prometheus.MustNewConstMetric(c.clearedDesc, prometheus.CounterValue, float64(c.cleared.Load()), c.service)
}
