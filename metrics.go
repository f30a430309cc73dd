package sentry

import (
	"github.com/getsentry/sentry-go-ratelimit/internal/report"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "sentry_client"

// Collector exposes the rate limiting and client report state of a Client
// as Prometheus metrics:
//
//	sentry_client_discarded_events_total{reason,category}
//	sentry_client_rate_limited{category}
//	sentry_client_buffered_items{category}
//	sentry_client_buffer_dropped_items_total{category}
//
// Discarded events are counted from the moment the Collector is created.
type Collector struct {
	client *Client

	discarded     *prometheus.CounterVec
	rateLimited   *prometheus.Desc
	buffered      *prometheus.Desc
	bufferDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for client. Register it with a
// prometheus.Registerer to export the metrics.
func NewCollector(client *Client) *Collector {
	c := &Collector{
		client: client,
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discarded_events_total",
			Help:      "Payloads dropped by the SDK, by discard reason and data category.",
		}, []string{"reason", "category"}),
		rateLimited: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "rate_limited"),
			"1 while the server rate limits the data category, 0 otherwise.",
			[]string{"category"}, nil,
		),
		buffered: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "buffered_items"),
			"Captured items waiting for the next flush.",
			[]string{"category"}, nil,
		),
		bufferDropped: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "buffer_dropped_items_total"),
			"Captured items evicted from a full category buffer.",
			[]string{"category"}, nil,
		),
	}

	client.recorder.SetObserver(func(reason report.DiscardReason, category DataCategory, quantity int64) {
		c.discarded.WithLabelValues(string(reason), category.Label()).Add(float64(quantity))
	})

	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.discarded.Describe(ch)
	ch <- c.rateLimited
	ch <- c.buffered
	ch <- c.bufferDropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.discarded.Collect(ch)

	// A limit on DataCategoryAll shows up on every category.
	for _, category := range DataCategories() {
		if category == DataCategoryAll {
			continue
		}
		var limited float64
		if c.client.IsRateLimited(category) {
			limited = 1
		}
		ch <- prometheus.MustNewConstMetric(c.rateLimited, prometheus.GaugeValue, limited, category.Label())
	}

	for _, m := range c.client.buffers.Metrics() {
		label := m.Category.Label()
		ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(m.Size), label)
		ch <- prometheus.MustNewConstMetric(c.bufferDropped, prometheus.CounterValue, float64(m.DroppedCount), label)
	}
}
