// Package metrics exposes Prometheus collectors for the deal pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "winedeals"

// Trigger outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	triggerRuns     *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
	deals           *prometheus.CounterVec
	shopFailures    *prometheus.CounterVec
	emails          *prometheus.CounterVec
	deactivated     prometheus.Counter
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		triggerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_runs_total",
			Help:      "Scheduler trigger runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		triggerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trigger_duration_seconds",
			Help:      "Scheduler trigger run time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"trigger"}),
		deals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_deals_total",
			Help:      "Raw observations processed by shop and result.",
		}, []string{"shop", "result"}),
		shopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shop_fetch_failures_total",
			Help:      "Shops that could not be fetched.",
		}, []string{"shop"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Emails handed to the mail transport by kind and outcome.",
		}, []string{"kind", "outcome"}),
		deactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deactivated_deals_total",
			Help:      "Deals deactivated by cleanup.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.triggerRuns,
		m.triggerDuration,
		m.deals,
		m.shopFailures,
		m.emails,
		m.deactivated,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTrigger records one trigger run that started at start.
func (m *Metrics) ObserveTrigger(trigger string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.triggerRuns.WithLabelValues(trigger, outcome(err)).Inc()
	m.triggerDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
}

// ObserveShop records one shop's ingestion counts.
func (m *Metrics) ObserveShop(shop string, created, merged, rejected, dropped int, failed bool) {
	if m == nil {
		return
	}
	m.deals.WithLabelValues(shop, "created").Add(float64(created))
	m.deals.WithLabelValues(shop, "merged").Add(float64(merged))
	m.deals.WithLabelValues(shop, "rejected").Add(float64(rejected))
	m.deals.WithLabelValues(shop, "dropped").Add(float64(dropped))
	if failed {
		m.shopFailures.WithLabelValues(shop).Inc()
	}
}

// ObserveEmail records one send attempt of the given kind ("digest", "test").
func (m *Metrics) ObserveEmail(kind string, err error) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveCleanup records deals deactivated by one cleanup run.
func (m *Metrics) ObserveCleanup(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.deactivated.Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}
