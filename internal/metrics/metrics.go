// Package metrics exposes Prometheus counters for fetch outcomes, cache write
// status and cache clears. Metrics implements both fetcher.Observer and
// cache.Observer so write and clear failures are visible without being
// propagated to fetch callers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recipe-hub/recipe-hub/internal/cache"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op observer.
type Metrics struct {
	registry       *prometheus.Registry
	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	cacheWrites    *prometheus.CounterVec
	cacheClears    *prometheus.CounterVec
	clearedEntries *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipe_hub_fetch_total",
		Help: "Total image fetches by outcome",
	}, []string{"outcome"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recipe_hub_fetch_duration_seconds",
		Help:    "Image fetch latency by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	cacheWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipe_hub_cache_writes_total",
		Help: "Total write-through attempts by result",
	}, []string{"result"})

	cacheClears := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipe_hub_cache_clears_total",
		Help: "Total cache clears by reason and result",
	}, []string{"reason", "result"})

	clearedEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipe_hub_cache_cleared_entries_total",
		Help: "Total cache entries removed by clears",
	}, []string{"reason"})

	registry.MustRegister(fetches, fetchDuration, cacheWrites, cacheClears, clearedEntries)

	return &Metrics{
		registry:       registry,
		fetches:        fetches,
		fetchDuration:  fetchDuration,
		cacheWrites:    cacheWrites,
		cacheClears:    cacheClears,
		clearedEntries: clearedEntries,
	}
}

// ObserveFetch counts one fetch and records its latency under outcome.
func (m *Metrics) ObserveFetch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveCacheWrite counts one write-through attempt as ok or error.
func (m *Metrics) ObserveCacheWrite(err error) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveClear counts one clear as ok, error or partial and adds the number
// of removed entries.
func (m *Metrics) ObserveClear(reason string, result cache.ClearResult, err error) {
	if m == nil {
		return
	}
	label := resultLabel(err)
	if err != nil && result.Removed > 0 {
		label = "partial"
	}
	m.cacheClears.WithLabelValues(reason, label).Inc()
	m.clearedEntries.WithLabelValues(reason).Add(float64(result.Removed))
}

// Registry returns the private registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
