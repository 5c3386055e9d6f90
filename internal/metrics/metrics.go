package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg             *prometheus.Registry
	RunsTotal       *prometheus.CounterVec
	RunDurationSec  prometheus.Histogram
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	FetchErrors     *prometheus.CounterVec
	RecordsSkipped  prometheus.Counter
	NewProducts     prometheus.Counter
	UpdatedProducts prometheus.Counter
	NewOrders       prometheus.Counter
	UpdatedOrders   prometheus.Counter

	// runstats exporter gauges
	LastRunAgeSec  prometheus.Gauge
	LastRunSuccess prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cpipe_runs_total"}, []string{"status"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cpipe_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cpipe_cache_hits_total"}, []string{"provider"})
	cacheMisses := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cpipe_cache_misses_total"}, []string{"provider"})
	fetchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cpipe_fetch_errors_total"}, []string{"provider"})
	recordsSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "cpipe_records_skipped_total"})
	newProducts := prometheus.NewCounter(prometheus.CounterOpts{Name: "cpipe_products_new_total"})
	updatedProducts := prometheus.NewCounter(prometheus.CounterOpts{Name: "cpipe_products_updated_total"})
	newOrders := prometheus.NewCounter(prometheus.CounterOpts{Name: "cpipe_orders_new_total"})
	updatedOrders := prometheus.NewCounter(prometheus.CounterOpts{Name: "cpipe_orders_updated_total"})

	lastAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "cpipe_last_run_age_seconds"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "cpipe_last_run_success"})

	r.MustRegister(runs, duration, cacheHits, cacheMisses, fetchErrors, recordsSkipped,
		newProducts, updatedProducts, newOrders, updatedOrders, lastAge, lastSuccess)
	return &Registry{
		reg:             r,
		RunsTotal:       runs,
		RunDurationSec:  duration,
		CacheHits:       cacheHits,
		CacheMisses:     cacheMisses,
		FetchErrors:     fetchErrors,
		RecordsSkipped:  recordsSkipped,
		NewProducts:     newProducts,
		UpdatedProducts: updatedProducts,
		NewOrders:       newOrders,
		UpdatedOrders:   updatedOrders,
		LastRunAgeSec:   lastAge,
		LastRunSuccess:  lastSuccess,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
