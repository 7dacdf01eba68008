// Package metrics exposes Prometheus collectors for the quote finder.
// All Recorder methods are safe to call on a nil *Recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quoterag"

type Recorder struct {
	searchTotal    *prometheus.CounterVec
	searchDuration prometheus.Histogram
	providerCalls  *prometheus.CounterVec
	narratives     *prometheus.CounterVec
	storeRecords   prometheus.Gauge
	cacheLookups   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		searchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_total",
				Help:      "Total number of searches by outcome",
			},
			[]string{"outcome"}, // success or an error kind
		),
		searchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end search duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Calls to external embedding and generation providers",
			},
			[]string{"op", "status"}, // status: ok, error, timeout
		),
		narratives: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "narrative_total",
				Help:      "Narratives returned by source",
			},
			[]string{"source"},
		),
		storeRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_records",
				Help:      "Number of quotes in the serving snapshot",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_total",
				Help:      "Query embedding cache lookups by result",
			},
			[]string{"result"}, // hit, miss, shared
		),
	}
}

func (r *Recorder) ObserveSearch(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.searchTotal.WithLabelValues(outcome).Inc()
	r.searchDuration.Observe(d.Seconds())
}

func (r *Recorder) ProviderCall(op, status string) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(op, status).Inc()
}

func (r *Recorder) Narrative(source string) {
	if r == nil {
		return
	}
	r.narratives.WithLabelValues(source).Inc()
}

func (r *Recorder) StoreRecords(n int) {
	if r == nil {
		return
	}
	r.storeRecords.Set(float64(n))
}

func (r *Recorder) CacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}
