package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PromotionLookupsTotal counts promotion resolutions by outcome
	// (applied, removed, no_rule, error).
	PromotionLookupsTotal *prometheus.CounterVec
	// PromotionLookupLatency records promotion resolution latency in milliseconds.
	PromotionLookupLatency *prometheus.HistogramVec
	// PromotionStaleResults counts promotion results discarded because the line moved on.
	PromotionStaleResults prometheus.Counter
	// SortieSubmissionsTotal counts submission attempts by outcome.
	SortieSubmissionsTotal *prometheus.CounterVec
	// DraftSessions tracks the number of open editing sessions.
	DraftSessions prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromotionLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_lookups_total",
			Help:      "Count of promotion resolutions by outcome.",
		}, []string{"result"})
		PromotionLookupLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "promotion_lookup_duration_ms",
			Help:      "Latency of promotion resolutions in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"result"})
		PromotionStaleResults = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_stale_results_total",
			Help:      "Promotion results discarded because a newer edit superseded them.",
		})
		SortieSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Count of sortie submission attempts by outcome.",
		}, []string{"result"})
		DraftSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "draft_sessions",
			Help:      "Number of open sortie editing sessions.",
		})

		mustRegisterCollector(reg, PromotionLookupsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromotionLookupsTotal = v
			}
		})
		mustRegisterCollector(reg, PromotionLookupLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PromotionLookupLatency = v
			}
		})
		mustRegisterCollector(reg, PromotionStaleResults, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PromotionStaleResults = v
			}
		})
		mustRegisterCollector(reg, SortieSubmissionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SortieSubmissionsTotal = v
			}
		})
		mustRegisterCollector(reg, DraftSessions, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				DraftSessions = v
			}
		})
	})
}

// CountPromotion increments the promotion counter when metrics are registered.
func CountPromotion(result string) {
	if PromotionLookupsTotal != nil {
		PromotionLookupsTotal.WithLabelValues(result).Inc()
	}
}

// CountSubmission increments the submission counter when metrics are registered.
func CountSubmission(result string) {
	if SortieSubmissionsTotal != nil {
		SortieSubmissionsTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
