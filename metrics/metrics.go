package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarot_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tarot_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// outcome: served, cooldown, invalid, failed, busy
	ReadingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarot_readings_total",
		Help: "Reading requests by outcome.",
	}, []string{"outcome"})

	AIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tarot_ai_request_duration_seconds",
		Help:    "Generative provider call latency by operation.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"provider", "operation"})

	AIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarot_ai_errors_total",
		Help: "Generative provider failures by operation and kind.",
	}, []string{"provider", "operation", "kind"})

	// result: hit, miss, fallback
	HoroscopeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarot_horoscope_cache_total",
		Help: "Horoscope requests by cache result.",
	}, []string{"result"})

	// transition: subscribe, rating_reward, ad_bypass, expired
	PremiumTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarot_premium_transitions_total",
		Help: "Entitlement changes by transition.",
	}, []string{"transition"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tarot_active_sessions",
		Help: "Open session streams.",
	})
)
