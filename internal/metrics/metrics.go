package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DarajaRequestsTotal tracks outbound calls to the Daraja API.
	DarajaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daraja_api_requests_total",
			Help: "Total number of Daraja API requests made (by endpoint, method, and status).",
		},
		[]string{"endpoint", "method", "status"},
	)

	// DarajaRequestDuration measures the duration of outbound Daraja calls.
	DarajaRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daraja_api_request_duration_seconds",
			Help:    "Duration of Daraja API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// TokenCacheAccess counts access token cache hits and misses.
	TokenCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daraja_token_cache_total",
			Help: "Access token cache lookups by result.",
		},
		[]string{"result"}, // hit | miss
	)

	// TokenRefreshTotal counts OAuth exchanges by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daraja_token_refresh_total",
			Help: "OAuth client-credentials exchanges by result.",
		},
		[]string{"result"}, // ok | error
	)

	// C2BCallbacksTotal counts inbound C2B webhook callbacks by kind and the result code returned.
	C2BCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "c2b_callbacks_total",
			Help: "Inbound C2B callbacks by kind and result code.",
		},
		[]string{"kind", "result_code"},
	)

	// NATSMessageCount tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// SecretsCacheHits tracks cache hits and misses for resolved credentials.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"},
	)
)

// IncDarajaRequest increments the Daraja API request counter.
func IncDarajaRequest(endpoint, method, status string) {
	DarajaRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncTokenCache records a token cache hit or miss.
func IncTokenCache(result string) {
	TokenCacheAccess.WithLabelValues(result).Inc()
}

// IncTokenRefresh records the outcome of an OAuth exchange.
func IncTokenRefresh(result string) {
	TokenRefreshTotal.WithLabelValues(result).Inc()
}

// IncC2BCallback records an answered C2B callback.
func IncC2BCallback(kind, resultCode string) {
	C2BCallbacksTotal.WithLabelValues(kind, resultCode).Inc()
}

// IncNATSMessage increments the NATS message counter.
func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

// IncSecretsCache records a secrets cache hit or miss.
func IncSecretsCache(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
