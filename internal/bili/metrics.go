package bili

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilifeed_dispatch_total",
			Help: "Upstream dispatches by endpoint and outcome (ok, transport, business, auth, malformed)",
		},
		[]string{"endpoint", "outcome"},
	)
	dispatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bilifeed_dispatch_retries_total",
			Help: "Retry attempts after retryable transport failures or upstream codes",
		},
	)
	dispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bilifeed_dispatch_latency_seconds",
			Help:    "Latency of upstream dispatches, gate wait included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bilifeed_artifact_cache_lookups_total",
			Help: "Derived-artifact cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	keyRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bilifeed_signing_key_refreshes_total",
			Help: "Signing key pair fetches from the session-info endpoint",
		},
	)
)
