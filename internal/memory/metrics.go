package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendRemote = "remote"
	backendLocal  = "local"
	backendNone   = "none"

	outcomeOK       = "ok"
	outcomeDenied   = "denied"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiered_memory",
			Name:      "operations_total",
			Help:      "Client operations by serving backend and outcome.",
		},
		[]string{"op", "backend", "outcome"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiered_memory",
			Name:      "fallbacks_total",
			Help:      "Remote failures absorbed by the local fallback path.",
		},
		[]string{"op"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiered_memory",
			Name:      "operation_duration_seconds",
			Help:      "Client operation latency including fallback.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)
