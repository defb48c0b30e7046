package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_messages_total",
			Help: "Handler invocations, labeled by topic and result (success, retry, exhausted).",
		},
		[]string{"topic", "result"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_consumer_handler_duration_seconds",
			Help:    "Duration of a single handler attempt in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	commitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_commit_failures_total",
			Help: "Offset commits that failed. Each one may cause duplicate delivery.",
		},
		[]string{"topic"},
	)
)
