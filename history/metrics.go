package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_history_messages_total",
			Help: "Audit messages seen by the history processor, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_history_cache_lookups_total",
			Help: "Audit log cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
)
