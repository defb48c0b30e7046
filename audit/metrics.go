package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeEnqueued = "enqueued"
	outcomeFailed   = "failed"
	outcomeDropped  = "dropped"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_published_total",
			Help: "Audit events handed to a publisher, labeled by sink and outcome.",
		},
		[]string{"sink", "outcome"},
	)

	deliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_delivery_failures_total",
			Help: "Audit events the bus reported as undeliverable after enqueue.",
		},
		[]string{"topic"},
	)
)
