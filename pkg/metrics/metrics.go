// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActivitiesProcessedTotal tracks published activities by outcome
	ActivitiesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "fanout",
			Name:      "activities_total",
			Help:      "Total number of processed activities by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// FanoutDuration tracks full fan-out duration per activity in seconds
	FanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "fanout",
			Name:      "duration_seconds",
			Help:      "Duration of activity fan-out in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"tenant_id"},
	)

	// RecipientDeliveriesTotal tracks per-recipient delivery results
	RecipientDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "fanout",
			Name:      "recipient_deliveries_total",
			Help:      "Total number of per-recipient deliveries by result",
		},
		[]string{"tenant_id", "result"},
	)

	// RecipientsResolved tracks recipient set sizes after filtering
	RecipientsResolved = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "recipients",
			Name:      "resolved_count",
			Help:      "Number of recipients resolved per activity",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"tenant_id"},
	)

	// FollowRequestsTotal tracks follow request lifecycle transitions
	FollowRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "requests",
			Name:      "follow_requests_total",
			Help:      "Total number of follow request transitions by status",
		},
		[]string{"tenant_id", "status"},
	)

	// InboxQueryDuration tracks inbox query latency
	InboxQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "inbox",
			Name:      "query_duration_seconds",
			Help:      "Duration of inbox queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)
