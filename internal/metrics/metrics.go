// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EligibilityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcrm_eligibility_checks_total",
			Help: "Eligibility verdicts by reason",
		},
		[]string{"reason"},
	)

	ListCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadcrm_list_check_duration_seconds",
			Help:    "Latency of partner list-membership lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	LeadsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcrm_leads_created_total",
			Help: "Leads persisted by initial status",
		},
		[]string{"status"},
	)

	BorrowerSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcrm_borrower_syncs_total",
			Help: "Borrower syncs by resulting source bucket",
		},
		[]string{"source"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadcrm_webhook_deliveries_total",
			Help: "Outbound automation events by event type and outcome",
		},
		[]string{"event", "outcome"},
	)
)
