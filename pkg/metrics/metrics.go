package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// API client metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sastre_api_requests_total",
			Help: "Total number of controller API requests by method and status code",
		},
		[]string{"method", "status"},
	)

	APIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sastre_api_retries_total",
			Help: "Total number of request retries by reason",
		},
		[]string{"reason"},
	)

	APIRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sastre_api_request_duration_seconds",
			Help:    "Controller API request round-trip latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Task metrics
	ItemsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sastre_items_saved_total",
			Help: "Total number of items written to the local store by tag",
		},
		[]string{"tag"},
	)

	ItemsPushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sastre_items_pushed_total",
			Help: "Total number of items pushed to the controller by operation",
		},
		[]string{"op"},
	)

	ItemsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sastre_items_deleted_total",
			Help: "Total number of items deleted from the controller",
		},
	)

	ItemFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sastre_item_failures_total",
			Help: "Total number of item-local failures by task",
		},
		[]string{"task"},
	)

	// Async action metrics
	ActionsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sastre_actions_submitted_total",
			Help: "Total number of long-running controller actions submitted by category",
		},
		[]string{"category"},
	)

	ActionPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sastre_action_polls_total",
			Help: "Total number of action status poll requests",
		},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sastre_action_duration_seconds",
			Help:    "Wall time from action submission to terminal status",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRetriesTotal,
		APIRequestDuration,
		ItemsSavedTotal,
		ItemsPushedTotal,
		ItemsDeletedTotal,
		ItemFailuresTotal,
		ActionsSubmittedTotal,
		ActionPollsTotal,
		ActionDuration,
	)
}
