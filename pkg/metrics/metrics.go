// Package metrics provides Prometheus metrics for workflow execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outreach"

var (
	// WorkflowExecutionsTotal tracks finished executions by type and history status
	WorkflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "executions_total",
			Help:      "Total number of workflow executions by type and status",
		},
		[]string{"type", "status"},
	)

	// WorkflowExecutionDuration tracks execution duration in seconds
	WorkflowExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "execution_duration_seconds",
			Help:      "Duration of workflow executions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)

	// LeadActionsTotal tracks per-lead action outcomes (resulting lead status)
	LeadActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lead",
			Name:      "actions_total",
			Help:      "Per-lead action outcomes by workflow type and resulting status",
		},
		[]string{"type", "status"},
	)

	// SchedulerDispatchesTotal tracks scheduler dispatch outcomes
	SchedulerDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Workflow dispatches per scheduler tick by outcome",
		},
		[]string{"outcome"},
	)

	// ExternalRequestsTotal tracks outbound automation API requests
	ExternalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unipile",
			Name:      "requests_total",
			Help:      "Outbound automation API requests by operation and status code",
		},
		[]string{"operation", "status_code"},
	)

	// DeadLetteredTotal tracks writes diverted to the dead letter list
	DeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deadletter",
			Name:      "entries_total",
			Help:      "Writes diverted to the dead letter list by kind",
		},
		[]string{"kind"},
	)
)
