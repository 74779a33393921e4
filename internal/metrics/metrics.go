// Package metrics exposes Prometheus counters for the batch subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deduction_batches_generated_total",
		Help: "Deduction batches generated, by tenant.",
	}, []string{"tenant"})

	GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deduction_generation_failures_total",
		Help: "Failed batch generations, by failure reason.",
	}, []string{"reason"})

	ItemsOverLimit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deduction_items_over_limit_total",
		Help: "Generated items flagged over the salary-protection limit.",
	})

	ReconciliationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_runs_total",
		Help: "Reconciliation runs, by tenant.",
	}, []string{"tenant"})

	ReconciliationItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_items_total",
		Help: "Reconciliation items produced, by match status.",
	}, []string{"status"})

	SuspenseEntriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suspense_entries_created_total",
		Help: "Suspense ledger entries opened by reconciliation.",
	})

	RemittanceRowErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remittance_row_errors_total",
		Help: "Unparsable rows encountered in actual-remittance files.",
	})
)
