// Package metrics provides Prometheus metrics for hostbridge.
// Labels stay low-cardinality: no request tokens, paths or device addresses.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeletionsTotal counts resolved deletion requests by tier and outcome.
	DeletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostbridge_deletions_total",
		Help: "Total number of resolved deletion requests, by tier and outcome kind.",
	}, []string{"tier", "outcome"})

	// DeletionsPartialTotal counts successes that left one layer behind.
	DeletionsPartialTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostbridge_deletions_partial_total",
		Help: "Total number of deletions reported as success while the file or index row remained.",
	}, []string{"tier"})

	// DeletionsRejectedTotal counts requests turned away before any work, by reason.
	DeletionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostbridge_deletions_rejected_total",
		Help: "Total number of deletion requests rejected before execution, by reason.",
	}, []string{"reason"})

	// ConsentOutcomesTotal counts consent resolutions.
	ConsentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostbridge_consent_outcomes_total",
		Help: "Total number of consent tickets resolved, by outcome.",
	}, []string{"outcome"})

	// IndexFaultsTotal counts index operations downgraded to no signal.
	IndexFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostbridge_index_faults_total",
		Help: "Total number of content index faults swallowed during deletion, by operation.",
	}, []string{"op"})

	// PrintJobsTotal counts print jobs by result.
	PrintJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostbridge_print_jobs_total",
		Help: "Total number of print jobs, by result.",
	}, []string{"result"})

	// ConsentPending is 1 while a consent ticket is outstanding.
	ConsentPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostbridge_consent_pending",
		Help: "Number of outstanding consent tickets (0 or 1).",
	})

	// IndexEntries tracks the number of rows after the last scan.
	IndexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostbridge_index_entries",
		Help: "Number of rows in the content index after the last scan.",
	})
)

// RecordDeletion increments the deletion counter. outcome is "ok" or an
// error kind.
func RecordDeletion(tier, outcome string, partial bool) {
	DeletionsTotal.WithLabelValues(tier, outcome).Inc()
	if partial {
		DeletionsPartialTotal.WithLabelValues(tier).Inc()
	}
}

// RecordRejected increments the rejection counter.
func RecordRejected(reason string) {
	DeletionsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordConsent increments the consent outcome counter.
func RecordConsent(outcome string) {
	ConsentOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordIndexFault increments the index fault counter.
func RecordIndexFault(op string) {
	IndexFaultsTotal.WithLabelValues(op).Inc()
}

// RecordPrintJob increments the print job counter.
func RecordPrintJob(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	PrintJobsTotal.WithLabelValues(result).Inc()
}

// SetConsentPending updates the outstanding ticket gauge.
func SetConsentPending(pending bool) {
	if pending {
		ConsentPending.Set(1)
		return
	}
	ConsentPending.Set(0)
}

// SetIndexEntries updates the index size gauge.
func SetIndexEntries(n int) {
	IndexEntries.Set(float64(n))
}
