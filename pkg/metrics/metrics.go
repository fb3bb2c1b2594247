// Package metrics registers the process-wide Prometheus collectors for
// account pool state, crawl activity, and probe outcomes. Grounded on
// other_examples/ca1653e8_AleutianAI-AleutianFOSS__…-prefilter.go's
// promauto-registered package-level collector pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccountsByStatus tracks the current count of accounts in each of
	// the three AccountStatus values.
	AccountsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orangejuice",
		Subsystem: "accounts",
		Name:      "by_status",
		Help:      "Number of judge accounts currently in each status.",
	}, []string{"status"})

	// ActiveCrawls tracks how many crawl tasks are currently IN_PROGRESS.
	ActiveCrawls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orangejuice",
		Subsystem: "crawl",
		Name:      "active_tasks",
		Help:      "Number of crawl-testcases tasks currently IN_PROGRESS.",
	})

	// ProbesTotal counts every Submitter probe issued, labeled by probe
	// kind and outcome: "ok" for a probe that succeeded, "error" for each
	// failed attempt, "exhausted" for a probe that failed as a whole.
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orangejuice",
		Subsystem: "crawl",
		Name:      "probes_total",
		Help:      "Submitter probes issued, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// TestCasesFound counts test cases successfully discovered, labeled by
	// problem display ID.
	TestCasesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orangejuice",
		Subsystem: "crawl",
		Name:      "testcases_found_total",
		Help:      "Test cases discovered, by problem.",
	}, []string{"problem"})

	// CalibrationFailuresTotal counts NEEDS_PREDICT failures (too few
	// points or a degenerate fit).
	CalibrationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orangejuice",
		Subsystem: "crawl",
		Name:      "calibration_failures_total",
		Help:      "Measurement model calibration failures.",
	})
)
