// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("threadguard.engine")

// =============================================================================
// Prometheus Metrics for Unit Evaluation
// =============================================================================

var (
	// unitsTotal counts evaluated units.
	// Labels: status (ok, partial, error)
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadguard",
		Subsystem: "engine",
		Name:      "units_total",
		Help:      "Total source units evaluated",
	}, []string{"status"})

	// unitDuration measures evaluation time per unit, parse excluded.
	unitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "threadguard",
		Subsystem: "engine",
		Name:      "unit_duration_seconds",
		Help:      "Time to evaluate all rules on one unit",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	})

	// diagnosticsTotal counts reported diagnostics after suppression.
	// Labels: rule
	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadguard",
		Subsystem: "engine",
		Name:      "diagnostics_total",
		Help:      "Total diagnostics reported",
	}, []string{"rule"})

	// suppressedTotal counts diagnostics dropped by inline directives.
	// Labels: rule
	suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadguard",
		Subsystem: "engine",
		Name:      "suppressed_total",
		Help:      "Total diagnostics suppressed by inline directives",
	}, []string{"rule"})

	// ruleFailuresTotal counts rule faults isolated by the engine.
	// Labels: rule, reason (error, panic)
	ruleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadguard",
		Subsystem: "engine",
		Name:      "rule_failures_total",
		Help:      "Total rule failures isolated from other rules",
	}, []string{"rule", "reason"})
)
