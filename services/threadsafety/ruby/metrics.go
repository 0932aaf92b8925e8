// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ruby

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for Ruby parsing.
var (
	tracer = otel.Tracer("threadguard.ruby")
	meter  = otel.Meter("threadguard.ruby")
)

// Metrics for Ruby parsing.
var (
	parseLatency   metric.Float64Histogram
	parseTotal     metric.Int64Counter
	nodesConverted metric.Int64Histogram
	syntaxErrors   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"threadguard_ruby_parse_duration_seconds",
			metric.WithDescription("Duration of Ruby parse and conversion"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"threadguard_ruby_parse_total",
			metric.WithDescription("Total number of Ruby parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesConverted, err = meter.Int64Histogram(
			"threadguard_ruby_nodes_converted",
			metric.WithDescription("Number of tree nodes produced per parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		syntaxErrors, err = meter.Int64Counter(
			"threadguard_ruby_syntax_errors_total",
			metric.WithDescription("Total number of syntax error regions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for one parse.
func recordParseMetrics(ctx context.Context, duration time.Duration, nodeCount, errorCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	if success {
		nodesConverted.Record(ctx, int64(nodeCount))
	}
	if errorCount > 0 {
		syntaxErrors.Add(ctx, int64(errorCount))
	}
}

// startParseSpan creates a span for a parse. The caller must End it.
func startParseSpan(ctx context.Context, path string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ruby.Parser.Parse",
		trace.WithAttributes(
			attribute.String("ruby.file", path),
			attribute.Int("ruby.content_size", contentSize),
		),
	)
}

// setParseSpanResult sets the result attributes on a parse span.
func setParseSpanResult(span trace.Span, nodeCount, errorCount int) {
	span.SetAttributes(
		attribute.Int("ruby.node_count", nodeCount),
		attribute.Int("ruby.syntax_error_count", errorCount),
	)
}
