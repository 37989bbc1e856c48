// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for workflow metrics.
var meter = otel.Meter("tcr.orchestrator")

var (
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
	testRunTotal      metric.Int64Counter
	testRunDuration   metric.Float64Histogram
	decisionTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationTotal, err = meter.Int64Counter(
			"tcr_operation_total",
			metric.WithDescription("Total number of workflow operations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationDuration, err = meter.Float64Histogram(
			"tcr_operation_duration_seconds",
			metric.WithDescription("Duration of workflow operations in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		testRunTotal, err = meter.Int64Counter(
			"tcr_test_run_total",
			metric.WithDescription("Total number of test runs by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		testRunDuration, err = meter.Float64Histogram(
			"tcr_test_run_duration_seconds",
			metric.WithDescription("Duration of test runs in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		decisionTotal, err = meter.Int64Counter(
			"tcr_decision_total",
			metric.WithDescription("Total number of sessions decided, by status and source"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordOperation records one workflow operation.
func recordOperation(ctx context.Context, op, outcome string, duration time.Duration) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	operationTotal.Add(ctx, 1, attrs)
	operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordTestRun records a classified test run.
func recordTestRun(ctx context.Context, passed bool, duration time.Duration) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	result := "pass"
	if !passed {
		result = "fail"
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	testRunTotal.Add(ctx, 1, attrs)
	testRunDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordDecision records a terminal transition.
//
// # Inputs
//
//   - status: APPROVED or DENIED.
//   - source: "operation" for approve/deny, "reconcile" for a replay.
func recordDecision(ctx context.Context, status, source string) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	decisionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("source", source),
	))
}
