// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for git gateway metrics.
var meter = otel.Meter("tcr.vcs")

var (
	gitOpTotal    metric.Int64Counter
	gitOpDuration metric.Float64Histogram
	gitOpErrors   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Uses atomic operations for safe concurrent access.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		gitOpTotal, err = meter.Int64Counter(
			"tcr_git_operation_total",
			metric.WithDescription("Total number of git invocations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		gitOpDuration, err = meter.Float64Histogram(
			"tcr_git_operation_duration_seconds",
			metric.WithDescription("Duration of git invocations in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		gitOpErrors, err = meter.Int64Counter(
			"tcr_git_operation_errors_total",
			metric.WithDescription("Total number of failed git invocations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordGitOp records one git invocation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - op: The git subcommand (e.g. "commit", "push").
//   - duration: Wall time of the invocation.
//   - err: The invocation error, nil on success.
func recordGitOp(ctx context.Context, op string, duration time.Duration, err error) {
	if !metricsEnabled.Load() {
		return
	}
	if initMetrics() != nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	)

	// The invocation context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)
	gitOpTotal.Add(ctx, 1, attrs)
	gitOpDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		gitOpErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}
