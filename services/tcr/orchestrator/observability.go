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
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "tcr.orchestrator"

// Tracer provides OpenTelemetry tracing for workflow operations.
//
// # Description
//
// Wraps the OpenTelemetry tracer with operation spans carrying the session
// id and a per-invocation operation id. When disabled, returns noop spans.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a new operation tracer.
//
// # Inputs
//
//   - logger: Logger for structured logging. Uses slog.Default() if nil.
//   - enabled: Whether tracing is enabled. When false, uses noop spans.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartOperation starts a span for one workflow operation.
//
// # Inputs
//
//   - ctx: Parent context for span creation.
//   - op: Operation name, e.g. "approve".
//   - sessionID: Session the operation targets; may be empty.
//
// # Outputs
//
//   - context.Context: Context with span attached.
//   - trace.Span: The created span. Caller must call EndOperation.
//   - string: Operation id for log correlation.
func (t *Tracer) StartOperation(ctx context.Context, op, sessionID string) (context.Context, trace.Span, string) {
	opID := uuid.NewString()
	if !t.enabled {
		return ctx, noop.Span{}, opID
	}

	ctx, span := t.tracer.Start(ctx, "tcr."+op,
		trace.WithAttributes(
			attribute.String("tcr.operation", op),
			attribute.String("tcr.operation_id", opID),
			attribute.String("tcr.session_id", sessionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	t.logger.DebugContext(ctx, "starting operation",
		slog.String("operation", op),
		slog.String("op_id", opID),
		slog.String("session_id", sessionID),
	)
	return ctx, span, opID
}

// EndOperation completes an operation span.
//
// # Inputs
//
//   - span: The span to end.
//   - outcome: Short outcome label recorded as an attribute.
//   - err: Error if the operation failed.
func (t *Tracer) EndOperation(span trace.Span, outcome string, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if outcome != "" {
		span.SetAttributes(attribute.String("tcr.outcome", outcome))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RecordTransition adds a status transition event to the current span.
func (t *Tracer) RecordTransition(ctx context.Context, sessionID, from, to, commit string) {
	if !t.enabled {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("session.transition", trace.WithAttributes(
		attribute.String("tcr.session_id", sessionID),
		attribute.String("tcr.from", from),
		attribute.String("tcr.to", to),
		attribute.String("tcr.commit", commit),
	))
}

// LoggerWithTrace returns a logger with trace context fields.
//
// # Description
//
// Extracts trace_id and span_id from the context and adds them as
// structured fields to the logger. This enables correlation between
// logs and traces.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
