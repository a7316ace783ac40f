// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

// Package graphwireotel provides OpenTelemetry instrumentation for the
// graphwire driver. It implements the [graphwire.CallHook] interface to add
// distributed tracing and metrics to driver calls.
//
// Usage:
//
//	hook := graphwireotel.NewCallHook(graphwireotel.DefaultConfig())
//	session, err := graphwire.Open(ctx, transport, "my-keyspace",
//		graphwire.WithCallHook(hook))
package graphwireotel

import (
	"context"
	"fmt"
	"time"

	"github.com/graphwire/graphwire-go/graphwire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "graphwire"

// Config configures OpenTelemetry instrumentation for the driver.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with sensible defaults. TracerProvider and
// MeterProvider are resolved from the global OTel SDK at hook creation time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// NewCallHook builds a hook suitable for [graphwire.WithCallHook]. Spans
// started here are client spans; their span and trace ids travel to the
// server in the request metadata.
func NewCallHook(cfg Config) graphwire.CallHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("rpc.client.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of driver calls"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("rpc.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of driver calls"),
		)
	}
	return hook
}

// otelHook implements graphwire.CallHook with OpenTelemetry tracing and metrics.
type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnCallStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnCallStart starts a client span for the call.
func (h *otelHook) OnCallStart(ctx context.Context, info graphwire.CallInfo) (context.Context, graphwire.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("graphwire/%s", info.Method)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "graphwire"),
		attribute.String("rpc.method", info.Method),
		attribute.String("rpc.graphwire.request_id", info.RequestID),
	}
	if info.Keyspace != "" {
		attrs = append(attrs, attribute.String("db.namespace", info.Keyspace))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnCallEnd records metrics and ends the span.
func (h *otelHook) OnCallEnd(ctx context.Context, token graphwire.HookToken, info graphwire.CallInfo, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "graphwire"),
			attribute.String("rpc.method", info.Method),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			errKind := fmt.Sprintf("%T", err)
			if gwErr, ok := err.(*graphwire.Error); ok {
				errKind = gwErr.Kind.String()
			}
			st.span.SetAttributes(attribute.String("rpc.graphwire.error_kind", errKind))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}
		st.span.End()
	}
}
