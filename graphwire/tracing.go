// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// tracingMetadata extracts the active span context from ctx as request
// metadata. Returns nil when no valid span is recording, so no tracing keys
// are ever sent with empty values.
func tracingMetadata(ctx context.Context) map[string]string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return map[string]string{
		MetaTraceParentID: sc.SpanID().String(),
		MetaTraceRootID:   sc.TraceID().String(),
	}
}
