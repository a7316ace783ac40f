// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestRefOfEveryVariant(t *testing.T) {
	tests := []struct {
		base BaseType
		want string
	}{
		{BaseEntityType, "entity_type"},
		{BaseRelationType, "relation_type"},
		{BaseAttributeType, "attribute_type"},
		{BaseEntity, "entity"},
		{BaseRelation, "relation"},
		{BaseAttribute, "attribute"},
		{BaseRole, "role"},
		{BaseRule, "rule"},
		{BaseMetaType, "meta_type"},
	}
	for _, tt := range tests {
		ref, err := RefOf(&Concept{ID: "V1", Base: tt.base})
		require.NoError(t, err)
		assert.Equal(t, "V1", ref.ID)
		assert.Equal(t, tt.want, ref.BaseType)
	}
}

func TestRefOfUnrecognisedIsDefect(t *testing.T) {
	_, err := RefOf(&Concept{ID: "V1", Base: BaseType(99)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))

	_, err = RefOf(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))
}

func TestTracingMetadataAbsentWithoutSpan(t *testing.T) {
	assert.Nil(t, tracingMetadata(context.Background()))
}

func TestTracingMetadataCarriesActiveSpan(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	meta := tracingMetadata(ctx)
	require.NotNil(t, meta)

	sc := span.SpanContext()
	assert.Equal(t, sc.SpanID().String(), meta[MetaTraceParentID])
	assert.Equal(t, sc.TraceID().String(), meta[MetaTraceRootID])
	assert.NotEmpty(t, meta[MetaTraceParentID])
	assert.NotEmpty(t, meta[MetaTraceRootID])
}

func TestConceptWireRoundTrip(t *testing.T) {
	inferred := &Concept{ID: "V7", Base: BaseAttribute, Kind: KindString, HasKind: true, Value: "alice", Inferred: true}

	wc, err := EncodeConcept(inferred)
	require.NoError(t, err)

	back, err := wc.Decode()
	require.NoError(t, err)
	assert.Equal(t, inferred, back)
}

func TestConceptDecodeRejectsUnknownEnums(t *testing.T) {
	wc := &WireConcept{ID: "V1", BaseType: "hyperedge"}
	_, err := wc.Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))

	bad := "decimal"
	wc = &WireConcept{ID: "V1", BaseType: "attribute", ValueKind: &bad}
	_, err = wc.Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))
}

func TestAttributeValueAs(t *testing.T) {
	c := &Concept{ID: "V1", Base: BaseAttribute, Kind: KindLong, HasKind: true, Value: int64(42)}

	v, err := AttributeValueAs[int64](c)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = AttributeValueAs[string](c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))
}
