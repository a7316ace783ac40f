// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestRoundTrip(t *testing.T) {
	size := int64(16)
	infer := true
	params := QueryIterParams{Query: "person", Infer: &infer, BatchSize: &size}

	payload, err := buildRequest(MethodQueryIter, "req-1", params, map[string]string{
		MetaTraceParentID: "00f067aa0ba902b7",
		MetaTraceRootID:   "4bf92f3577b34da6a3ce929d0e0e4736",
	})
	require.NoError(t, err)

	req, err := ReadRequest(bytes.NewReader(payload))
	require.NoError(t, err)
	defer req.Release()

	assert.Equal(t, MethodQueryIter, req.Method)
	assert.Equal(t, ProtocolVersion, req.Version)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "00f067aa0ba902b7", req.Metadata[MetaTraceParentID])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", req.Metadata[MetaTraceRootID])

	var got QueryIterParams
	require.NoError(t, req.DecodeParams(&got))
	assert.Equal(t, "person", got.Query)
	require.NotNil(t, got.Infer)
	assert.True(t, *got.Infer)
	require.NotNil(t, got.BatchSize)
	assert.Equal(t, size, *got.BatchSize)
	assert.Nil(t, got.Explain, "omitted nullable params decode as nil")
}

func TestRequestEmbeddedValueParam(t *testing.T) {
	wv, err := EncodeValue("alice")
	require.NoError(t, err)

	payload, err := buildRequest(MethodGetAttributesIter, "req-2", GetAttributesParams{Value: wv}, nil)
	require.NoError(t, err)

	req, err := ReadRequest(bytes.NewReader(payload))
	require.NoError(t, err)
	defer req.Release()

	var got GetAttributesParams
	require.NoError(t, req.DecodeParams(&got))
	require.NotNil(t, got.Value.String)
	assert.Equal(t, "alice", *got.Value.String)
}

func TestRequestConceptRefList(t *testing.T) {
	params := ThingAttributesParams{
		ID: "V1",
		Types: []ConceptRef{
			{ID: "V2", BaseType: "attribute_type"},
			{ID: "V3", BaseType: "attribute_type"},
		},
	}
	payload, err := buildRequest(MethodThingAttrsIter, "req-3", params, nil)
	require.NoError(t, err)

	req, err := ReadRequest(bytes.NewReader(payload))
	require.NoError(t, err)
	defer req.Release()

	var got ThingAttributesParams
	require.NoError(t, req.DecodeParams(&got))
	assert.Equal(t, params, got)
}

func TestRequestVersionMismatchRejected(t *testing.T) {
	schema := arrow.NewSchema(nil, nil)
	meta := arrow.NewMetadata(
		[]string{MetaMethod, MetaRequestVersion},
		[]string{"ping", "99"},
	)
	batch := array.NewRecordBatchWithMetadata(schema, nil, 0, meta)
	defer batch.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	require.NoError(t, w.Write(batch))
	require.NoError(t, w.Close())

	_, err := ReadRequest(&buf)
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "VersionError", gwErr.Type)
}

func TestErrorResponseBecomesServerRejection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteError(&buf, "req-5", rejectedf("GraqlSyntaxException", "syntax error near 'match'")))

	_, err := readResponse(&buf, discardLogger())
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, ErrorServerRejected, gwErr.Kind)
	assert.Equal(t, "GraqlSyntaxException", gwErr.Type)
	assert.Equal(t, "syntax error near 'match'", gwErr.Message)
}

func TestLogBatchesForwardedBeforeResult(t *testing.T) {
	var buf bytes.Buffer
	err := WriteResult(&buf, "req-6", SessionOpenResult{SessionID: "s-1"},
		LogMessage{Level: LogInfo, Message: "keyspace created"},
		LogMessage{Level: LogDebug, Message: "cache warm"},
	)
	require.NoError(t, err)

	resp, err := readResponse(&buf, discardLogger())
	require.NoError(t, err)
	defer resp.release()

	var result SessionOpenResult
	require.NoError(t, decodeResult(resp, &result))
	assert.Equal(t, "s-1", result.SessionID)
}

func TestConceptBatchCarriesContinuation(t *testing.T) {
	concepts := []WireConcept{
		{ID: "V1", BaseType: "entity"},
		{ID: "V2", BaseType: "entity"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConceptBatch(&buf, "req-7", concepts, "token-1", false))

	resp, err := readResponse(&buf, discardLogger())
	require.NoError(t, err)
	defer resp.release()

	token, ok := resp.Meta.GetValue(MetaContinue)
	require.True(t, ok)
	assert.Equal(t, "token-1", token)

	decoded, err := decodeConceptRows(resp.Batch)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "V1", decoded[0].ID)
	assert.Equal(t, BaseEntity, decoded[1].Base)

	buf.Reset()
	require.NoError(t, WriteConceptBatch(&buf, "req-8", nil, "", true))
	resp2, err := readResponse(&buf, discardLogger())
	require.NoError(t, err)
	defer resp2.release()

	done, ok := resp2.Meta.GetValue(MetaDone)
	require.True(t, ok)
	assert.Equal(t, "true", done)
}
