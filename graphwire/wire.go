// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// buildRequest serializes one request as a complete IPC stream: a schema
// derived from the params struct, then a single one-row batch whose
// custom_metadata carries the method, protocol version, request id, and any
// extra keys (tracing). The whole stream is materialized before any bytes
// touch the transport, so a marshalling failure produces no wire traffic.
func buildRequest(method, requestID string, params any, extra map[string]string, ipcOpts ...ipc.Option) ([]byte, error) {
	schema, err := structToSchema(reflect.TypeOf(params), tagRequest)
	if err != nil {
		return nil, defectf("MarshalError", "request %s: %v", method, err)
	}

	rows := 1
	if schema.NumFields() == 0 {
		rows = 0
	}
	var batch arrow.RecordBatch
	if rows == 0 {
		batch = emptyBatch(schema)
	} else {
		batch, err = buildRows(schema, tagRequest, []any{params})
		if err != nil {
			return nil, defectf("MarshalError", "request %s: %v", method, err)
		}
	}
	defer batch.Release()

	keys := []string{MetaMethod, MetaRequestVersion, MetaRequestID}
	vals := []string{method, ProtocolVersion, requestID}
	for k, v := range extra {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	meta := arrow.NewMetadata(keys, vals)

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), int64(rows), meta)
	defer batchWithMeta.Release()

	var buf bytes.Buffer
	opts := append([]ipc.Option{ipc.WithSchema(schema)}, ipcOpts...)
	w := ipc.NewWriter(&buf, opts...)
	if err := w.Write(batchWithMeta); err != nil {
		return nil, defectf("MarshalError", "request %s: %v", method, err)
	}
	if err := w.Close(); err != nil {
		return nil, defectf("MarshalError", "request %s: %v", method, err)
	}
	return buf.Bytes(), nil
}

// response is one parsed response stream: the data batch (retained, caller
// releases) and its custom_metadata. Log batches have already been forwarded
// and error batches converted to errors by the time a response is returned.
type response struct {
	Batch arrow.RecordBatch
	Meta  arrow.Metadata
}

func (r *response) release() {
	if r != nil && r.Batch != nil {
		r.Batch.Release()
	}
}

// readResponse reads one complete IPC stream from the reader. Zero-row
// batches tagged with a log level are forwarded to the logger; an
// EXCEPTION-level batch terminates the stream and becomes a server
// rejection. The first untagged batch is the result.
func readResponse(r io.Reader, logger *slog.Logger) (*response, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, transportf(err, "reading response stream")
	}
	defer reader.Release()

	for reader.Next() {
		batch := reader.RecordBatch()

		var meta arrow.Metadata
		if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
			meta = rb.Metadata()
		}

		level, tagged := meta.GetValue(MetaLogLevel)
		if tagged && LogLevel(level) == LogException {
			msg, _ := meta.GetValue(MetaLogMessage)
			errType, _ := meta.GetValue(MetaErrorType)
			drain(reader)
			return nil, rejectedf(errType, "%s", msg)
		}
		if tagged {
			forwardServerLog(logger, meta)
			continue
		}

		batch.Retain()
		drain(reader)
		return &response{Batch: batch, Meta: meta}, nil
	}
	if err := reader.Err(); err != nil {
		return nil, transportf(err, "reading response stream")
	}
	return nil, transportf(io.ErrUnexpectedEOF, "response stream ended without a result batch")
}

// decodeResult reads row 0 of a response batch into a tag-mapped struct.
func decodeResult(resp *response, target any) error {
	if resp.Batch.NumRows() == 0 {
		return nil
	}
	if err := decodeStructRow(resp.Batch, 0, tagRequest, target); err != nil {
		return defectf("UnmarshalError", "decoding response: %v", err)
	}
	return nil
}

func drain(reader *ipc.Reader) {
	for reader.Next() {
	}
}

// Request is a parsed request as seen by a server implementation.
type Request struct {
	Method    string
	Version   string
	RequestID string
	Batch     arrow.RecordBatch
	Metadata  map[string]string
}

// ReadRequest reads one complete IPC stream from the reader and extracts the
// method name, protocol version, and the parameter batch. Returns io.EOF
// when the peer has closed the connection cleanly.
func ReadRequest(r io.Reader) (*Request, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading request stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading request batch: %w", err)
		}
		return nil, io.EOF
	}

	batch := reader.RecordBatch()
	batch.Retain() // keep batch alive after reader is released

	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}

	method, ok := meta.GetValue(MetaMethod)
	if !ok {
		batch.Release()
		return nil, rejectedf("ProtocolError", "missing %q in request batch custom_metadata", MetaMethod)
	}

	version, ok := meta.GetValue(MetaRequestVersion)
	if !ok {
		batch.Release()
		return nil, rejectedf("VersionError", "missing %q in request batch custom_metadata", MetaRequestVersion)
	}
	if version != ProtocolVersion {
		batch.Release()
		return nil, rejectedf("VersionError", "unsupported request version %q, expected %q", version, ProtocolVersion)
	}

	if batch.Schema().NumFields() > 0 && batch.NumRows() != 1 {
		batch.Release()
		return nil, rejectedf("ProtocolError", "expected 1 row in request batch, got %d", batch.NumRows())
	}

	requestID, _ := meta.GetValue(MetaRequestID)

	drain(reader)

	metaMap := make(map[string]string, meta.Len())
	for i := range meta.Len() {
		metaMap[meta.Keys()[i]] = meta.Values()[i]
	}

	return &Request{
		Method:    method,
		Version:   version,
		RequestID: requestID,
		Batch:     batch,
		Metadata:  metaMap,
	}, nil
}

// DecodeParams reads the request's parameter row into a tag-mapped struct.
func (req *Request) DecodeParams(target any) error {
	if req.Batch.NumRows() == 0 {
		return nil
	}
	return decodeStructRow(req.Batch, 0, tagRequest, target)
}

// Release frees the retained parameter batch.
func (req *Request) Release() {
	if req.Batch != nil {
		req.Batch.Release()
	}
}

// emptyBatch creates a zero-row batch with the given schema.
func emptyBatch(schema *arrow.Schema) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		cols[i] = b.NewArray()
		b.Release()
	}
	batch := array.NewRecordBatch(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return batch
}

// writeLogBatch writes a zero-row batch carrying log metadata.
func writeLogBatch(w *ipc.Writer, schema *arrow.Schema, msg LogMessage, requestID string) error {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(msg.Level), msg.Message}
	if msg.Extra != "" {
		keys = append(keys, MetaLogExtra)
		vals = append(vals, msg.Extra)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	meta := arrow.NewMetadata(keys, vals)

	batch := emptyBatch(schema)
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, meta)
	defer batchWithMeta.Release()

	return w.Write(batchWithMeta)
}

// WriteResult writes a complete response stream: any log batches, then a
// one-row batch built from the tag-mapped result struct.
func WriteResult(w io.Writer, requestID string, result any, logs ...LogMessage) error {
	schema, err := structToSchema(reflect.TypeOf(result), tagRequest)
	if err != nil {
		return fmt.Errorf("result schema: %w", err)
	}
	batch, err := buildRows(schema, tagRequest, []any{result})
	if err != nil {
		return fmt.Errorf("result batch: %w", err)
	}
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	for _, msg := range logs {
		if err := writeLogBatch(writer, schema, msg, requestID); err != nil {
			return fmt.Errorf("writing log batch: %w", err)
		}
	}
	return writer.Write(batch)
}

// WriteAck writes a complete response stream with an empty-schema zero-row
// result, for operations that return no payload.
func WriteAck(w io.Writer, requestID string, logs ...LogMessage) error {
	schema := arrow.NewSchema(nil, nil)
	batch := emptyBatch(schema)
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	for _, msg := range logs {
		if err := writeLogBatch(writer, schema, msg, requestID); err != nil {
			return fmt.Errorf("writing log batch: %w", err)
		}
	}
	return writer.Write(batch)
}

// WriteError writes a complete response stream containing a single
// EXCEPTION-level batch. The error type travels in its own metadata key when
// the error is a graphwire *Error.
func WriteError(w io.Writer, requestID string, err error) error {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(LogException), err.Error()}

	var gwErr *Error
	if e, ok := err.(*Error); ok {
		gwErr = e
	}
	if gwErr != nil && gwErr.Type != "" {
		keys = append(keys, MetaErrorType)
		vals = append(vals, gwErr.Type)
		// message without the kind/type prefix
		vals[1] = gwErr.Message
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	meta := arrow.NewMetadata(keys, vals)

	schema := arrow.NewSchema(nil, nil)
	batch := emptyBatch(schema)
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, meta)
	defer batchWithMeta.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	return writer.Write(batchWithMeta)
}

// WriteConceptBatch writes a streaming answer page: a batch of concept rows
// whose metadata carries either a continuation token or the end marker.
func WriteConceptBatch(w io.Writer, requestID string, concepts []WireConcept, continueToken string, done bool) error {
	rows := make([]any, len(concepts))
	for i := range concepts {
		rows[i] = &concepts[i]
	}
	batch, err := buildRows(conceptSchema, tagNested, rows)
	if err != nil {
		return fmt.Errorf("concept batch: %w", err)
	}
	defer batch.Release()

	keys := []string{}
	vals := []string{}
	if done {
		keys = append(keys, MetaDone)
		vals = append(vals, "true")
	} else {
		keys = append(keys, MetaContinue)
		vals = append(vals, continueToken)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	meta := arrow.NewMetadata(keys, vals)

	batchWithMeta := array.NewRecordBatchWithMetadata(conceptSchema, batch.Columns(), batch.NumRows(), meta)
	defer batchWithMeta.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(conceptSchema))
	defer writer.Close()

	return writer.Write(batchWithMeta)
}
