// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

// Package graphwire implements a Go client driver for the graphwire
// protocol, an Apache Arrow IPC-based wire protocol for graph knowledge
// bases.
//
// Every request and response is a complete Arrow IPC stream. Parameters
// and results travel as RecordBatch messages whose per-batch custom
// metadata carries the control plane: method names, request IDs, log
// messages, error information, and stream continuation tokens. Answers to
// queries stream back as batches of concept rows, pulled lazily one
// continuation round trip at a time.
//
// # Sessions and transactions
//
// A [Session] registers the client against one keyspace and produces
// transactions via [Session.Transaction]. Each [Transaction] owns a
// dedicated channel on which exchanges are strictly ordered: one request
// in flight, concurrent callers queued. READ transactions observe a
// consistent snapshot; WRITE transactions stage mutations until
// [Transaction.Commit] makes them visible atomically or the transaction
// closes and discards them.
//
// # Local and remote concepts
//
// The driver exposes every schema and data element in two forms. A
// [Concept] is a detached snapshot: immutable, network-free, and valid
// after its transaction closes. A [RemoteConcept], obtained from
// [Transaction.Remote], is transaction-bound: every call is a round trip
// against current server state, and it dies with its transaction.
//
// # Struct tags
//
// Request parameters and results are declared as Go structs annotated
// with `graphwire` struct tags:
//
//	`graphwire:"wire_name[,option[,option...]]"`
//
// Supported options:
//
//   - int32    — use Arrow Int32 instead of the default Int64
//   - float32  — use Arrow Float32 instead of the default Float64
//   - binary   — serialize an [ArrowSerializable] value as IPC bytes
//
// Pointer fields (e.g. *string, *int64) become nullable Arrow columns.
//
// # ArrowSerializable
//
// Types that implement [ArrowSerializable] provide their own Arrow schema
// via ArrowSchema(). Fields are mapped to Arrow columns using `arrow`
// struct tags. At the request-field level these types are serialized as
// binary (embedded IPC stream); when nested inside another
// ArrowSerializable they become Arrow struct columns.
//
// # Errors
//
// Every error surfaced by this package is an [*Error] of exactly one
// [ErrorKind]; dispatch with errors.Is against the exported sentinels
// ([ErrDefect], [ErrChannelClosed], [ErrIteratorInvalid],
// [ErrServerRejected], [ErrTransport]).
package graphwire
