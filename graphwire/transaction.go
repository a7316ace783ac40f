// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"
	"sync/atomic"
)

// TransactionMode selects what a transaction may do to the keyspace.
type TransactionMode string

const (
	// ModeRead transactions observe a consistent snapshot and cannot commit.
	ModeRead TransactionMode = "READ"
	// ModeWrite transactions stage mutations until Commit makes them
	// visible atomically.
	ModeWrite TransactionMode = "WRITE"
)

// Transaction is a unit of work against one keyspace. Each transaction owns
// a dedicated exchange channel; operations on it are strictly ordered, and
// concurrent callers queue. A transaction ends at Commit or Close, after
// which every operation reports a closed channel.
type Transaction struct {
	ch     *channel
	mode   TransactionMode
	closed atomic.Bool
}

// Mode reports whether this transaction was opened READ or WRITE.
func (tx *Transaction) Mode() TransactionMode {
	return tx.mode
}

// Commit makes the transaction's staged writes visible atomically and closes
// the transaction. Committing a READ transaction is a defect, detected
// before anything is sent. The transaction is closed whether or not the
// server accepts the commit.
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.mode != ModeWrite {
		return defectf("ReadOnlyCommit", "commit on a %s transaction", tx.mode)
	}
	resp, err := tx.ch.exchange(ctx, MethodTransactionCommit, TransactionCommitParams{})
	resp.release()
	tx.close()
	return err
}

// Close ends the transaction without committing; staged writes are
// discarded. Closing an already-closed transaction is a no-op. Any
// unconsumed iterators from this transaction become invalid.
func (tx *Transaction) Close() {
	tx.close()
}

func (tx *Transaction) close() {
	if tx.closed.CompareAndSwap(false, true) {
		tx.ch.close()
	}
}

// QueryOption adjusts a single query execution.
type QueryOption func(*QueryIterParams)

// WithInfer overrides the server default for rule inference.
func WithInfer(infer bool) QueryOption {
	return func(p *QueryIterParams) { p.Infer = &infer }
}

// WithExplain asks the server to retain explanation structures for the
// query's answers.
func WithExplain(explain bool) QueryOption {
	return func(p *QueryIterParams) { p.Explain = &explain }
}

// WithBatchSize sets how many answers the server packs into each streamed
// batch.
func WithBatchSize(n int64) QueryOption {
	return func(p *QueryIterParams) { p.BatchSize = &n }
}

// Query submits a query for lazy evaluation. Nothing is computed beyond the
// first batch until the iterator is pulled; each exhausted batch triggers
// one continuation round trip.
func (tx *Transaction) Query(ctx context.Context, query string, opts ...QueryOption) (*Iterator, error) {
	params := QueryIterParams{Query: query}
	for _, opt := range opts {
		opt(&params)
	}
	return tx.openIterator(ctx, MethodQueryIter, params)
}

// GetSchemaConcept looks a schema concept up by label. Absent labels yield
// (nil, nil).
func (tx *Transaction) GetSchemaConcept(ctx context.Context, label string) (*Concept, error) {
	return tx.conceptCall(ctx, MethodGetSchemaConcept, GetSchemaConceptParams{Label: label})
}

// GetConcept looks any concept up by id. Absent ids yield (nil, nil).
func (tx *Transaction) GetConcept(ctx context.Context, id string) (*Concept, error) {
	return tx.conceptCall(ctx, MethodGetConcept, GetConceptParams{ID: id})
}

// GetAttributes streams every attribute instance holding the given value,
// across all attribute types. The value kind is inferred from the runtime
// type; unsupported types are a defect and nothing is sent.
func (tx *Transaction) GetAttributes(ctx context.Context, value any) (*Iterator, error) {
	wv, err := EncodeValue(value)
	if err != nil {
		return nil, err
	}
	return tx.openIterator(ctx, MethodGetAttributesIter, GetAttributesParams{Value: wv})
}

// PutEntityType creates the entity type with the given label, or retrieves
// it if it already exists.
func (tx *Transaction) PutEntityType(ctx context.Context, label string) (*Concept, error) {
	return tx.conceptCall(ctx, MethodPutEntityType, PutEntityTypeParams{Label: label})
}

// PutAttributeType creates the attribute type with the given label and value
// kind, or retrieves it if it already exists.
func (tx *Transaction) PutAttributeType(ctx context.Context, label string, kind ValueKind) (*Concept, error) {
	ks, err := kind.wire()
	if err != nil {
		return nil, err
	}
	return tx.conceptCall(ctx, MethodPutAttributeType, PutAttributeTypeParams{Label: label, ValueKind: ks})
}

// PutRelationType creates the relation type with the given label, or
// retrieves it if it already exists.
func (tx *Transaction) PutRelationType(ctx context.Context, label string) (*Concept, error) {
	return tx.conceptCall(ctx, MethodPutRelationType, PutRelationTypeParams{Label: label})
}

// PutRole creates the role with the given label, or retrieves it if it
// already exists.
func (tx *Transaction) PutRole(ctx context.Context, label string) (*Concept, error) {
	return tx.conceptCall(ctx, MethodPutRole, PutRoleParams{Label: label})
}

// PutRule creates the rule with the given label, when and then bodies, or
// retrieves it if it already exists.
func (tx *Transaction) PutRule(ctx context.Context, label, when, then string) (*Concept, error) {
	return tx.conceptCall(ctx, MethodPutRule, PutRuleParams{Label: label, When: when, Then: then})
}

// Remote binds a concept snapshot to this transaction for follow-up calls.
// The remote view shares the transaction's lifetime: it stops working the
// moment the transaction closes, while the snapshot itself stays readable.
func (tx *Transaction) Remote(c *Concept) *RemoteConcept {
	return &RemoteConcept{tx: tx, id: c.ID, base: c.Base, inferred: c.Inferred}
}

// conceptCall performs a unary exchange whose result is one optional concept.
func (tx *Transaction) conceptCall(ctx context.Context, method string, params any) (*Concept, error) {
	resp, err := tx.ch.exchange(ctx, method, params)
	if err != nil {
		return nil, err
	}
	defer resp.release()

	var result ConceptResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	if result.Concept == nil {
		return nil, nil
	}
	return result.Concept.Decode()
}

// ackCall performs a unary exchange that returns no payload.
func (tx *Transaction) ackCall(ctx context.Context, method string, params any) error {
	resp, err := tx.ch.exchange(ctx, method, params)
	resp.release()
	return err
}

// openIterator performs the opening exchange of a streamed call and wraps
// the first batch in an iterator.
func (tx *Transaction) openIterator(ctx context.Context, method string, params any) (*Iterator, error) {
	resp, err := tx.ch.exchange(ctx, method, params)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tx: tx}
	if err := it.absorb(resp); err != nil {
		return nil, err
	}
	return it, nil
}
