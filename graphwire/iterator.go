// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import "context"

// Iterator streams concept answers from the server one at a time. It buffers
// one batch; pulling past the buffered batch issues a continuation round
// trip on the owning transaction's channel. Iterators are not safe for
// concurrent use.
//
// The usual loop:
//
//	for it.Next(ctx) {
//		c := it.Value()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator struct {
	tx    *Transaction
	buf   []*Concept
	idx   int
	token string
	done  bool
	cur   *Concept
	err   error
}

// absorb installs one response batch as the iterator's buffer and records
// the continuation token or end marker from its metadata.
func (it *Iterator) absorb(resp *response) error {
	defer resp.release()

	concepts, err := decodeConceptRows(resp.Batch)
	if err != nil {
		return err
	}
	it.buf = concepts
	it.idx = 0

	if doneVal, ok := resp.Meta.GetValue(MetaDone); ok && doneVal == "true" {
		it.done = true
		it.token = ""
		return nil
	}
	token, ok := resp.Meta.GetValue(MetaContinue)
	if !ok {
		return transportf(nil, "streamed batch carries neither a continuation token nor an end marker")
	}
	it.token = token
	return nil
}

// Next advances to the next answer, issuing a continuation round trip when
// the buffered batch is exhausted. It returns false at the end of the stream
// or on error; check Err afterwards to tell the two apart. Once the owning
// transaction has closed, Next fails rather than returning stale answers.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for it.idx >= len(it.buf) {
		if it.done {
			return false
		}
		if it.tx.closed.Load() {
			it.err = iteratorInvalidf(nil, "owning transaction has closed")
			return false
		}
		resp, err := it.tx.ch.exchange(ctx, MethodIterContinue, IterContinueParams{Token: it.token})
		if err != nil {
			it.err = it.continuationErr(err)
			return false
		}
		if err := it.absorb(resp); err != nil {
			it.err = err
			return false
		}
	}

	it.cur = it.buf[it.idx]
	it.idx++
	return true
}

// continuationErr maps a failed continuation: a channel that closed because
// the transaction ended invalidates the iterator rather than reporting a
// generic closed channel.
func (it *Iterator) continuationErr(err error) error {
	if it.tx.closed.Load() {
		return iteratorInvalidf(err, "owning transaction has closed")
	}
	return err
}

// Value returns the answer produced by the last successful Next.
func (it *Iterator) Value() *Concept {
	return it.cur
}

// Err returns the first error encountered while streaming, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Collect drains the remaining answers into a slice.
func (it *Iterator) Collect(ctx context.Context) ([]*Concept, error) {
	var out []*Concept
	for it.Next(ctx) {
		out = append(out, it.Value())
	}
	if it.err != nil {
		return nil, it.err
	}
	return out, nil
}

// Close abandons the stream. The server discards the continuation state when
// the transaction ends; no round trip is made.
func (it *Iterator) Close() {
	it.done = true
	it.buf = nil
	it.idx = 0
}
