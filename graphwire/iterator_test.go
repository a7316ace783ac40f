// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/graphwire-go/graphtest"
	"github.com/graphwire/graphwire-go/graphwire"
)

func seedPeople(t *testing.T, server *graphtest.Server, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = server.Store().SeedEntity("social", "person")
	}
	return ids
}

func TestQueryStreamsLazilyInBatches(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	ids := seedPeople(t, server, 5)

	session := openSession(t, server, "social")
	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)
	defer tx.Close()

	it, err := tx.Query(ctx, "person", graphwire.WithBatchSize(2))
	require.NoError(t, err)
	assert.Zero(t, server.RequestCount(graphwire.MethodIterContinue),
		"opening the stream must not pull past the first batch")

	var got []string
	for it.Next(ctx) {
		got = append(got, it.Value().ID)
	}
	require.NoError(t, it.Err())

	assert.Equal(t, ids, got, "answers arrive exactly once, in order")
	// 5 answers in batches of 2: the first page rides on the opening
	// request, then two continuation round trips
	assert.Equal(t, 2, server.RequestCount(graphwire.MethodIterContinue))
}

func TestQueryExactBatchBoundary(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	ids := seedPeople(t, server, 4)

	session := openSession(t, server, "social")
	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)
	defer tx.Close()

	it, err := tx.Query(ctx, "person", graphwire.WithBatchSize(2))
	require.NoError(t, err)
	got, err := it.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, got, len(ids))
	assert.Equal(t, 1, server.RequestCount(graphwire.MethodIterContinue))
}

func TestEmptyAnswerStream(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	server.Store().SeedEntityType("social", "person")

	session := openSession(t, server, "social")
	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)
	defer tx.Close()

	it, err := tx.Query(ctx, "person")
	require.NoError(t, err)
	assert.False(t, it.Next(ctx))
	require.NoError(t, it.Err())
}

func TestUnknownQueryLabelIsRejected(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	session := openSession(t, server, "social")

	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.Query(ctx, "no-such-type")
	require.Error(t, err)
	assert.True(t, errors.Is(err, graphwire.ErrServerRejected))

	// the rejection did not take the transaction down
	_, err = tx.GetSchemaConcept(ctx, "thing")
	require.NoError(t, err)
}

func TestIteratorInvalidAfterTransactionClose(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	seedPeople(t, server, 5)

	session := openSession(t, server, "social")
	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)

	it, err := tx.Query(ctx, "person", graphwire.WithBatchSize(2))
	require.NoError(t, err)

	// consume the buffered batch, then close the transaction under the
	// iterator
	require.True(t, it.Next(ctx))
	require.True(t, it.Next(ctx))
	tx.Close()

	assert.False(t, it.Next(ctx))
	require.Error(t, it.Err())
	assert.True(t, errors.Is(it.Err(), graphwire.ErrIteratorInvalid))
}

func TestBufferedAnswersSurviveTransactionClose(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	seedPeople(t, server, 2)

	session := openSession(t, server, "social")
	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)

	it, err := tx.Query(ctx, "person", graphwire.WithBatchSize(10))
	require.NoError(t, err)

	require.True(t, it.Next(ctx))
	snapshot := it.Value()
	tx.Close()

	// the local snapshot stays readable after its transaction dies
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, graphwire.BaseEntity, snapshot.Base)

	// and the already-buffered remainder can still be drained
	require.True(t, it.Next(ctx))
	assert.False(t, it.Next(ctx))
	require.NoError(t, it.Err())
}

func TestTypeInstancesStream(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	ids := seedPeople(t, server, 3)

	session := openSession(t, server, "social")
	tx, err := session.Transaction(ctx, graphwire.ModeRead)
	require.NoError(t, err)
	defer tx.Close()

	person, err := tx.GetSchemaConcept(ctx, "person")
	require.NoError(t, err)
	require.NotNil(t, person)

	it, err := tx.Remote(person).Instances(ctx)
	require.NoError(t, err)
	got, err := it.Collect(ctx)
	require.NoError(t, err)

	gotIDs := make([]string, 0, len(got))
	for _, c := range got {
		gotIDs = append(gotIDs, c.ID)
	}
	assert.Equal(t, ids, gotIDs)
}
