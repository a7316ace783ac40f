// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/graphwire-go/graphwire"
)

func TestStagedCloneIsIsolated(t *testing.T) {
	store := NewStore()
	store.SeedEntity("ks", "person")

	staged, ok := store.stage("ks")
	require.True(t, ok)
	staged.putType("company", graphwire.BaseEntityType)

	committed, ok := store.snapshot("ks")
	require.True(t, ok)
	_, exists := committed.types["company"]
	assert.False(t, exists, "staged changes must not leak before commit")

	store.commit(staged)
	committed, ok = store.snapshot("ks")
	require.True(t, ok)
	_, exists = committed.types["company"]
	assert.True(t, exists)
}

func TestReadSnapshotUnaffectedByLaterCommit(t *testing.T) {
	store := NewStore()
	store.SeedEntity("ks", "person")

	snap, ok := store.snapshot("ks")
	require.True(t, ok)
	before := len(snap.things)

	staged, _ := store.stage("ks")
	id := staged.newID()
	staged.things[id] = &thingRec{ID: id, TypeLabel: "person", Base: graphwire.BaseEntity}
	store.commit(staged)

	assert.Len(t, snap.things, before, "an open snapshot keeps its view after a commit")
}

func TestAttributeDeduplication(t *testing.T) {
	store := NewStore()
	a := store.SeedAttribute("ks", "name", graphwire.KindString, "alice")
	b := store.SeedAttribute("ks", "name", graphwire.KindString, "alice")
	c := store.SeedAttribute("ks", "name", graphwire.KindString, "bob")

	assert.Equal(t, a, b, "same type and value is the same instance")
	assert.NotEqual(t, a, c)
}

func TestValueEqualTimestamps(t *testing.T) {
	utc := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	shifted := utc.In(time.FixedZone("UTC+2", 2*3600))

	assert.True(t, valueEqual(utc, shifted), "instants compare, not zones")
	assert.False(t, valueEqual(utc, utc.Add(time.Millisecond)))
	assert.False(t, valueEqual(utc, "2020-01-01"))
}

func TestInstancesFollowSupertypeChain(t *testing.T) {
	store := NewStore()
	store.SeedEntityType("ks", "person")
	store.SeedEntity("ks", "employee")

	ks, ok := store.snapshot("ks")
	require.True(t, ok)
	ks.types["employee"].Sup = "person"

	assert.Len(t, ks.instancesOf("person"), 1, "subtype instances count for the supertype")
	assert.Len(t, ks.instancesOf(rootLabel), 1)
	assert.Empty(t, ks.instancesOf("employee")[0].Attrs)
}

func TestSessionLifecycle(t *testing.T) {
	store := NewStore()
	id := store.openSession("ks")

	name, ok := store.sessionKeyspace(id)
	require.True(t, ok)
	assert.Equal(t, "ks", name)

	require.NoError(t, store.closeSession(id))
	assert.Error(t, store.closeSession(id), "closing an unknown session is refused")
}
