// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

// Package graphtest provides an in-memory graphwire server for driver tests
// and examples. It implements the wire protocol over any byte stream and a
// small but honest model of the concept store: keyspaces, schema types with
// single inheritance, entity/relation/attribute instances, and snapshot
// isolation between transactions.
package graphtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graphwire/graphwire-go/graphwire"
)

// rootLabel is the meta type at the top of every type hierarchy.
const rootLabel = "thing"

// typeDef is one schema concept: a type, role, or rule.
type typeDef struct {
	ID        string
	Label     string
	Base      graphwire.BaseType
	Sup       string // supertype label; empty only for the root
	ValueKind graphwire.ValueKind
	HasKind   bool
	When      string
	Then      string
	Key       bool // attribute types only: declared as a key
}

// thingRec is one data instance.
type thingRec struct {
	ID        string
	TypeLabel string
	Base      graphwire.BaseType
	Value     any                 // attributes only
	Attrs     []string            // attached attribute instance ids, in attach order
	Players   map[string][]string // relations only: role label -> player ids
	Inferred  bool
}

// keyspace is one named graph. Values are never mutated in place after
// commit; WRITE transactions work on a deep clone and swap it in.
type keyspace struct {
	name   string
	types  map[string]*typeDef  // by label
	things map[string]*thingRec // by id
	nextID int
}

func newKeyspace(name string) *keyspace {
	ks := &keyspace{
		name:   name,
		types:  make(map[string]*typeDef),
		things: make(map[string]*thingRec),
	}
	ks.types[rootLabel] = &typeDef{ID: ks.newID(), Label: rootLabel, Base: graphwire.BaseMetaType}
	return ks
}

func (ks *keyspace) newID() string {
	ks.nextID++
	return fmt.Sprintf("V%d", ks.nextID)
}

func (ks *keyspace) clone() *keyspace {
	out := &keyspace{
		name:   ks.name,
		types:  make(map[string]*typeDef, len(ks.types)),
		things: make(map[string]*thingRec, len(ks.things)),
		nextID: ks.nextID,
	}
	for label, t := range ks.types {
		cp := *t
		out.types[label] = &cp
	}
	for id, th := range ks.things {
		cp := *th
		cp.Attrs = append([]string(nil), th.Attrs...)
		if th.Players != nil {
			cp.Players = make(map[string][]string, len(th.Players))
			for role, ids := range th.Players {
				cp.Players[role] = append([]string(nil), ids...)
			}
		}
		out.things[id] = &cp
	}
	return out
}

func (ks *keyspace) typeByID(id string) *typeDef {
	for _, t := range ks.types {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// putType creates or retrieves a schema concept. An existing definition with
// a conflicting shape is a rejection.
func (ks *keyspace) putType(label string, base graphwire.BaseType) (*typeDef, error) {
	if existing, ok := ks.types[label]; ok {
		if existing.Base != base {
			return nil, fmt.Errorf("label %q already names a %s", label, existing.Base)
		}
		return existing, nil
	}
	t := &typeDef{ID: ks.newID(), Label: label, Base: base, Sup: rootLabel}
	ks.types[label] = t
	return t, nil
}

// instancesOf collects instances of a type and all of its subtypes, in
// insertion order.
func (ks *keyspace) instancesOf(label string) []*thingRec {
	var out []*thingRec
	for i := 1; i <= ks.nextID; i++ {
		id := fmt.Sprintf("V%d", i)
		th, ok := ks.things[id]
		if !ok {
			continue
		}
		if ks.subtypeOf(th.TypeLabel, label) {
			out = append(out, th)
		}
	}
	return out
}

// subtypeOf reports whether label sits at or below ancestor in the
// supertype chain.
func (ks *keyspace) subtypeOf(label, ancestor string) bool {
	for label != "" {
		if label == ancestor {
			return true
		}
		t, ok := ks.types[label]
		if !ok {
			return false
		}
		label = t.Sup
	}
	return false
}

// findAttribute returns the attribute instance of the given type holding
// value, if one exists. Attribute instances are deduplicated per type and
// value.
func (ks *keyspace) findAttribute(typeLabel string, value any) *thingRec {
	for _, th := range ks.things {
		if th.Base == graphwire.BaseAttribute && th.TypeLabel == typeLabel && valueEqual(th.Value, value) {
			return th
		}
	}
	return nil
}

func valueEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok || bok {
		return aok && bok && at.Equal(bt)
	}
	return a == b
}

// Store is the committed state shared by every connection of one server.
type Store struct {
	mu        sync.Mutex
	keyspaces map[string]*keyspace
	sessions  map[string]string // session id -> keyspace name
}

// NewStore returns an empty store with no keyspaces.
func NewStore() *Store {
	return &Store{
		keyspaces: make(map[string]*keyspace),
		sessions:  make(map[string]string),
	}
}

func (s *Store) ensureKeyspace(name string) *keyspace {
	ks, ok := s.keyspaces[name]
	if !ok {
		ks = newKeyspace(name)
		s.keyspaces[name] = ks
	}
	return ks
}

func (s *Store) openSession(keyspaceName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureKeyspace(keyspaceName)
	id := uuid.NewString()
	s.sessions[id] = keyspaceName
	return id
}

func (s *Store) closeSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) sessionKeyspace(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.sessions[sessionID]
	return name, ok
}

func (s *Store) deleteKeyspace(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keyspaces, name)
}

func (s *Store) keyspaceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.keyspaces {
		names = append(names, name)
	}
	return names
}

// snapshot returns the committed keyspace for READ transactions.
func (s *Store) snapshot(name string) (*keyspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks, ok := s.keyspaces[name]
	return ks, ok
}

// stage returns a private clone for WRITE transactions.
func (s *Store) stage(name string) (*keyspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks, ok := s.keyspaces[name]
	if !ok {
		return nil, false
	}
	return ks.clone(), true
}

// commit swaps a staged clone in as the committed state.
func (s *Store) commit(staged *keyspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyspaces[staged.name] = staged
}

// Seed helpers mutate committed state directly, bypassing transactions.
// Tests use them to arrange data without driving queries through the wire.

// SeedEntityType declares an entity type in the committed keyspace.
func (s *Store) SeedEntityType(keyspaceName, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.ensureKeyspace(keyspaceName)
	ks.putType(label, graphwire.BaseEntityType)
}

// SeedAttributeType declares an attribute type; key marks it as a key type.
func (s *Store) SeedAttributeType(keyspaceName, label string, kind graphwire.ValueKind, key bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.ensureKeyspace(keyspaceName)
	t, _ := ks.putType(label, graphwire.BaseAttributeType)
	t.ValueKind = kind
	t.HasKind = true
	t.Key = key
}

// SeedEntity creates an entity instance and returns its id.
func (s *Store) SeedEntity(keyspaceName, typeLabel string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.ensureKeyspace(keyspaceName)
	ks.putType(typeLabel, graphwire.BaseEntityType)
	id := ks.newID()
	ks.things[id] = &thingRec{ID: id, TypeLabel: typeLabel, Base: graphwire.BaseEntity}
	return id
}

// SeedAttribute creates (or finds) the attribute instance of typeLabel
// holding value and returns its id. Instances are deduplicated by type and
// value.
func (s *Store) SeedAttribute(keyspaceName, typeLabel string, kind graphwire.ValueKind, value any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.ensureKeyspace(keyspaceName)
	t, _ := ks.putType(typeLabel, graphwire.BaseAttributeType)
	t.ValueKind = kind
	t.HasKind = true
	if existing := ks.findAttribute(typeLabel, value); existing != nil {
		return existing.ID
	}
	id := ks.newID()
	ks.things[id] = &thingRec{ID: id, TypeLabel: typeLabel, Base: graphwire.BaseAttribute, Value: value}
	return id
}

// SeedRelation creates a relation instance with the given role players and
// returns its id. Role types are declared implicitly.
func (s *Store) SeedRelation(keyspaceName, typeLabel string, players map[string][]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.ensureKeyspace(keyspaceName)
	ks.putType(typeLabel, graphwire.BaseRelationType)
	for role := range players {
		ks.putType(role, graphwire.BaseRole)
	}
	id := ks.newID()
	cp := make(map[string][]string, len(players))
	for role, ids := range players {
		cp[role] = append([]string(nil), ids...)
	}
	ks.things[id] = &thingRec{ID: id, TypeLabel: typeLabel, Base: graphwire.BaseRelation, Players: cp}
	return id
}

// SeedHas attaches an attribute instance to a thing in committed state.
func (s *Store) SeedHas(keyspaceName, thingID, attributeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := s.ensureKeyspace(keyspaceName)
	th, ok := ks.things[thingID]
	if !ok {
		return
	}
	for _, id := range th.Attrs {
		if id == attributeID {
			return
		}
	}
	th.Attrs = append(th.Attrs, attributeID)
}
