// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphtest

import (
	"fmt"

	"github.com/graphwire/graphwire-go/graphwire"
)

// conceptOfType builds the snapshot view of a schema concept.
func conceptOfType(t *typeDef) *graphwire.Concept {
	return &graphwire.Concept{
		ID:      t.ID,
		Base:    t.Base,
		Label:   t.Label,
		Kind:    t.ValueKind,
		HasKind: t.HasKind,
		When:    t.When,
		Then:    t.Then,
	}
}

// conceptOfThing builds the snapshot view of a data instance. Attribute
// instances carry their type's value kind alongside the value.
func conceptOfThing(ks *keyspace, th *thingRec) *graphwire.Concept {
	c := &graphwire.Concept{
		ID:       th.ID,
		Base:     th.Base,
		Value:    th.Value,
		Inferred: th.Inferred,
	}
	if th.Base == graphwire.BaseAttribute {
		if t, ok := ks.types[th.TypeLabel]; ok {
			c.Kind = t.ValueKind
			c.HasKind = t.HasKind
		}
	}
	return c
}

func optionalConcept(c *graphwire.Concept) (graphwire.ConceptResult, error) {
	if c == nil {
		return graphwire.ConceptResult{}, nil
	}
	wc, err := graphwire.EncodeConcept(c)
	if err != nil {
		return graphwire.ConceptResult{}, err
	}
	return graphwire.ConceptResult{Concept: wc}, nil
}

// handleTx executes one transaction-scoped request.
func (s *Server) handleTx(req *graphwire.Request, tx *txState) (replyFunc, error) {
	ks := tx.ks

	mutating := func() error {
		if tx.mode != graphwire.ModeWrite {
			return fmt.Errorf("%s requires a WRITE transaction", req.Method)
		}
		return nil
	}

	switch req.Method {
	case graphwire.MethodQueryIter:
		var p graphwire.QueryIterParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		t, ok := ks.types[p.Query]
		if !ok {
			return nil, fmt.Errorf("unknown type label %q", p.Query)
		}
		var out []*graphwire.Concept
		for _, th := range ks.instancesOf(t.Label) {
			out = append(out, conceptOfThing(ks, th))
		}
		var size int64
		if p.BatchSize != nil {
			size = *p.BatchSize
		}
		return s.stream(tx, out, size), nil

	case graphwire.MethodGetSchemaConcept:
		var p graphwire.GetSchemaConceptParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		var c *graphwire.Concept
		if t, ok := ks.types[p.Label]; ok {
			c = conceptOfType(t)
		}
		payload, err := optionalConcept(c)
		if err != nil {
			return nil, err
		}
		return result(payload), nil

	case graphwire.MethodGetConcept:
		var p graphwire.GetConceptParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		var c *graphwire.Concept
		if th, ok := ks.things[p.ID]; ok {
			c = conceptOfThing(ks, th)
		} else if t := ks.typeByID(p.ID); t != nil {
			c = conceptOfType(t)
		}
		payload, err := optionalConcept(c)
		if err != nil {
			return nil, err
		}
		return result(payload), nil

	case graphwire.MethodGetAttributesIter:
		var p graphwire.GetAttributesParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		kind, err := p.Value.Kind()
		if err != nil {
			return nil, err
		}
		value, err := graphwire.DecodeValue(p.Value, kind)
		if err != nil {
			return nil, err
		}
		var out []*graphwire.Concept
		for _, th := range ks.instancesOf(rootLabel) {
			if th.Base != graphwire.BaseAttribute {
				continue
			}
			t, ok := ks.types[th.TypeLabel]
			if !ok || t.ValueKind != kind {
				continue
			}
			if valueEqual(th.Value, value) {
				out = append(out, conceptOfThing(ks, th))
			}
		}
		return s.stream(tx, out, 0), nil

	case graphwire.MethodPutEntityType:
		var p graphwire.PutEntityTypeParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		return s.putType(tx, p.Label, graphwire.BaseEntityType, nil)

	case graphwire.MethodPutRelationType:
		var p graphwire.PutRelationTypeParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		return s.putType(tx, p.Label, graphwire.BaseRelationType, nil)

	case graphwire.MethodPutRole:
		var p graphwire.PutRoleParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		return s.putType(tx, p.Label, graphwire.BaseRole, nil)

	case graphwire.MethodPutAttributeType:
		var p graphwire.PutAttributeTypeParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		kind, err := graphwire.ValueKindFromWire(p.ValueKind)
		if err != nil {
			return nil, err
		}
		return s.putType(tx, p.Label, graphwire.BaseAttributeType, func(t *typeDef) {
			t.ValueKind = kind
			t.HasKind = true
		})

	case graphwire.MethodPutRule:
		var p graphwire.PutRuleParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		return s.putType(tx, p.Label, graphwire.BaseRule, func(t *typeDef) {
			t.When = p.When
			t.Then = p.Then
		})

	case graphwire.MethodThingType:
		var p graphwire.ThingTypeParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		th, err := s.thing(ks, p.ID)
		if err != nil {
			return nil, err
		}
		t, ok := ks.types[th.TypeLabel]
		if !ok {
			return nil, fmt.Errorf("instance %q has no type", p.ID)
		}
		payload, err := optionalConcept(conceptOfType(t))
		if err != nil {
			return nil, err
		}
		return result(payload), nil

	case graphwire.MethodThingRelationsIter:
		var p graphwire.ThingRelationsParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if _, err := s.thing(ks, p.ID); err != nil {
			return nil, err
		}
		roleFilter := make(map[string]bool, len(p.Roles))
		for _, ref := range p.Roles {
			if t := ks.typeByID(ref.ID); t != nil {
				roleFilter[t.Label] = true
			}
		}
		var out []*graphwire.Concept
		for _, th := range ks.instancesOf(rootLabel) {
			if th.Base != graphwire.BaseRelation {
				continue
			}
			for role, players := range th.Players {
				if len(roleFilter) > 0 && !roleFilter[role] {
					continue
				}
				if containsID(players, p.ID) {
					out = append(out, conceptOfThing(ks, th))
					break
				}
			}
		}
		return s.stream(tx, out, 0), nil

	case graphwire.MethodThingRolesIter:
		var p graphwire.ThingRolesParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if _, err := s.thing(ks, p.ID); err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var out []*graphwire.Concept
		for _, th := range ks.instancesOf(rootLabel) {
			if th.Base != graphwire.BaseRelation {
				continue
			}
			for role, players := range th.Players {
				if seen[role] || !containsID(players, p.ID) {
					continue
				}
				seen[role] = true
				if t, ok := ks.types[role]; ok {
					out = append(out, conceptOfType(t))
				}
			}
		}
		return s.stream(tx, out, 0), nil

	case graphwire.MethodThingAttrsIter, graphwire.MethodThingKeysIter:
		var p graphwire.ThingAttributesParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		th, err := s.thing(ks, p.ID)
		if err != nil {
			return nil, err
		}
		typeFilter := make(map[string]bool, len(p.Types))
		for _, ref := range p.Types {
			if t := ks.typeByID(ref.ID); t != nil {
				typeFilter[t.Label] = true
			}
		}
		keysOnly := req.Method == graphwire.MethodThingKeysIter
		var out []*graphwire.Concept
		for _, attrID := range th.Attrs {
			attr, ok := ks.things[attrID]
			if !ok {
				continue
			}
			if len(typeFilter) > 0 && !typeFilter[attr.TypeLabel] {
				continue
			}
			if keysOnly {
				t, ok := ks.types[attr.TypeLabel]
				if !ok || !t.Key {
					continue
				}
			}
			out = append(out, conceptOfThing(ks, attr))
		}
		return s.stream(tx, out, 0), nil

	case graphwire.MethodThingHas:
		var p graphwire.ThingHasParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if err := mutating(); err != nil {
			return nil, err
		}
		th, err := s.thing(ks, p.ID)
		if err != nil {
			return nil, err
		}
		attr, err := s.thing(ks, p.Attribute.ID)
		if err != nil {
			return nil, err
		}
		if attr.Base != graphwire.BaseAttribute {
			return nil, fmt.Errorf("%q is not an attribute instance", p.Attribute.ID)
		}
		if !containsID(th.Attrs, attr.ID) {
			th.Attrs = append(th.Attrs, attr.ID)
		}
		return ack(), nil

	case graphwire.MethodThingUnhas:
		var p graphwire.ThingHasParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if err := mutating(); err != nil {
			return nil, err
		}
		th, err := s.thing(ks, p.ID)
		if err != nil {
			return nil, err
		}
		kept := th.Attrs[:0]
		for _, id := range th.Attrs {
			if id != p.Attribute.ID {
				kept = append(kept, id)
			}
		}
		th.Attrs = kept
		return ack(), nil

	case graphwire.MethodTypeSetLabel:
		var p graphwire.TypeSetLabelParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if err := mutating(); err != nil {
			return nil, err
		}
		t := ks.typeByID(p.ID)
		if t == nil {
			return nil, fmt.Errorf("unknown type %q", p.ID)
		}
		if _, taken := ks.types[p.Label]; taken {
			return nil, fmt.Errorf("label %q already in use", p.Label)
		}
		old := t.Label
		delete(ks.types, old)
		t.Label = p.Label
		ks.types[p.Label] = t
		for _, other := range ks.types {
			if other.Sup == old {
				other.Sup = p.Label
			}
		}
		for _, th := range ks.things {
			if th.TypeLabel == old {
				th.TypeLabel = p.Label
			}
		}
		return ack(), nil

	case graphwire.MethodTypeSup:
		var p graphwire.TypeSupParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		t := ks.typeByID(p.ID)
		if t == nil {
			return nil, fmt.Errorf("unknown type %q", p.ID)
		}
		var c *graphwire.Concept
		if sup, ok := ks.types[t.Sup]; ok {
			c = conceptOfType(sup)
		}
		payload, err := optionalConcept(c)
		if err != nil {
			return nil, err
		}
		return result(payload), nil

	case graphwire.MethodTypeSetSup:
		var p graphwire.TypeSetSupParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if err := mutating(); err != nil {
			return nil, err
		}
		t := ks.typeByID(p.ID)
		if t == nil {
			return nil, fmt.Errorf("unknown type %q", p.ID)
		}
		sup := ks.typeByID(p.Sup.ID)
		if sup == nil {
			return nil, fmt.Errorf("unknown supertype %q", p.Sup.ID)
		}
		if t.Base != sup.Base && sup.Base != graphwire.BaseMetaType {
			return nil, fmt.Errorf("%q cannot subtype a %s", t.Label, sup.Base)
		}
		if ks.subtypeOf(sup.Label, t.Label) {
			return nil, fmt.Errorf("moving %q under %q would form a cycle", t.Label, sup.Label)
		}
		t.Sup = sup.Label
		return ack(), nil

	case graphwire.MethodTypeInstancesIter:
		var p graphwire.TypeInstancesParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		t := ks.typeByID(p.ID)
		if t == nil {
			return nil, fmt.Errorf("unknown type %q", p.ID)
		}
		var out []*graphwire.Concept
		for _, th := range ks.instancesOf(t.Label) {
			out = append(out, conceptOfThing(ks, th))
		}
		return s.stream(tx, out, 0), nil
	}

	return nil, fmt.Errorf("unknown method %q", req.Method)
}

// putType handles the put* family: create-or-retrieve plus an optional
// refinement of the definition.
func (s *Server) putType(tx *txState, label string, base graphwire.BaseType, refine func(*typeDef)) (replyFunc, error) {
	if tx.mode != graphwire.ModeWrite {
		return nil, fmt.Errorf("schema writes require a WRITE transaction")
	}
	t, err := tx.ks.putType(label, base)
	if err != nil {
		return nil, err
	}
	if refine != nil {
		refine(t)
	}
	payload, err := optionalConcept(conceptOfType(t))
	if err != nil {
		return nil, err
	}
	return result(payload), nil
}

func (s *Server) thing(ks *keyspace, id string) (*thingRec, error) {
	th, ok := ks.things[id]
	if !ok {
		return nil, fmt.Errorf("unknown instance %q", id)
	}
	return th, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
