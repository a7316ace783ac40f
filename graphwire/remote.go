// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import "context"

// RemoteConcept is a transaction-bound view of a concept: every call is a
// round trip against the current server state. It is obtained from
// Transaction.Remote and is only usable while that transaction stays open.
//
// Calls that apply only to one family of concepts (things vs. types) are a
// server-side rejection when invoked on the wrong family; the view itself
// does not re-check the variant.
type RemoteConcept struct {
	tx       *Transaction
	id       string
	base     BaseType
	inferred bool
}

// ID returns the bound concept's identifier.
func (r *RemoteConcept) ID() string {
	return r.id
}

// IsInferred reports whether the bound instance was derived by rule
// inference. The flag travels with the snapshot, so no round trip is made.
func (r *RemoteConcept) IsInferred() bool {
	return r.inferred
}

// Type fetches the instance's direct type.
func (r *RemoteConcept) Type(ctx context.Context) (*Concept, error) {
	return r.tx.conceptCall(ctx, MethodThingType, ThingTypeParams{ID: r.id})
}

// Relations streams the relation instances this instance participates in,
// optionally filtered to participation via the given roles.
func (r *RemoteConcept) Relations(ctx context.Context, roles ...*Concept) (*Iterator, error) {
	refs, err := refsOf(roles)
	if err != nil {
		return nil, err
	}
	return r.tx.openIterator(ctx, MethodThingRelationsIter, ThingRelationsParams{ID: r.id, Roles: refs})
}

// Roles streams the roles this instance currently plays.
func (r *RemoteConcept) Roles(ctx context.Context) (*Iterator, error) {
	return r.tx.openIterator(ctx, MethodThingRolesIter, ThingRolesParams{ID: r.id})
}

// Attributes streams the attribute instances attached to this instance,
// optionally filtered by attribute type.
func (r *RemoteConcept) Attributes(ctx context.Context, types ...*Concept) (*Iterator, error) {
	refs, err := refsOf(types)
	if err != nil {
		return nil, err
	}
	return r.tx.openIterator(ctx, MethodThingAttrsIter, ThingAttributesParams{ID: r.id, Types: refs})
}

// Keys streams the subset of attached attributes whose types are declared as
// keys, optionally filtered by attribute type.
func (r *RemoteConcept) Keys(ctx context.Context, types ...*Concept) (*Iterator, error) {
	refs, err := refsOf(types)
	if err != nil {
		return nil, err
	}
	return r.tx.openIterator(ctx, MethodThingKeysIter, ThingAttributesParams{ID: r.id, Types: refs})
}

// Has attaches an attribute instance to this instance. Attaching an
// attribute that is already attached leaves a single association. Returns
// the receiver so attachments chain.
func (r *RemoteConcept) Has(ctx context.Context, attribute *Concept) (*RemoteConcept, error) {
	ref, err := RefOf(attribute)
	if err != nil {
		return nil, err
	}
	if err := r.tx.ackCall(ctx, MethodThingHas, ThingHasParams{ID: r.id, Attribute: ref}); err != nil {
		return nil, err
	}
	return r, nil
}

// Unhas detaches an attribute instance from this instance.
func (r *RemoteConcept) Unhas(ctx context.Context, attribute *Concept) error {
	ref, err := RefOf(attribute)
	if err != nil {
		return err
	}
	return r.tx.ackCall(ctx, MethodThingUnhas, ThingHasParams{ID: r.id, Attribute: ref})
}

// SetLabel renames the bound type.
func (r *RemoteConcept) SetLabel(ctx context.Context, label string) error {
	return r.tx.ackCall(ctx, MethodTypeSetLabel, TypeSetLabelParams{ID: r.id, Label: label})
}

// Supertype fetches the bound type's direct supertype; the root of a
// hierarchy yields (nil, nil).
func (r *RemoteConcept) Supertype(ctx context.Context) (*Concept, error) {
	return r.tx.conceptCall(ctx, MethodTypeSup, TypeSupParams{ID: r.id})
}

// SetSupertype moves the bound type under a new direct supertype.
func (r *RemoteConcept) SetSupertype(ctx context.Context, sup *Concept) error {
	ref, err := RefOf(sup)
	if err != nil {
		return err
	}
	return r.tx.ackCall(ctx, MethodTypeSetSup, TypeSetSupParams{ID: r.id, Sup: ref})
}

// Instances streams the bound type's direct and indirect instances.
func (r *RemoteConcept) Instances(ctx context.Context) (*Iterator, error) {
	return r.tx.openIterator(ctx, MethodTypeInstancesIter, TypeInstancesParams{ID: r.id})
}
