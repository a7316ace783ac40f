// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import "github.com/apache/arrow-go/v18/arrow"

// Method names carried in request metadata, one per logical operation.
const (
	MethodSessionOpen        = "session.open"
	MethodSessionClose       = "session.close"
	MethodKeyspaceDelete     = "keyspace.delete"
	MethodKeyspaceRetrieve   = "keyspace.retrieve"
	MethodTransactionOpen    = "transaction.open"
	MethodTransactionCommit  = "transaction.commit"
	MethodQueryIter          = "transaction.query.iter"
	MethodIterContinue       = "transaction.iter.continue"
	MethodGetSchemaConcept   = "transaction.getSchemaConcept"
	MethodGetConcept         = "transaction.getConcept"
	MethodGetAttributesIter  = "transaction.getAttributes.iter"
	MethodPutEntityType      = "transaction.putEntityType"
	MethodPutAttributeType   = "transaction.putAttributeType"
	MethodPutRelationType    = "transaction.putRelationType"
	MethodPutRole            = "transaction.putRole"
	MethodPutRule            = "transaction.putRule"
	MethodThingType          = "thing.type"
	MethodThingRelationsIter = "thing.relations.iter"
	MethodThingRolesIter     = "thing.roles.iter"
	MethodThingAttrsIter     = "thing.attributes.iter"
	MethodThingKeysIter      = "thing.keys.iter"
	MethodThingHas           = "thing.has"
	MethodThingUnhas         = "thing.unhas"
	MethodTypeSetLabel       = "type.label.set"
	MethodTypeSup            = "type.sup"
	MethodTypeSetSup         = "type.sup.set"
	MethodTypeInstancesIter  = "type.instances.iter"
)

// ConceptRef is the wire reference to a concept in a request: exactly its id
// and base-type tag.
type ConceptRef struct {
	ID       string `arrow:"id"`
	BaseType string `arrow:"base_type"`
}

var refSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "base_type", Type: arrow.BinaryTypes.String},
}, nil)

// ArrowSchema implements ArrowSerializable.
func (ConceptRef) ArrowSchema() *arrow.Schema {
	return refSchema
}

// RefOf derives the wire reference for a concept by testing its variant in a
// fixed priority order; first match wins. A concept matching no variant is a
// defect.
func RefOf(c *Concept) (ConceptRef, error) {
	if c == nil {
		return ConceptRef{}, defectf(errorTypeUnsupportedValue, "nil concept reference")
	}
	tag, err := c.Base.wire()
	if err != nil {
		return ConceptRef{}, defectf(errorTypeUnsupportedValue, "concept %q: %v", c.ID, err)
	}
	return ConceptRef{ID: c.ID, BaseType: tag}, nil
}

func refsOf(concepts []*Concept) ([]ConceptRef, error) {
	refs := make([]ConceptRef, 0, len(concepts))
	for _, c := range concepts {
		ref, err := RefOf(c)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Request parameter structs: one per operation, fields mapped to wire
// columns by `graphwire` tags. These are exported so server implementations
// (such as graphtest) can decode them with DecodeParams.

type SessionOpenParams struct {
	Keyspace string `graphwire:"keyspace"`
}

type SessionCloseParams struct {
	SessionID string `graphwire:"session_id"`
}

type KeyspaceDeleteParams struct {
	Name     string  `graphwire:"name"`
	Username *string `graphwire:"username"`
	Password *string `graphwire:"password"`
}

type KeyspaceRetrieveParams struct {
	Username *string `graphwire:"username"`
	Password *string `graphwire:"password"`
}

type TransactionOpenParams struct {
	SessionID string `graphwire:"session_id"`
	Mode      string `graphwire:"mode"` // "READ" or "WRITE"
}

type TransactionCommitParams struct{}

type QueryIterParams struct {
	Query     string `graphwire:"query"`
	Infer     *bool  `graphwire:"infer"`
	Explain   *bool  `graphwire:"explain"`
	BatchSize *int64 `graphwire:"batch_size"`
}

type IterContinueParams struct {
	Token string `graphwire:"token"`
}

type GetSchemaConceptParams struct {
	Label string `graphwire:"label"`
}

type GetConceptParams struct {
	ID string `graphwire:"id"`
}

type GetAttributesParams struct {
	Value WireValue `graphwire:"value,binary"`
}

type PutEntityTypeParams struct {
	Label string `graphwire:"label"`
}

type PutAttributeTypeParams struct {
	Label     string `graphwire:"label"`
	ValueKind string `graphwire:"value_kind"`
}

type PutRelationTypeParams struct {
	Label string `graphwire:"label"`
}

type PutRoleParams struct {
	Label string `graphwire:"label"`
}

type PutRuleParams struct {
	Label string `graphwire:"label"`
	When  string `graphwire:"when"`
	Then  string `graphwire:"then"`
}

type ThingTypeParams struct {
	ID string `graphwire:"id"`
}

type ThingRelationsParams struct {
	ID    string       `graphwire:"id"`
	Roles []ConceptRef `graphwire:"roles"`
}

type ThingRolesParams struct {
	ID string `graphwire:"id"`
}

type ThingAttributesParams struct {
	ID    string       `graphwire:"id"`
	Types []ConceptRef `graphwire:"types"`
}

type ThingHasParams struct {
	ID        string     `graphwire:"id"`
	Attribute ConceptRef `graphwire:"attribute,binary"`
}

type TypeSetLabelParams struct {
	ID    string `graphwire:"id"`
	Label string `graphwire:"label"`
}

type TypeSupParams struct {
	ID string `graphwire:"id"`
}

type TypeSetSupParams struct {
	ID  string     `graphwire:"id"`
	Sup ConceptRef `graphwire:"sup,binary"`
}

type TypeInstancesParams struct {
	ID string `graphwire:"id"`
}

// Result structs: one-row response payloads, mapped by `graphwire` tags.

type SessionOpenResult struct {
	SessionID string `graphwire:"session_id"`
}

// ConceptResult carries an optional concept; a null column means absent.
type ConceptResult struct {
	Concept *WireConcept `graphwire:"concept,binary"`
}

type KeyspacesResult struct {
	Names []string `graphwire:"names"`
}
