// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// BaseType identifies the variant of a concept.
type BaseType int

const (
	BaseEntityType BaseType = iota
	BaseRelationType
	BaseAttributeType
	BaseEntity
	BaseRelation
	BaseAttribute
	BaseRole
	BaseRule
	BaseMetaType
)

func (b BaseType) String() string {
	s, err := b.wire()
	if err != nil {
		return "unknown"
	}
	return s
}

func (b BaseType) wire() (string, error) {
	switch b {
	case BaseEntityType:
		return "entity_type", nil
	case BaseRelationType:
		return "relation_type", nil
	case BaseAttributeType:
		return "attribute_type", nil
	case BaseEntity:
		return "entity", nil
	case BaseRelation:
		return "relation", nil
	case BaseAttribute:
		return "attribute", nil
	case BaseRole:
		return "role", nil
	case BaseRule:
		return "rule", nil
	case BaseMetaType:
		return "meta_type", nil
	}
	return "", defectf(errorTypeUnsupportedValue, "unrecognised base type %d", int(b))
}

func baseTypeFromWire(s string) (BaseType, error) {
	switch s {
	case "entity_type":
		return BaseEntityType, nil
	case "relation_type":
		return BaseRelationType, nil
	case "attribute_type":
		return BaseAttributeType, nil
	case "entity":
		return BaseEntity, nil
	case "relation":
		return BaseRelation, nil
	case "attribute":
		return BaseAttribute, nil
	case "role":
		return BaseRole, nil
	case "rule":
		return BaseRule, nil
	case "meta_type":
		return BaseMetaType, nil
	}
	return 0, defectf(errorTypeUnsupportedValue, "unrecognised wire base type %q", s)
}

// IsType reports whether b is a schema variant (a type, role, rule or the
// meta-type) rather than a data instance.
func (b BaseType) IsType() bool {
	switch b {
	case BaseEntityType, BaseRelationType, BaseAttributeType, BaseRole, BaseRule, BaseMetaType:
		return true
	case BaseEntity, BaseRelation, BaseAttribute:
		return false
	}
	return false
}

// IsThing reports whether b is a data instance variant.
func (b BaseType) IsThing() bool {
	switch b {
	case BaseEntity, BaseRelation, BaseAttribute:
		return true
	case BaseEntityType, BaseRelationType, BaseAttributeType, BaseRole, BaseRule, BaseMetaType:
		return false
	}
	return false
}

// Concept is a Local snapshot of a schema or data element: an immutable,
// detached view taken at one point in time. It stays valid after the owning
// transaction closes and never issues network calls. Facets that do not
// apply to the variant hold their zero value.
type Concept struct {
	ID       string
	Base     BaseType
	Label    string    // types, roles, rules
	Kind     ValueKind // attribute types and attributes
	HasKind  bool
	Value    any  // attributes: string, bool, int32, int64, float32, float64 or time.Time (UTC)
	Inferred bool // things: true iff derived by rule inference
	When     string
	Then     string // rules
}

// AttributeValueAs extracts an attribute snapshot's value as T. A mismatch
// between T and the stored kind is a defect, never a coercion.
func AttributeValueAs[T string | bool | int32 | int64 | float32 | float64 | time.Time](c *Concept) (T, error) {
	var zero T
	if c == nil || c.Value == nil {
		return zero, defectf(errorTypeUnsupportedValue, "concept carries no value")
	}
	v, ok := c.Value.(T)
	if !ok {
		return zero, defectf(errorTypeUnsupportedValue, "attribute value is %T, not %T", c.Value, zero)
	}
	return v, nil
}

// WireConcept is the wire encoding of a concept snapshot: one row of the
// concept batch schema. Absent facets are null.
type WireConcept struct {
	ID        string     `arrow:"id"`
	BaseType  string     `arrow:"base_type"`
	Label     *string    `arrow:"label"`
	ValueKind *string    `arrow:"value_kind"`
	Value     *WireValue `arrow:"value"`
	Inferred  *bool      `arrow:"inferred"`
	When      *string    `arrow:"when"`
	Then      *string    `arrow:"then"`
}

var conceptFields = []arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "base_type", Type: arrow.BinaryTypes.String},
	{Name: "label", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "value_kind", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "value", Type: valueStructType, Nullable: true},
	{Name: "inferred", Type: &arrow.BooleanType{}, Nullable: true},
	{Name: "when", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "then", Type: arrow.BinaryTypes.String, Nullable: true},
}

var conceptSchema = arrow.NewSchema(conceptFields, nil)

// ArrowSchema implements ArrowSerializable.
func (WireConcept) ArrowSchema() *arrow.Schema {
	return conceptSchema
}

// EncodeConcept maps a snapshot onto its wire encoding.
func EncodeConcept(c *Concept) (*WireConcept, error) {
	bt, err := c.Base.wire()
	if err != nil {
		return nil, err
	}
	w := &WireConcept{ID: c.ID, BaseType: bt}
	if c.Label != "" {
		w.Label = &c.Label
	}
	if c.HasKind {
		ks, err := c.Kind.wire()
		if err != nil {
			return nil, err
		}
		w.ValueKind = &ks
	}
	if c.Value != nil {
		wv, err := EncodeValue(c.Value)
		if err != nil {
			return nil, err
		}
		w.Value = &wv
	}
	if c.Base.IsThing() {
		inferred := c.Inferred
		w.Inferred = &inferred
	}
	if c.When != "" {
		w.When = &c.When
	}
	if c.Then != "" {
		w.Then = &c.Then
	}
	return w, nil
}

// Decode maps a wire concept back onto a snapshot, rejecting unrecognised
// variant and kind enums as defects.
func (w *WireConcept) Decode() (*Concept, error) {
	base, err := baseTypeFromWire(w.BaseType)
	if err != nil {
		return nil, err
	}
	c := &Concept{ID: w.ID, Base: base}
	if w.Label != nil {
		c.Label = *w.Label
	}
	if w.ValueKind != nil {
		kind, err := ValueKindFromWire(*w.ValueKind)
		if err != nil {
			return nil, err
		}
		c.Kind = kind
		c.HasKind = true
	}
	if w.Value != nil {
		if !c.HasKind {
			return nil, defectf(errorTypeUnsupportedValue, "wire concept %s carries a value without a value kind", w.ID)
		}
		v, err := DecodeValue(*w.Value, c.Kind)
		if err != nil {
			return nil, err
		}
		c.Value = v
	}
	if w.Inferred != nil {
		c.Inferred = *w.Inferred
	}
	if w.When != nil {
		c.When = *w.When
	}
	if w.Then != nil {
		c.Then = *w.Then
	}
	return c, nil
}

// decodeConceptRows decodes every row of a concept batch.
func decodeConceptRows(batch arrow.RecordBatch) ([]*Concept, error) {
	n := int(batch.NumRows())
	out := make([]*Concept, 0, n)
	for row := 0; row < n; row++ {
		var w WireConcept
		if err := decodeStructRow(batch, row, tagNested, &w); err != nil {
			return nil, transportf(err, "decoding concept row %d", row)
		}
		c, err := w.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
