// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// ValueKind identifies one of the closed set of attribute value kinds.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBoolean
	KindInteger // 32-bit signed integer
	KindLong    // 64-bit signed integer
	KindFloat   // 32-bit float
	KindDouble  // 64-bit float
	KindDateTime
)

func (k ValueKind) String() string {
	s, err := k.wire()
	if err != nil {
		return "unknown"
	}
	return s
}

// wire returns the wire enum string for a value kind.
func (k ValueKind) wire() (string, error) {
	switch k {
	case KindString:
		return "string", nil
	case KindBoolean:
		return "boolean", nil
	case KindInteger:
		return "integer", nil
	case KindLong:
		return "long", nil
	case KindFloat:
		return "float", nil
	case KindDouble:
		return "double", nil
	case KindDateTime:
		return "datetime", nil
	}
	return "", defectf(errorTypeUnsupportedValue, "unrecognised value kind %d", int(k))
}

// ValueKindFromWire decodes a wire enum string. An unrecognised value is a
// defect, not a recoverable condition.
func ValueKindFromWire(s string) (ValueKind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "boolean":
		return KindBoolean, nil
	case "integer":
		return KindInteger, nil
	case "long":
		return KindLong, nil
	case "float":
		return KindFloat, nil
	case "double":
		return KindDouble, nil
	case "datetime":
		return KindDateTime, nil
	}
	return 0, defectf(errorTypeUnsupportedValue, "unrecognised wire value kind %q", s)
}

// valueFields is the Arrow shape of the tagged value encoding: one nullable
// field per value kind, exactly one set per message. Datetime is
// UTC-normalised epoch milliseconds.
var valueFields = []arrow.Field{
	{Name: "string", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "boolean", Type: &arrow.BooleanType{}, Nullable: true},
	{Name: "integer", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "long", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "float", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
	{Name: "double", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "datetime", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
}

var (
	valueStructType = arrow.StructOf(valueFields...)
	valueSchema     = arrow.NewSchema(valueFields, nil)
)

// WireValue is the tagged wire encoding of an attribute value. Exactly one
// field is set.
type WireValue struct {
	String   *string  `arrow:"string"`
	Boolean  *bool    `arrow:"boolean"`
	Integer  *int32   `arrow:"integer"`
	Long     *int64   `arrow:"long"`
	Float    *float32 `arrow:"float"`
	Double   *float64 `arrow:"double"`
	DateTime *int64   `arrow:"datetime"`
}

// ArrowSchema implements ArrowSerializable.
func (WireValue) ArrowSchema() *arrow.Schema {
	return valueSchema
}

// Kind reports which field of the tagged encoding is set. A wire value with
// no field set is a defect.
func (w WireValue) Kind() (ValueKind, error) {
	switch {
	case w.String != nil:
		return KindString, nil
	case w.Boolean != nil:
		return KindBoolean, nil
	case w.Integer != nil:
		return KindInteger, nil
	case w.Long != nil:
		return KindLong, nil
	case w.Float != nil:
		return KindFloat, nil
	case w.Double != nil:
		return KindDouble, nil
	case w.DateTime != nil:
		return KindDateTime, nil
	}
	return 0, defectf(errorTypeUnsupportedValue, "wire value carries no field")
}

// EncodeValue maps a runtime value onto its wire encoding. The kind is
// inferred from the value's runtime type: string, bool, int32, int64, int
// (treated as the 64-bit kind), float32, float64, and time.Time are accepted;
// anything else is an UnsupportedValue defect, never a silent coercion.
func EncodeValue(v any) (WireValue, error) {
	switch val := v.(type) {
	case string:
		return WireValue{String: &val}, nil
	case bool:
		return WireValue{Boolean: &val}, nil
	case int32:
		return WireValue{Integer: &val}, nil
	case int64:
		return WireValue{Long: &val}, nil
	case int:
		l := int64(val)
		return WireValue{Long: &l}, nil
	case float32:
		return WireValue{Float: &val}, nil
	case float64:
		return WireValue{Double: &val}, nil
	case time.Time:
		ms := val.UTC().UnixMilli()
		return WireValue{DateTime: &ms}, nil
	}
	return WireValue{}, defectf(errorTypeUnsupportedValue, "unrecognised value %T", v)
}

// DecodeValue maps a wire value back onto a runtime value of the expected
// kind. A wire value whose set field does not match the expected kind is a
// defect surfaced here, not coerced. Datetimes come back as naive UTC
// timestamps.
func DecodeValue(w WireValue, kind ValueKind) (any, error) {
	switch kind {
	case KindString:
		if w.String != nil {
			return *w.String, nil
		}
	case KindBoolean:
		if w.Boolean != nil {
			return *w.Boolean, nil
		}
	case KindInteger:
		if w.Integer != nil {
			return *w.Integer, nil
		}
	case KindLong:
		if w.Long != nil {
			return *w.Long, nil
		}
	case KindFloat:
		if w.Float != nil {
			return *w.Float, nil
		}
	case KindDouble:
		if w.Double != nil {
			return *w.Double, nil
		}
	case KindDateTime:
		if w.DateTime != nil {
			return time.UnixMilli(*w.DateTime).UTC(), nil
		}
	default:
		return nil, defectf(errorTypeUnsupportedValue, "unrecognised value kind %d", int(kind))
	}
	return nil, defectf(errorTypeUnsupportedValue, "wire value does not carry a %s", kind)
}
