// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValueInfersKind(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantKind ValueKind
	}{
		{name: "string", value: "alice", wantKind: KindString},
		{name: "bool", value: true, wantKind: KindBoolean},
		{name: "int32", value: int32(7), wantKind: KindInteger},
		{name: "int64", value: int64(7), wantKind: KindLong},
		{name: "plain int maps to long", value: 7, wantKind: KindLong},
		{name: "float32", value: float32(1.5), wantKind: KindFloat},
		{name: "float64", value: 1.5, wantKind: KindDouble},
		{name: "time", value: time.Unix(100, 0), wantKind: KindDateTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := EncodeValue(tt.value)
			require.NoError(t, err)

			kind, err := w.Kind()
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	values := []any{"bob", false, int32(-3), int64(1 << 40), float32(0.25), 3.14159}
	for _, v := range values {
		w, err := EncodeValue(v)
		require.NoError(t, err)
		kind, err := w.Kind()
		require.NoError(t, err)

		got, err := DecodeValue(w, kind)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDateTimeNormalizedToUTCMillis(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2020, 6, 1, 12, 30, 45, 123_000_000, loc)

	w, err := EncodeValue(local)
	require.NoError(t, err)
	require.NotNil(t, w.DateTime)
	assert.Equal(t, local.UTC().UnixMilli(), *w.DateTime)

	got, err := DecodeValue(w, KindDateTime)
	require.NoError(t, err)
	ts, ok := got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())
	assert.True(t, ts.Equal(local.Truncate(time.Millisecond)))
}

func TestEncodeValueUnsupportedIsDefect(t *testing.T) {
	for _, v := range []any{[]string{"a"}, map[string]int{}, struct{}{}, nil, uint(1)} {
		_, err := EncodeValue(v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDefect), "value %T should be a defect", v)
	}
}

func TestDecodeValueKindMismatchIsDefect(t *testing.T) {
	w, err := EncodeValue("alice")
	require.NoError(t, err)

	_, err = DecodeValue(w, KindLong)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))
}

func TestValueKindWireEnum(t *testing.T) {
	for _, kind := range []ValueKind{KindString, KindBoolean, KindInteger, KindLong, KindFloat, KindDouble, KindDateTime} {
		s, err := kind.wire()
		require.NoError(t, err)

		back, err := ValueKindFromWire(s)
		require.NoError(t, err)
		assert.Equal(t, kind, back)
	}

	_, err := ValueKindFromWire("decimal")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))
}
