package api

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueTypeName(t *testing.T) {
	tests := []struct {
		in  ValueType
		exp string
	}{
		{ValueTypeI32, "i32"},
		{ValueTypeI64, "i64"},
		{ValueTypeF32, "f32"},
		{ValueTypeF64, "f64"},
		{ValueTypeV128, "v128"},
		{ValueTypeFuncref, "funcref"},
		{ValueTypeExternref, "externref"},
		{0xff, "unknown"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.exp, ValueTypeName(tc.in))
	}
}

func TestResultType_Equal(t *testing.T) {
	require.True(t, ResultType{ValueTypeI32, ValueTypeF64}.Equal(ResultType{ValueTypeI32, ValueTypeF64}))
	require.False(t, ResultType{ValueTypeI32}.Equal(ResultType{ValueTypeI64}))
	require.False(t, ResultType{ValueTypeI32}.Equal(ResultType{}))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	require.Equal(t, int32(-1), int32(uint32(EncodeI32(-1))))
	require.Equal(t, float32(1.5), DecodeF32(EncodeF32(1.5)))
	require.Equal(t, 1.5, DecodeF64(EncodeF64(1.5)))
}

func TestDynamicResult_Equal_NaN(t *testing.T) {
	nan32 := EncodeF32(float32(math.NaN()))
	nan64 := EncodeF64(math.NaN())
	a := DynamicResult{Type: ResultType{ValueTypeF32, ValueTypeF64}, Values: []uint64{nan32, nan64}}
	b := DynamicResult{Type: ResultType{ValueTypeF32, ValueTypeF64}, Values: []uint64{nan32, nan64}}
	require.True(t, a.Equal(b))

	c := DynamicResult{Type: ResultType{ValueTypeI32}, Values: []uint64{5}}
	d := DynamicResult{Type: ResultType{ValueTypeI32}, Values: []uint64{6}}
	require.False(t, c.Equal(d))
}
