// Package api includes constants and value encodings shared by the engine's
// public surface and its embedders. It mirrors the split the teacher
// (tetratelabs/wazero) draws between its low-level api package and the
// higher-level runtime package: everything here is stable ABI, nothing here
// knows about the store or interpreter.
package api

import (
	"fmt"
	"math"
)

// ExternType classifies imports and exports by the index space they name.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

const (
	ExternTypeFuncName   = "func"
	ExternTypeTableName  = "table"
	ExternTypeMemoryName = "memory"
	ExternTypeGlobalName = "global"
)

// ExternTypeName returns the text-format field name of the given ExternType.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return ExternTypeFuncName
	case ExternTypeTable:
		return ExternTypeTableName
	case ExternTypeMemory:
		return ExternTypeMemoryName
	case ExternTypeGlobal:
		return ExternTypeGlobalName
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType is a value type as defined by the binary format: a numeric type
// (i32/i64/f32/f64), the v128 vector type, or a reference type
// (funcref/externref).
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the text-format name of the given ValueType, or
// "unknown" if it isn't one of the constants above.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// IsNumType reports whether t is one of the four numeric value types.
func IsNumType(t ValueType) bool {
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	}
	return false
}

// IsRefType reports whether t is funcref or externref.
func IsRefType(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// ResultType is an ordered sequence of value types: function parameter
// lists, function result lists, and block types are all result types.
type ResultType []ValueType

// Equal reports whether r and o list the same value types in the same order.
func (r ResultType) Equal(o ResultType) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

func (r ResultType) String() string {
	if len(r) == 0 {
		return "null"
	}
	s := make([]byte, 0, len(r)*3)
	for _, t := range r {
		s = append(s, ValueTypeName(t)...)
	}
	return string(s)
}

// DynamicResult is the outcome of a successful store-level invoke: the
// callee's declared output ResultType paired with the values produced,
// encoded per the Encode/Decode helpers below.
type DynamicResult struct {
	Type   ResultType
	Values []uint64
}

// Equal implements the invocation contract's float equality rule (spec
// §6.2): NaN compares equal to NaN so round-trip assertion tests can use
// ordinary equality on floating point results.
func (d DynamicResult) Equal(o DynamicResult) bool {
	if !d.Type.Equal(o.Type) || len(d.Values) != len(o.Values) {
		return false
	}
	for i, t := range d.Type {
		a, b := d.Values[i], o.Values[i]
		switch t {
		case ValueTypeF32:
			af, bf := DecodeF32(a), DecodeF32(b)
			if af != bf && !(math.IsNaN(float64(af)) && math.IsNaN(float64(bf))) {
				return false
			}
		case ValueTypeF64:
			ad, bd := DecodeF64(a), DecodeF64(b)
			if ad != bd && !(math.IsNaN(ad) && math.IsNaN(bd)) {
				return false
			}
		default:
			if a != b {
				return false
			}
		}
	}
	return true
}

// EncodeExternref encodes an opaque host handle as a ValueTypeExternref.
func EncodeExternref(input uintptr) uint64 { return uint64(input) }

// DecodeExternref decodes a ValueTypeExternref back to a host handle.
func DecodeExternref(input uint64) uintptr { return uintptr(input) }

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as a ValueTypeF32.
//
// See DecodeF32
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes the input as a ValueTypeF32.
//
// See EncodeF32
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as a ValueTypeF64.
//
// See DecodeF64
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes the input as a ValueTypeF64.
//
// See EncodeF64
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }
