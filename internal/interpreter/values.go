package interpreter

import "github.com/corewasm/corewasm/api"

// The operand stack is untyped: every value is a raw uint64 payload,
// reinterpreted according to the static type the validator already proved
// each instruction expects — the same representation store.GlobalInstance
// and table/memory cells use, so values move between them without
// conversion.

func popU64(stack *[]uint64) uint64 {
	s := *stack
	v := s[len(s)-1]
	*stack = s[:len(s)-1]
	return v
}

func pushU64(stack *[]uint64, v uint64) { *stack = append(*stack, v) }

func popN(stack *[]uint64, n int) []uint64 {
	s := *stack
	v := append([]uint64(nil), s[len(s)-n:]...)
	*stack = s[:len(s)-n]
	return v
}

func popI32(stack *[]uint64) int32   { return int32(uint32(popU64(stack))) }
func popU32(stack *[]uint64) uint32  { return uint32(popU64(stack)) }
func pushI32(stack *[]uint64, v int32) { pushU64(stack, api.EncodeI32(v)) }

func popI64(stack *[]uint64) int64    { return int64(popU64(stack)) }
func pushI64(stack *[]uint64, v int64) { pushU64(stack, api.EncodeI64(v)) }

func popF32(stack *[]uint64) float32   { return api.DecodeF32(popU64(stack)) }
func pushF32(stack *[]uint64, v float32) { pushU64(stack, api.EncodeF32(v)) }

func popF64(stack *[]uint64) float64   { return api.DecodeF64(popU64(stack)) }
func pushF64(stack *[]uint64, v float64) { pushU64(stack, api.EncodeF64(v)) }

func pushBool(stack *[]uint64, b bool) {
	if b {
		pushU64(stack, 1)
	} else {
		pushU64(stack, 0)
	}
}

// adjustStack implements a branch's {arity, drop} effect in place: the top
// `arity` values are preserved, the `drop` values beneath them discarded.
func adjustStack(stack []uint64, arity, drop int) []uint64 {
	if drop == 0 {
		return stack
	}
	n := len(stack)
	copy(stack[n-arity-drop:n-drop], stack[n-arity:n])
	return stack[:n-drop]
}
