package interpreter

import (
	"math"
	"math/bits"

	"github.com/corewasm/corewasm/internal/moremath"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wasmruntime"
)

// execNumeric evaluates op against stack if it is one of the pure numeric
// instructions (comparisons, arithmetic, conversions) and reports whether it
// recognized op at all — memory, table, control and variable instructions
// are handled by their own dispatch in exec.go.
func execNumeric(op wasm.Opcode, stack *[]uint64) (handled bool, err error) {
	switch op {
	case wasm.OpcodeI32Eqz:
		pushBool(stack, popI32(stack) == 0)
	case wasm.OpcodeI32Eq:
		b, a := popI32(stack), popI32(stack)
		pushBool(stack, a == b)
	case wasm.OpcodeI32Ne:
		b, a := popI32(stack), popI32(stack)
		pushBool(stack, a != b)
	case wasm.OpcodeI32LtS:
		b, a := popI32(stack), popI32(stack)
		pushBool(stack, a < b)
	case wasm.OpcodeI32LtU:
		b, a := popU32(stack), popU32(stack)
		pushBool(stack, a < b)
	case wasm.OpcodeI32GtS:
		b, a := popI32(stack), popI32(stack)
		pushBool(stack, a > b)
	case wasm.OpcodeI32GtU:
		b, a := popU32(stack), popU32(stack)
		pushBool(stack, a > b)
	case wasm.OpcodeI32LeS:
		b, a := popI32(stack), popI32(stack)
		pushBool(stack, a <= b)
	case wasm.OpcodeI32LeU:
		b, a := popU32(stack), popU32(stack)
		pushBool(stack, a <= b)
	case wasm.OpcodeI32GeS:
		b, a := popI32(stack), popI32(stack)
		pushBool(stack, a >= b)
	case wasm.OpcodeI32GeU:
		b, a := popU32(stack), popU32(stack)
		pushBool(stack, a >= b)

	case wasm.OpcodeI64Eqz:
		pushBool(stack, popI64(stack) == 0)
	case wasm.OpcodeI64Eq:
		b, a := popI64(stack), popI64(stack)
		pushBool(stack, a == b)
	case wasm.OpcodeI64Ne:
		b, a := popI64(stack), popI64(stack)
		pushBool(stack, a != b)
	case wasm.OpcodeI64LtS:
		b, a := popI64(stack), popI64(stack)
		pushBool(stack, a < b)
	case wasm.OpcodeI64LtU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushBool(stack, a < b)
	case wasm.OpcodeI64GtS:
		b, a := popI64(stack), popI64(stack)
		pushBool(stack, a > b)
	case wasm.OpcodeI64GtU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushBool(stack, a > b)
	case wasm.OpcodeI64LeS:
		b, a := popI64(stack), popI64(stack)
		pushBool(stack, a <= b)
	case wasm.OpcodeI64LeU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushBool(stack, a <= b)
	case wasm.OpcodeI64GeS:
		b, a := popI64(stack), popI64(stack)
		pushBool(stack, a >= b)
	case wasm.OpcodeI64GeU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushBool(stack, a >= b)

	case wasm.OpcodeF32Eq:
		b, a := popF32(stack), popF32(stack)
		pushBool(stack, a == b)
	case wasm.OpcodeF32Ne:
		b, a := popF32(stack), popF32(stack)
		pushBool(stack, a != b)
	case wasm.OpcodeF32Lt:
		b, a := popF32(stack), popF32(stack)
		pushBool(stack, a < b)
	case wasm.OpcodeF32Gt:
		b, a := popF32(stack), popF32(stack)
		pushBool(stack, a > b)
	case wasm.OpcodeF32Le:
		b, a := popF32(stack), popF32(stack)
		pushBool(stack, a <= b)
	case wasm.OpcodeF32Ge:
		b, a := popF32(stack), popF32(stack)
		pushBool(stack, a >= b)

	case wasm.OpcodeF64Eq:
		b, a := popF64(stack), popF64(stack)
		pushBool(stack, a == b)
	case wasm.OpcodeF64Ne:
		b, a := popF64(stack), popF64(stack)
		pushBool(stack, a != b)
	case wasm.OpcodeF64Lt:
		b, a := popF64(stack), popF64(stack)
		pushBool(stack, a < b)
	case wasm.OpcodeF64Gt:
		b, a := popF64(stack), popF64(stack)
		pushBool(stack, a > b)
	case wasm.OpcodeF64Le:
		b, a := popF64(stack), popF64(stack)
		pushBool(stack, a <= b)
	case wasm.OpcodeF64Ge:
		b, a := popF64(stack), popF64(stack)
		pushBool(stack, a >= b)

	case wasm.OpcodeI32Clz:
		pushI32(stack, int32(bits.LeadingZeros32(uint32(popI32(stack)))))
	case wasm.OpcodeI32Ctz:
		pushI32(stack, int32(bits.TrailingZeros32(uint32(popI32(stack)))))
	case wasm.OpcodeI32Popcnt:
		pushI32(stack, int32(bits.OnesCount32(uint32(popI32(stack)))))
	case wasm.OpcodeI32Add:
		b, a := popI32(stack), popI32(stack)
		pushI32(stack, int32(uint32(a)+uint32(b)))
	case wasm.OpcodeI32Sub:
		b, a := popI32(stack), popI32(stack)
		pushI32(stack, int32(uint32(a)-uint32(b)))
	case wasm.OpcodeI32Mul:
		b, a := popI32(stack), popI32(stack)
		pushI32(stack, int32(uint32(a)*uint32(b)))
	case wasm.OpcodeI32DivS:
		b, a := popI32(stack), popI32(stack)
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i32.div_s")
		}
		if a == math.MinInt32 && b == -1 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerOverflow, "i32.div_s")
		}
		pushI32(stack, a/b)
	case wasm.OpcodeI32DivU:
		b, a := popU32(stack), popU32(stack)
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i32.div_u")
		}
		pushI32(stack, int32(a/b))
	case wasm.OpcodeI32RemS:
		b, a := popI32(stack), popI32(stack)
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i32.rem_s")
		}
		if a == math.MinInt32 && b == -1 {
			pushI32(stack, 0)
		} else {
			pushI32(stack, a%b)
		}
	case wasm.OpcodeI32RemU:
		b, a := popU32(stack), popU32(stack)
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i32.rem_u")
		}
		pushI32(stack, int32(a%b))
	case wasm.OpcodeI32And:
		b, a := popI32(stack), popI32(stack)
		pushI32(stack, a&b)
	case wasm.OpcodeI32Or:
		b, a := popI32(stack), popI32(stack)
		pushI32(stack, a|b)
	case wasm.OpcodeI32Xor:
		b, a := popI32(stack), popI32(stack)
		pushI32(stack, a^b)
	case wasm.OpcodeI32Shl:
		b, a := popU32(stack), popU32(stack)
		pushI32(stack, int32(a<<(b%32)))
	case wasm.OpcodeI32ShrS:
		b, a := popU32(stack), popI32(stack)
		pushI32(stack, a>>(b%32))
	case wasm.OpcodeI32ShrU:
		b, a := popU32(stack), popU32(stack)
		pushI32(stack, int32(a>>(b%32)))
	case wasm.OpcodeI32Rotl:
		b, a := popU32(stack), popU32(stack)
		pushI32(stack, int32(bits.RotateLeft32(a, int(b%32))))
	case wasm.OpcodeI32Rotr:
		b, a := popU32(stack), popU32(stack)
		pushI32(stack, int32(bits.RotateLeft32(a, -int(b%32))))

	case wasm.OpcodeI64Clz:
		pushI64(stack, int64(bits.LeadingZeros64(uint64(popI64(stack)))))
	case wasm.OpcodeI64Ctz:
		pushI64(stack, int64(bits.TrailingZeros64(uint64(popI64(stack)))))
	case wasm.OpcodeI64Popcnt:
		pushI64(stack, int64(bits.OnesCount64(uint64(popI64(stack)))))
	case wasm.OpcodeI64Add:
		b, a := popI64(stack), popI64(stack)
		pushI64(stack, int64(uint64(a)+uint64(b)))
	case wasm.OpcodeI64Sub:
		b, a := popI64(stack), popI64(stack)
		pushI64(stack, int64(uint64(a)-uint64(b)))
	case wasm.OpcodeI64Mul:
		b, a := popI64(stack), popI64(stack)
		pushI64(stack, int64(uint64(a)*uint64(b)))
	case wasm.OpcodeI64DivS:
		b, a := popI64(stack), popI64(stack)
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i64.div_s")
		}
		if a == math.MinInt64 && b == -1 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerOverflow, "i64.div_s")
		}
		pushI64(stack, a/b)
	case wasm.OpcodeI64DivU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i64.div_u")
		}
		pushI64(stack, int64(a/b))
	case wasm.OpcodeI64RemS:
		b, a := popI64(stack), popI64(stack)
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i64.rem_s")
		}
		if a == math.MinInt64 && b == -1 {
			pushI64(stack, 0)
		} else {
			pushI64(stack, a%b)
		}
	case wasm.OpcodeI64RemU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		if b == 0 {
			return true, wasmruntime.New(wasmruntime.ReasonIntegerDivideByZero, "i64.rem_u")
		}
		pushI64(stack, int64(a%b))
	case wasm.OpcodeI64And:
		b, a := popI64(stack), popI64(stack)
		pushI64(stack, a&b)
	case wasm.OpcodeI64Or:
		b, a := popI64(stack), popI64(stack)
		pushI64(stack, a|b)
	case wasm.OpcodeI64Xor:
		b, a := popI64(stack), popI64(stack)
		pushI64(stack, a^b)
	case wasm.OpcodeI64Shl:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushI64(stack, int64(a<<(b%64)))
	case wasm.OpcodeI64ShrS:
		b, a := uint64(popI64(stack)), popI64(stack)
		pushI64(stack, a>>(b%64))
	case wasm.OpcodeI64ShrU:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushI64(stack, int64(a>>(b%64)))
	case wasm.OpcodeI64Rotl:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushI64(stack, int64(bits.RotateLeft64(a, int(b%64))))
	case wasm.OpcodeI64Rotr:
		b, a := uint64(popI64(stack)), uint64(popI64(stack))
		pushI64(stack, int64(bits.RotateLeft64(a, -int(b%64))))

	case wasm.OpcodeF32Abs:
		pushF32(stack, float32(math.Abs(float64(popF32(stack)))))
	case wasm.OpcodeF32Neg:
		pushF32(stack, -popF32(stack))
	case wasm.OpcodeF32Ceil:
		pushF32(stack, float32(math.Ceil(float64(popF32(stack)))))
	case wasm.OpcodeF32Floor:
		pushF32(stack, float32(math.Floor(float64(popF32(stack)))))
	case wasm.OpcodeF32Trunc:
		pushF32(stack, float32(math.Trunc(float64(popF32(stack)))))
	case wasm.OpcodeF32Nearest:
		pushF32(stack, float32(math.RoundToEven(float64(popF32(stack)))))
	case wasm.OpcodeF32Sqrt:
		pushF32(stack, float32(math.Sqrt(float64(popF32(stack)))))
	case wasm.OpcodeF32Add:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, a+b)
	case wasm.OpcodeF32Sub:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, a-b)
	case wasm.OpcodeF32Mul:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, a*b)
	case wasm.OpcodeF32Div:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, a/b)
	case wasm.OpcodeF32Min:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, float32(moremath.WasmCompatMin(float64(a), float64(b))))
	case wasm.OpcodeF32Max:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, float32(moremath.WasmCompatMax(float64(a), float64(b))))
	case wasm.OpcodeF32Copysign:
		b, a := popF32(stack), popF32(stack)
		pushF32(stack, float32(math.Copysign(float64(a), float64(b))))

	case wasm.OpcodeF64Abs:
		pushF64(stack, math.Abs(popF64(stack)))
	case wasm.OpcodeF64Neg:
		pushF64(stack, -popF64(stack))
	case wasm.OpcodeF64Ceil:
		pushF64(stack, math.Ceil(popF64(stack)))
	case wasm.OpcodeF64Floor:
		pushF64(stack, math.Floor(popF64(stack)))
	case wasm.OpcodeF64Trunc:
		pushF64(stack, math.Trunc(popF64(stack)))
	case wasm.OpcodeF64Nearest:
		pushF64(stack, math.RoundToEven(popF64(stack)))
	case wasm.OpcodeF64Sqrt:
		pushF64(stack, math.Sqrt(popF64(stack)))
	case wasm.OpcodeF64Add:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, a+b)
	case wasm.OpcodeF64Sub:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, a-b)
	case wasm.OpcodeF64Mul:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, a*b)
	case wasm.OpcodeF64Div:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, a/b)
	case wasm.OpcodeF64Min:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, moremath.WasmCompatMin(a, b))
	case wasm.OpcodeF64Max:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, moremath.WasmCompatMax(a, b))
	case wasm.OpcodeF64Copysign:
		b, a := popF64(stack), popF64(stack)
		pushF64(stack, math.Copysign(a, b))

	case wasm.OpcodeI32WrapI64:
		pushI32(stack, int32(popI64(stack)))
	case wasm.OpcodeI64ExtendI32S:
		pushI64(stack, int64(popI32(stack)))
	case wasm.OpcodeI64ExtendI32U:
		pushI64(stack, int64(popU32(stack)))
	case wasm.OpcodeI32Extend8S:
		pushI32(stack, int32(int8(popI32(stack))))
	case wasm.OpcodeI32Extend16S:
		pushI32(stack, int32(int16(popI32(stack))))
	case wasm.OpcodeI64Extend8S:
		pushI64(stack, int64(int8(popI64(stack))))
	case wasm.OpcodeI64Extend16S:
		pushI64(stack, int64(int16(popI64(stack))))
	case wasm.OpcodeI64Extend32S:
		pushI64(stack, int64(int32(popI64(stack))))

	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64U,
		wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncF64U:
		return true, execTrunc(op, stack, false)
	case wasm.OpcodeI32TruncSatF32S, wasm.OpcodeI32TruncSatF64S, wasm.OpcodeI32TruncSatF32U, wasm.OpcodeI32TruncSatF64U,
		wasm.OpcodeI64TruncSatF32S, wasm.OpcodeI64TruncSatF64S, wasm.OpcodeI64TruncSatF32U, wasm.OpcodeI64TruncSatF64U:
		return true, execTrunc(op, stack, true)

	case wasm.OpcodeF32ConvertI32S:
		pushF32(stack, float32(popI32(stack)))
	case wasm.OpcodeF32ConvertI32U:
		pushF32(stack, float32(popU32(stack)))
	case wasm.OpcodeF32ConvertI64S:
		pushF32(stack, float32(popI64(stack)))
	case wasm.OpcodeF32ConvertI64U:
		pushF32(stack, float32(uint64(popI64(stack))))
	case wasm.OpcodeF64ConvertI32S:
		pushF64(stack, float64(popI32(stack)))
	case wasm.OpcodeF64ConvertI32U:
		pushF64(stack, float64(popU32(stack)))
	case wasm.OpcodeF64ConvertI64S:
		pushF64(stack, float64(popI64(stack)))
	case wasm.OpcodeF64ConvertI64U:
		pushF64(stack, float64(uint64(popI64(stack))))
	case wasm.OpcodeF32DemoteF64:
		pushF32(stack, float32(popF64(stack)))
	case wasm.OpcodeF64PromoteF32:
		pushF64(stack, float64(popF32(stack)))

	case wasm.OpcodeI32ReinterpretF32, wasm.OpcodeF32ReinterpretI32,
		wasm.OpcodeI64ReinterpretF64, wasm.OpcodeF64ReinterpretI64:
		// The stack already stores both types as their raw bit pattern, so
		// reinterpretation is a no-op at the value level.

	default:
		return false, nil
	}
	return true, nil
}

// execTrunc implements the eight non-saturating float-to-int conversions
// and their saturating (trunc_sat) counterparts. Non-saturating conversions
// trap on NaN (InvalidConversionToInteger) or out-of-range magnitude
// (IntegerOverflow); saturating conversions instead clamp to the
// destination's min/max, or zero for NaN.
func execTrunc(op wasm.Opcode, stack *[]uint64, sat bool) error {
	switch op {
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncSatF32S:
		return truncToI32(stack, float64(popF32(stack)), true, sat)
	case wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncSatF32U:
		return truncToI32(stack, float64(popF32(stack)), false, sat)
	case wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncSatF64S:
		return truncToI32(stack, popF64(stack), true, sat)
	case wasm.OpcodeI32TruncF64U, wasm.OpcodeI32TruncSatF64U:
		return truncToI32(stack, popF64(stack), false, sat)
	case wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncSatF32S:
		return truncToI64(stack, float64(popF32(stack)), true, sat)
	case wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncSatF32U:
		return truncToI64(stack, float64(popF32(stack)), false, sat)
	case wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncSatF64S:
		return truncToI64(stack, popF64(stack), true, sat)
	case wasm.OpcodeI64TruncF64U, wasm.OpcodeI64TruncSatF64U:
		return truncToI64(stack, popF64(stack), false, sat)
	}
	return nil
}

func truncToI32(stack *[]uint64, v float64, signed, sat bool) error {
	if math.IsNaN(v) {
		if sat {
			pushI32(stack, 0)
			return nil
		}
		return wasmruntime.New(wasmruntime.ReasonInvalidConversionToInteger, "")
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			if !sat {
				return wasmruntime.New(wasmruntime.ReasonIntegerOverflow, "")
			}
			if t < 0 {
				pushI32(stack, math.MinInt32)
			} else {
				pushI32(stack, math.MaxInt32)
			}
			return nil
		}
		pushI32(stack, int32(t))
		return nil
	}
	if t < 0 || t > math.MaxUint32 {
		if !sat {
			return wasmruntime.New(wasmruntime.ReasonIntegerOverflow, "")
		}
		if t < 0 {
			pushI32(stack, 0)
		} else {
			pushI32(stack, -1) // bit pattern of math.MaxUint32
		}
		return nil
	}
	pushI32(stack, int32(uint32(t)))
	return nil
}

func truncToI64(stack *[]uint64, v float64, signed, sat bool) error {
	if math.IsNaN(v) {
		if sat {
			pushI64(stack, 0)
			return nil
		}
		return wasmruntime.New(wasmruntime.ReasonInvalidConversionToInteger, "")
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			if !sat {
				return wasmruntime.New(wasmruntime.ReasonIntegerOverflow, "")
			}
			if t < 0 {
				pushI64(stack, math.MinInt64)
			} else {
				pushI64(stack, math.MaxInt64)
			}
			return nil
		}
		pushI64(stack, int64(t))
		return nil
	}
	if t < 0 || t >= 18446744073709551616.0 {
		if !sat {
			return wasmruntime.New(wasmruntime.ReasonIntegerOverflow, "")
		}
		if t < 0 {
			pushI64(stack, 0)
		} else {
			pushI64(stack, -1) // bit pattern of math.MaxUint64
		}
		return nil
	}
	pushI64(stack, int64(uint64(t)))
	return nil
}
