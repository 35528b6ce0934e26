package binary

import (
	"math"

	"github.com/corewasm/corewasm/internal/wasm"
)

func float32FromBits(bits uint32) float32 { return math.Float32frombits(bits) }
func float64FromBits(bits uint64) float64 { return math.Float64frombits(bits) }

// decodeInstructions decodes a flat instruction sequence until it consumes
// the matching `end` for the sequence's own nesting level — i.e. it decodes
// exactly one block body (or a whole function body, or a const expr), and
// stops just after the `end` that closes it. Nested block/loop/if bodies are
// decoded inline as part of the same flat slice; blockType immediates alone
// tell the validator where each one's scope begins.
func (d *decoder) decodeInstructions(c *cursor) ([]wasm.Instr, error) {
	var out []wasm.Instr
	depth := 0
	for {
		opByte, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		op := wasm.Opcode(opByte)

		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			bt, err := c.i33AsI64()
			if err != nil {
				return nil, err
			}
			out = append(out, wasm.Instr{Op: op, BlockType: bt})
			depth++
			continue
		case wasm.OpcodeElse:
			out = append(out, wasm.Instr{Op: op})
			continue
		case wasm.OpcodeEnd:
			out = append(out, wasm.Instr{Op: op})
			if depth == 0 {
				return out, nil
			}
			depth--
			continue
		}

		instr, err := d.decodeInstr(c, op)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
	}
}

func (d *decoder) decodeInstr(c *cursor, op wasm.Opcode) (wasm.Instr, error) {
	switch op {
	case wasm.OpcodeUnreachable, wasm.OpcodeNop, wasm.OpcodeReturn,
		wasm.OpcodeDrop, wasm.OpcodeSelect,
		wasm.OpcodeI32Eqz, wasm.OpcodeI32Eq, wasm.OpcodeI32Ne,
		wasm.OpcodeI32LtS, wasm.OpcodeI32LtU, wasm.OpcodeI32GtS, wasm.OpcodeI32GtU,
		wasm.OpcodeI32LeS, wasm.OpcodeI32LeU, wasm.OpcodeI32GeS, wasm.OpcodeI32GeU,
		wasm.OpcodeI64Eqz, wasm.OpcodeI64Eq, wasm.OpcodeI64Ne,
		wasm.OpcodeI64LtS, wasm.OpcodeI64LtU, wasm.OpcodeI64GtS, wasm.OpcodeI64GtU,
		wasm.OpcodeI64LeS, wasm.OpcodeI64LeU, wasm.OpcodeI64GeS, wasm.OpcodeI64GeU,
		wasm.OpcodeF32Eq, wasm.OpcodeF32Ne, wasm.OpcodeF32Lt, wasm.OpcodeF32Gt, wasm.OpcodeF32Le, wasm.OpcodeF32Ge,
		wasm.OpcodeF64Eq, wasm.OpcodeF64Ne, wasm.OpcodeF64Lt, wasm.OpcodeF64Gt, wasm.OpcodeF64Le, wasm.OpcodeF64Ge,
		wasm.OpcodeI32Clz, wasm.OpcodeI32Ctz, wasm.OpcodeI32Popcnt,
		wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Mul,
		wasm.OpcodeI32DivS, wasm.OpcodeI32DivU, wasm.OpcodeI32RemS, wasm.OpcodeI32RemU,
		wasm.OpcodeI32And, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
		wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU, wasm.OpcodeI32Rotl, wasm.OpcodeI32Rotr,
		wasm.OpcodeI64Clz, wasm.OpcodeI64Ctz, wasm.OpcodeI64Popcnt,
		wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Mul,
		wasm.OpcodeI64DivS, wasm.OpcodeI64DivU, wasm.OpcodeI64RemS, wasm.OpcodeI64RemU,
		wasm.OpcodeI64And, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
		wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU, wasm.OpcodeI64Rotl, wasm.OpcodeI64Rotr,
		wasm.OpcodeF32Abs, wasm.OpcodeF32Neg, wasm.OpcodeF32Ceil, wasm.OpcodeF32Floor,
		wasm.OpcodeF32Trunc, wasm.OpcodeF32Nearest, wasm.OpcodeF32Sqrt,
		wasm.OpcodeF32Add, wasm.OpcodeF32Sub, wasm.OpcodeF32Mul, wasm.OpcodeF32Div,
		wasm.OpcodeF32Min, wasm.OpcodeF32Max, wasm.OpcodeF32Copysign,
		wasm.OpcodeF64Abs, wasm.OpcodeF64Neg, wasm.OpcodeF64Ceil, wasm.OpcodeF64Floor,
		wasm.OpcodeF64Trunc, wasm.OpcodeF64Nearest, wasm.OpcodeF64Sqrt,
		wasm.OpcodeF64Add, wasm.OpcodeF64Sub, wasm.OpcodeF64Mul, wasm.OpcodeF64Div,
		wasm.OpcodeF64Min, wasm.OpcodeF64Max, wasm.OpcodeF64Copysign,
		wasm.OpcodeI32WrapI64,
		wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF64U,
		wasm.OpcodeI64ExtendI32S, wasm.OpcodeI64ExtendI32U,
		wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF32U, wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF64U,
		wasm.OpcodeF32ConvertI32S, wasm.OpcodeF32ConvertI32U, wasm.OpcodeF32ConvertI64S, wasm.OpcodeF32ConvertI64U,
		wasm.OpcodeF32DemoteF64,
		wasm.OpcodeF64ConvertI32S, wasm.OpcodeF64ConvertI32U, wasm.OpcodeF64ConvertI64S, wasm.OpcodeF64ConvertI64U,
		wasm.OpcodeF64PromoteF32,
		wasm.OpcodeI32ReinterpretF32, wasm.OpcodeI64ReinterpretF64,
		wasm.OpcodeF32ReinterpretI32, wasm.OpcodeF64ReinterpretI64,
		wasm.OpcodeI32Extend8S, wasm.OpcodeI32Extend16S,
		wasm.OpcodeI64Extend8S, wasm.OpcodeI64Extend16S, wasm.OpcodeI64Extend32S,
		wasm.OpcodeRefIsNull:
		return wasm.Instr{Op: op}, nil

	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		idx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: idx}, nil

	case wasm.OpcodeBrTable:
		labels, err := d.decodeU32Vec(c)
		if err != nil {
			return wasm.Instr{}, err
		}
		def, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Labels: labels, Default: def}, nil

	case wasm.OpcodeCall:
		idx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: idx}, nil

	case wasm.OpcodeCallIndirect:
		typeIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		tableIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: typeIdx, Index2: tableIdx}, nil

	case wasm.OpcodeSelectT:
		types, err := d.decodeValueTypeVec(c)
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, SelectTypes: types}, nil

	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet, wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		idx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: idx}, nil

	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		align, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		offset, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, MemAlign: align, MemOffset: offset}, nil

	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		b, err := c.ReadByte()
		if err != nil {
			return wasm.Instr{}, err
		}
		if b != 0x00 {
			return wasm.Instr{}, decErr(InvalidFuncType, "memory index byte", nil)
		}
		return wasm.Instr{Op: op}, nil

	case wasm.OpcodeI32Const:
		v, err := c.i32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, I32: v}, nil
	case wasm.OpcodeI64Const:
		v, err := c.i64()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, I64: v}, nil
	case wasm.OpcodeF32Const:
		v, err := c.f32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, F32: v}, nil
	case wasm.OpcodeF64Const:
		v, err := c.f64()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, F64: v}, nil

	case wasm.OpcodeRefNull:
		rt, err := c.refType()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: uint32(rt)}, nil
	case wasm.OpcodeRefFunc:
		idx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: idx}, nil

	case wasm.OpcodeMiscPrefix:
		sub, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		misc, ok := wasm.LookupMiscOpcode(sub)
		if !ok {
			return wasm.Instr{}, decErr(UnknownExtendedOpcode, "misc opcode", nil)
		}
		return d.decodeMiscInstr(c, misc)
	}

	return wasm.Instr{}, decErr(UnknownOpcode, "opcode", nil)
}

func (d *decoder) decodeMiscInstr(c *cursor, op wasm.Opcode) (wasm.Instr, error) {
	switch op {
	case wasm.OpcodeI32TruncSatF32S, wasm.OpcodeI32TruncSatF32U,
		wasm.OpcodeI32TruncSatF64S, wasm.OpcodeI32TruncSatF64U,
		wasm.OpcodeI64TruncSatF32S, wasm.OpcodeI64TruncSatF32U,
		wasm.OpcodeI64TruncSatF64S, wasm.OpcodeI64TruncSatF64U:
		return wasm.Instr{Op: op}, nil

	case wasm.OpcodeMemoryInit:
		dataIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		b, err := c.ReadByte()
		if err != nil {
			return wasm.Instr{}, err
		}
		if b != 0x00 {
			return wasm.Instr{}, decErr(InvalidFuncType, "memory.init memory index byte", nil)
		}
		return wasm.Instr{Op: op, Index1: dataIdx}, nil

	case wasm.OpcodeDataDrop:
		dataIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: dataIdx}, nil

	case wasm.OpcodeMemoryCopy:
		dst, err := c.ReadByte()
		if err != nil {
			return wasm.Instr{}, err
		}
		src, err := c.ReadByte()
		if err != nil {
			return wasm.Instr{}, err
		}
		if dst != 0x00 || src != 0x00 {
			return wasm.Instr{}, decErr(InvalidFuncType, "memory.copy memory index bytes", nil)
		}
		return wasm.Instr{Op: op}, nil

	case wasm.OpcodeMemoryFill:
		b, err := c.ReadByte()
		if err != nil {
			return wasm.Instr{}, err
		}
		if b != 0x00 {
			return wasm.Instr{}, decErr(InvalidFuncType, "memory.fill memory index byte", nil)
		}
		return wasm.Instr{Op: op}, nil

	case wasm.OpcodeTableInit:
		elemIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		tableIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: elemIdx, Index2: tableIdx}, nil

	case wasm.OpcodeElemDrop:
		elemIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: elemIdx}, nil

	case wasm.OpcodeTableCopy:
		dst, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		src, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: dst, Index2: src}, nil

	case wasm.OpcodeTableGrow, wasm.OpcodeTableSize, wasm.OpcodeTableFill:
		tableIdx, err := c.u32()
		if err != nil {
			return wasm.Instr{}, err
		}
		return wasm.Instr{Op: op, Index1: tableIdx}, nil
	}
	return wasm.Instr{}, decErr(UnknownExtendedOpcode, "misc opcode dispatch", nil)
}
