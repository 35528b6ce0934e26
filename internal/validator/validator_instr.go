package validator

import (
	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

func verifiedOf(in *wasm.Instr) *wasm.VerifiedImm {
	if in.Verified == nil {
		in.Verified = &wasm.VerifiedImm{}
	}
	return in.Verified
}

// validateInstr type-checks one instruction against s, mutating in.Verified
// for control-flow and branch instructions as it goes (spec §4.2).
func validateInstr(ctx *moduleCtx, ft *wasm.FunctionType, fn *wasm.Function, s *opStack, body []wasm.Instr, ip int, in *wasm.Instr) error {
	op := in.Op

	switch op {
	case wasm.OpcodeUnreachable:
		s.setUnreachable()
		return nil
	case wasm.OpcodeNop:
		return nil

	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		bt, err := wasm.ResolveBlockType(ctx.m, in.BlockType)
		if err != nil {
			return errf(InvalidBlockArity, "invalid block type")
		}
		if op == wasm.OpcodeIf {
			if err := s.pop(api.ValueTypeI32, "if condition"); err != nil {
				return err
			}
		}
		if err := s.popResultType(bt.Params, "block params"); err != nil {
			return err
		}
		s.pushFrame(op, bt.Params, bt.Results, ip)
		return nil

	case wasm.OpcodeElse:
		f, err := s.popFrame()
		if err != nil {
			return err
		}
		if f.opcode != wasm.OpcodeIf {
			return errf(InvalidElse, "else without a matching if")
		}
		verifiedOf(&body[f.instrIndex]).ElseOffset = uint32(ip - f.instrIndex)
		s.pushFrame(wasm.OpcodeElse, f.startTypes, f.endTypes, f.instrIndex)
		s.cur().elseSeen = true
		return nil

	case wasm.OpcodeEnd:
		f, err := s.popFrame()
		if err != nil {
			return err
		}
		if f.opcode == wasm.OpcodeIf && !f.elseSeen && !f.startTypes.Equal(f.endTypes) {
			return errf(MissingRequiredElseBlock, "if without else must not change the operand signature")
		}
		if f.instrIndex >= 0 {
			verifiedOf(&body[f.instrIndex]).EndOffset = uint32(ip - f.instrIndex)
		}
		if len(s.frames) > 0 {
			s.pushResultType(f.endTypes)
		}
		return nil

	case wasm.OpcodeBr:
		target, types, err := s.labelInfo(int(in.Index1))
		if err != nil {
			return err
		}
		curDepth := s.depth()
		if err := s.popResultType(types, "br"); err != nil {
			return err
		}
		in.Verified = &wasm.VerifiedImm{Breaks: []wasm.BreakImm{breakImmFor(target, types, curDepth)}}
		s.setUnreachable()
		return nil

	case wasm.OpcodeBrIf:
		if err := s.pop(api.ValueTypeI32, "br_if condition"); err != nil {
			return err
		}
		target, types, err := s.labelInfo(int(in.Index1))
		if err != nil {
			return err
		}
		curDepth := s.depth()
		if err := s.popResultType(types, "br_if"); err != nil {
			return err
		}
		s.pushResultType(types)
		in.Verified = &wasm.VerifiedImm{Breaks: []wasm.BreakImm{breakImmFor(target, types, curDepth)}}
		return nil

	case wasm.OpcodeBrTable:
		if err := s.pop(api.ValueTypeI32, "br_table selector"); err != nil {
			return err
		}
		defTarget, defTypes, err := s.labelInfo(int(in.Default))
		if err != nil {
			return err
		}
		arity := len(defTypes)
		curDepth := s.depth()
		breaks := make([]wasm.BreakImm, 0, len(in.Labels)+1)
		for _, l := range in.Labels {
			target, types, err := s.labelInfo(int(l))
			if err != nil {
				return err
			}
			if len(types) != arity {
				return errf(InvalidBlockArity, "br_table labels disagree on arity")
			}
			if err := s.popResultType(types, "br_table label"); err != nil {
				return err
			}
			s.pushResultType(types)
			breaks = append(breaks, breakImmFor(target, types, curDepth))
		}
		if err := s.popResultType(defTypes, "br_table default"); err != nil {
			return err
		}
		breaks = append(breaks, breakImmFor(defTarget, defTypes, curDepth))
		in.Verified = &wasm.VerifiedImm{Breaks: breaks}
		s.setUnreachable()
		return nil

	case wasm.OpcodeReturn:
		l := len(s.frames) - 1
		target, types, err := s.labelInfo(l)
		if err != nil {
			return err
		}
		curDepth := s.depth()
		if err := s.popResultType(types, "return"); err != nil {
			return errf(InvalidReturn, "return type mismatch")
		}
		in.Verified = &wasm.VerifiedImm{Breaks: []wasm.BreakImm{breakImmFor(target, types, curDepth)}}
		s.setUnreachable()
		return nil

	case wasm.OpcodeCall:
		callee, err := ctx.funcType(in.Index1)
		if err != nil {
			return err
		}
		if err := s.popResultType(callee.Params, "call arguments"); err != nil {
			return err
		}
		s.pushResultType(callee.Results)
		return nil

	case wasm.OpcodeCallIndirect:
		if int(in.Index1) >= len(ctx.m.Types) {
			return errf(InvalidIndex, "call_indirect type index out of range")
		}
		tbl, err := ctx.table(in.Index2)
		if err != nil {
			return errf(InvalidCallIndirect, "call_indirect table index out of range")
		}
		if tbl.ElemType != api.ValueTypeFuncref {
			return errf(InvalidCallIndirect, "call_indirect requires a funcref table")
		}
		callee := ctx.m.Types[in.Index1]
		if err := s.pop(api.ValueTypeI32, "call_indirect table index operand"); err != nil {
			return err
		}
		if err := s.popResultType(callee.Params, "call_indirect arguments"); err != nil {
			return err
		}
		s.pushResultType(callee.Results)
		return nil

	case wasm.OpcodeDrop:
		_, err := s.popAny()
		return err

	case wasm.OpcodeSelect:
		if err := s.pop(api.ValueTypeI32, "select condition"); err != nil {
			return err
		}
		t, err := s.popNumOrVec("select operand")
		if err != nil {
			return err
		}
		if err := s.pop(t, "select operand"); err != nil {
			return err
		}
		s.push(t)
		return nil

	case wasm.OpcodeSelectT:
		if len(in.SelectTypes) != 1 {
			return errf(TooManySelectTypes, "typed select takes exactly one result type")
		}
		if err := s.pop(api.ValueTypeI32, "select condition"); err != nil {
			return err
		}
		t := in.SelectTypes[0]
		if err := s.pop(t, "select operand"); err != nil {
			return err
		}
		if err := s.pop(t, "select operand"); err != nil {
			return err
		}
		s.push(t)
		return nil

	case wasm.OpcodeLocalGet:
		t, err := localType(ft, fn, in.Index1)
		if err != nil {
			return err
		}
		s.push(t)
		return nil
	case wasm.OpcodeLocalSet:
		t, err := localType(ft, fn, in.Index1)
		if err != nil {
			return err
		}
		return s.pop(t, "local.set")
	case wasm.OpcodeLocalTee:
		t, err := localType(ft, fn, in.Index1)
		if err != nil {
			return err
		}
		if err := s.pop(t, "local.tee"); err != nil {
			return err
		}
		s.push(t)
		return nil

	case wasm.OpcodeGlobalGet:
		g, err := ctx.global(in.Index1)
		if err != nil {
			return err
		}
		s.push(g.ValType)
		return nil
	case wasm.OpcodeGlobalSet:
		g, err := ctx.global(in.Index1)
		if err != nil {
			return err
		}
		if !g.Mutable {
			return errf(InvalidIndex, "global.set on an immutable global")
		}
		return s.pop(g.ValType, "global.set")

	case wasm.OpcodeTableGet:
		tbl, err := ctx.table(in.Index1)
		if err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "table.get index"); err != nil {
			return err
		}
		s.push(tbl.ElemType)
		return nil
	case wasm.OpcodeTableSet:
		tbl, err := ctx.table(in.Index1)
		if err != nil {
			return err
		}
		if err := s.pop(tbl.ElemType, "table.set value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "table.set index")

	case wasm.OpcodeMemorySize:
		if _, err := ctx.memory(0); err != nil {
			return err
		}
		s.push(api.ValueTypeI32)
		return nil
	case wasm.OpcodeMemoryGrow:
		if _, err := ctx.memory(0); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "memory.grow delta"); err != nil {
			return err
		}
		s.push(api.ValueTypeI32)
		return nil

	case wasm.OpcodeI32Const:
		s.push(api.ValueTypeI32)
		return nil
	case wasm.OpcodeI64Const:
		s.push(api.ValueTypeI64)
		return nil
	case wasm.OpcodeF32Const:
		s.push(api.ValueTypeF32)
		return nil
	case wasm.OpcodeF64Const:
		s.push(api.ValueTypeF64)
		return nil

	case wasm.OpcodeRefNull:
		t := api.ValueType(in.Index1)
		if !api.IsRefType(t) {
			return errf(InvalidIndex, "ref.null requires a reference type immediate")
		}
		s.push(t)
		return nil
	case wasm.OpcodeRefIsNull:
		if _, err := s.popRefType("ref.is_null operand"); err != nil {
			return err
		}
		s.push(api.ValueTypeI32)
		return nil
	case wasm.OpcodeRefFunc:
		if in.Index1 >= ctx.m.NumFuncs() {
			return errf(InvalidIndex, "ref.func index out of range")
		}
		if !ctx.refSet[in.Index1] {
			return errf(ExprNotConst, "ref.func target not in reference set")
		}
		s.push(api.ValueTypeFuncref)
		return nil
	}

	if isMemOp(op) {
		return validateMemOp(ctx, s, in, op)
	}
	if v, ok := unOpType(op); ok {
		return s.unOp(v)
	}
	if v, ok := binOpType(op); ok {
		return s.binOp(v)
	}
	if v, ok := testOpType(op); ok {
		return s.testOp(v)
	}
	if v, ok := relOpType(op); ok {
		return s.relOp(v)
	}
	if from, to, ok := cvtOpType(op); ok {
		return s.cvtOp(from, to)
	}
	if bulk, ok := asBulkOpcode(op); ok {
		return validateBulkOp(ctx, s, in, bulk)
	}

	return errf(InvalidIndex, "unhandled opcode in validator")
}

func isMemOp(op wasm.Opcode) bool {
	switch op {
	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		return true
	}
	return false
}

// memOpWidth is the natural access width in bytes, used for the alignment
// bound (2^align <= width).
func memOpWidth(op wasm.Opcode) int {
	switch op {
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U,
		wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		return 1
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		return 2
	case wasm.OpcodeI32Load, wasm.OpcodeF32Load, wasm.OpcodeI32Store, wasm.OpcodeF32Store,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U, wasm.OpcodeI64Store32:
		return 4
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load, wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		return 8
	}
	return 0
}

func validateMemOp(ctx *moduleCtx, s *opStack, in *wasm.Instr, op wasm.Opcode) error {
	if _, err := ctx.memory(0); err != nil {
		return err
	}
	width := memOpWidth(op)
	if (1 << in.MemAlign) > width {
		return errf(InvalidAlignment, "alignment exceeds natural access width")
	}
	switch op {
	case wasm.OpcodeI32Load, wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U:
		if err := s.pop(api.ValueTypeI32, "load address"); err != nil {
			return err
		}
		s.push(api.ValueTypeI32)
		return nil
	case wasm.OpcodeI64Load, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
		if err := s.pop(api.ValueTypeI32, "load address"); err != nil {
			return err
		}
		s.push(api.ValueTypeI64)
		return nil
	case wasm.OpcodeF32Load:
		if err := s.pop(api.ValueTypeI32, "load address"); err != nil {
			return err
		}
		s.push(api.ValueTypeF32)
		return nil
	case wasm.OpcodeF64Load:
		if err := s.pop(api.ValueTypeI32, "load address"); err != nil {
			return err
		}
		s.push(api.ValueTypeF64)
		return nil
	case wasm.OpcodeI32Store, wasm.OpcodeI32Store8, wasm.OpcodeI32Store16:
		if err := s.pop(api.ValueTypeI32, "store value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "store address")
	case wasm.OpcodeI64Store, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		if err := s.pop(api.ValueTypeI64, "store value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "store address")
	case wasm.OpcodeF32Store:
		if err := s.pop(api.ValueTypeF32, "store value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "store address")
	case wasm.OpcodeF64Store:
		if err := s.pop(api.ValueTypeF64, "store value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "store address")
	}
	return errf(InvalidIndex, "unhandled memory opcode")
}

func unOpType(op wasm.Opcode) (api.ValueType, bool) {
	switch op {
	case wasm.OpcodeI32Clz, wasm.OpcodeI32Ctz, wasm.OpcodeI32Popcnt,
		wasm.OpcodeI32Extend8S, wasm.OpcodeI32Extend16S:
		return api.ValueTypeI32, true
	case wasm.OpcodeI64Clz, wasm.OpcodeI64Ctz, wasm.OpcodeI64Popcnt,
		wasm.OpcodeI64Extend8S, wasm.OpcodeI64Extend16S, wasm.OpcodeI64Extend32S:
		return api.ValueTypeI64, true
	case wasm.OpcodeF32Abs, wasm.OpcodeF32Neg, wasm.OpcodeF32Ceil, wasm.OpcodeF32Floor,
		wasm.OpcodeF32Trunc, wasm.OpcodeF32Nearest, wasm.OpcodeF32Sqrt:
		return api.ValueTypeF32, true
	case wasm.OpcodeF64Abs, wasm.OpcodeF64Neg, wasm.OpcodeF64Ceil, wasm.OpcodeF64Floor,
		wasm.OpcodeF64Trunc, wasm.OpcodeF64Nearest, wasm.OpcodeF64Sqrt:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func binOpType(op wasm.Opcode) (api.ValueType, bool) {
	switch op {
	case wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Mul, wasm.OpcodeI32DivS, wasm.OpcodeI32DivU,
		wasm.OpcodeI32RemS, wasm.OpcodeI32RemU, wasm.OpcodeI32And, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
		wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU, wasm.OpcodeI32Rotl, wasm.OpcodeI32Rotr:
		return api.ValueTypeI32, true
	case wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Mul, wasm.OpcodeI64DivS, wasm.OpcodeI64DivU,
		wasm.OpcodeI64RemS, wasm.OpcodeI64RemU, wasm.OpcodeI64And, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
		wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU, wasm.OpcodeI64Rotl, wasm.OpcodeI64Rotr:
		return api.ValueTypeI64, true
	case wasm.OpcodeF32Add, wasm.OpcodeF32Sub, wasm.OpcodeF32Mul, wasm.OpcodeF32Div,
		wasm.OpcodeF32Min, wasm.OpcodeF32Max, wasm.OpcodeF32Copysign:
		return api.ValueTypeF32, true
	case wasm.OpcodeF64Add, wasm.OpcodeF64Sub, wasm.OpcodeF64Mul, wasm.OpcodeF64Div,
		wasm.OpcodeF64Min, wasm.OpcodeF64Max, wasm.OpcodeF64Copysign:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func testOpType(op wasm.Opcode) (api.ValueType, bool) {
	switch op {
	case wasm.OpcodeI32Eqz:
		return api.ValueTypeI32, true
	case wasm.OpcodeI64Eqz:
		return api.ValueTypeI64, true
	}
	return 0, false
}

func relOpType(op wasm.Opcode) (api.ValueType, bool) {
	switch op {
	case wasm.OpcodeI32Eq, wasm.OpcodeI32Ne, wasm.OpcodeI32LtS, wasm.OpcodeI32LtU,
		wasm.OpcodeI32GtS, wasm.OpcodeI32GtU, wasm.OpcodeI32LeS, wasm.OpcodeI32LeU,
		wasm.OpcodeI32GeS, wasm.OpcodeI32GeU:
		return api.ValueTypeI32, true
	case wasm.OpcodeI64Eq, wasm.OpcodeI64Ne, wasm.OpcodeI64LtS, wasm.OpcodeI64LtU,
		wasm.OpcodeI64GtS, wasm.OpcodeI64GtU, wasm.OpcodeI64LeS, wasm.OpcodeI64LeU,
		wasm.OpcodeI64GeS, wasm.OpcodeI64GeU:
		return api.ValueTypeI64, true
	case wasm.OpcodeF32Eq, wasm.OpcodeF32Ne, wasm.OpcodeF32Lt, wasm.OpcodeF32Gt, wasm.OpcodeF32Le, wasm.OpcodeF32Ge:
		return api.ValueTypeF32, true
	case wasm.OpcodeF64Eq, wasm.OpcodeF64Ne, wasm.OpcodeF64Lt, wasm.OpcodeF64Gt, wasm.OpcodeF64Le, wasm.OpcodeF64Ge:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func cvtOpType(op wasm.Opcode) (from, to api.ValueType, ok bool) {
	switch op {
	case wasm.OpcodeI32WrapI64:
		return api.ValueTypeI64, api.ValueTypeI32, true
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF32U:
		return api.ValueTypeF32, api.ValueTypeI32, true
	case wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF64U:
		return api.ValueTypeF64, api.ValueTypeI32, true
	case wasm.OpcodeI64ExtendI32S, wasm.OpcodeI64ExtendI32U:
		return api.ValueTypeI32, api.ValueTypeI64, true
	case wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF32U:
		return api.ValueTypeF32, api.ValueTypeI64, true
	case wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF64U:
		return api.ValueTypeF64, api.ValueTypeI64, true
	case wasm.OpcodeF32ConvertI32S, wasm.OpcodeF32ConvertI32U:
		return api.ValueTypeI32, api.ValueTypeF32, true
	case wasm.OpcodeF32ConvertI64S, wasm.OpcodeF32ConvertI64U:
		return api.ValueTypeI64, api.ValueTypeF32, true
	case wasm.OpcodeF32DemoteF64:
		return api.ValueTypeF64, api.ValueTypeF32, true
	case wasm.OpcodeF64ConvertI32S, wasm.OpcodeF64ConvertI32U:
		return api.ValueTypeI32, api.ValueTypeF64, true
	case wasm.OpcodeF64ConvertI64S, wasm.OpcodeF64ConvertI64U:
		return api.ValueTypeI64, api.ValueTypeF64, true
	case wasm.OpcodeF64PromoteF32:
		return api.ValueTypeF32, api.ValueTypeF64, true
	case wasm.OpcodeI32ReinterpretF32:
		return api.ValueTypeF32, api.ValueTypeI32, true
	case wasm.OpcodeI64ReinterpretF64:
		return api.ValueTypeF64, api.ValueTypeI64, true
	case wasm.OpcodeF32ReinterpretI32:
		return api.ValueTypeI32, api.ValueTypeF32, true
	case wasm.OpcodeF64ReinterpretI64:
		return api.ValueTypeI64, api.ValueTypeF64, true
	case wasm.OpcodeI32TruncSatF32S, wasm.OpcodeI32TruncSatF32U:
		return api.ValueTypeF32, api.ValueTypeI32, true
	case wasm.OpcodeI32TruncSatF64S, wasm.OpcodeI32TruncSatF64U:
		return api.ValueTypeF64, api.ValueTypeI32, true
	case wasm.OpcodeI64TruncSatF32S, wasm.OpcodeI64TruncSatF32U:
		return api.ValueTypeF32, api.ValueTypeI64, true
	case wasm.OpcodeI64TruncSatF64S, wasm.OpcodeI64TruncSatF64U:
		return api.ValueTypeF64, api.ValueTypeI64, true
	}
	return 0, 0, false
}

type bulkOp int

const (
	bulkMemoryInit bulkOp = iota
	bulkDataDrop
	bulkMemoryCopy
	bulkMemoryFill
	bulkTableInit
	bulkElemDrop
	bulkTableCopy
	bulkTableGrow
	bulkTableSize
	bulkTableFill
)

func asBulkOpcode(op wasm.Opcode) (bulkOp, bool) {
	switch op {
	case wasm.OpcodeMemoryInit:
		return bulkMemoryInit, true
	case wasm.OpcodeDataDrop:
		return bulkDataDrop, true
	case wasm.OpcodeMemoryCopy:
		return bulkMemoryCopy, true
	case wasm.OpcodeMemoryFill:
		return bulkMemoryFill, true
	case wasm.OpcodeTableInit:
		return bulkTableInit, true
	case wasm.OpcodeElemDrop:
		return bulkElemDrop, true
	case wasm.OpcodeTableCopy:
		return bulkTableCopy, true
	case wasm.OpcodeTableGrow:
		return bulkTableGrow, true
	case wasm.OpcodeTableSize:
		return bulkTableSize, true
	case wasm.OpcodeTableFill:
		return bulkTableFill, true
	}
	return 0, false
}

func validateBulkOp(ctx *moduleCtx, s *opStack, in *wasm.Instr, op bulkOp) error {
	switch op {
	case bulkMemoryInit:
		if _, err := ctx.memory(0); err != nil {
			return err
		}
		if int(in.Index1) >= len(ctx.m.Data) {
			return errf(InvalidIndex, "memory.init data index out of range")
		}
		if err := s.pop(api.ValueTypeI32, "memory.init len"); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "memory.init src offset"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "memory.init dst offset")

	case bulkDataDrop:
		if int(in.Index1) >= len(ctx.m.Data) {
			return errf(InvalidIndex, "data.drop index out of range")
		}
		return nil

	case bulkMemoryCopy:
		if _, err := ctx.memory(0); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "memory.copy len"); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "memory.copy src"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "memory.copy dst")

	case bulkMemoryFill:
		if _, err := ctx.memory(0); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "memory.fill len"); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "memory.fill value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "memory.fill dst")

	case bulkTableInit:
		if int(in.Index1) >= len(ctx.m.Elements) {
			return errf(InvalidIndex, "table.init element index out of range")
		}
		tbl, err := ctx.table(in.Index2)
		if err != nil {
			return err
		}
		if tbl.ElemType != ctx.m.Elements[in.Index1].Type {
			return errf(MismatchedTableInit, "table.init element type does not match table")
		}
		if err := s.pop(api.ValueTypeI32, "table.init len"); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "table.init src"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "table.init dst")

	case bulkElemDrop:
		if int(in.Index1) >= len(ctx.m.Elements) {
			return errf(InvalidIndex, "elem.drop index out of range")
		}
		return nil

	case bulkTableCopy:
		dst, err := ctx.table(in.Index1)
		if err != nil {
			return err
		}
		src, err := ctx.table(in.Index2)
		if err != nil {
			return err
		}
		if dst.ElemType != src.ElemType {
			return errf(MismatchedTableCopy, "table.copy requires matching reference types")
		}
		if err := s.pop(api.ValueTypeI32, "table.copy len"); err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "table.copy src"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "table.copy dst")

	case bulkTableGrow:
		tbl, err := ctx.table(in.Index1)
		if err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "table.grow delta"); err != nil {
			return err
		}
		if err := s.pop(tbl.ElemType, "table.grow init value"); err != nil {
			return err
		}
		s.push(api.ValueTypeI32)
		return nil

	case bulkTableSize:
		if _, err := ctx.table(in.Index1); err != nil {
			return err
		}
		s.push(api.ValueTypeI32)
		return nil

	case bulkTableFill:
		tbl, err := ctx.table(in.Index1)
		if err != nil {
			return err
		}
		if err := s.pop(api.ValueTypeI32, "table.fill len"); err != nil {
			return err
		}
		if err := s.pop(tbl.ElemType, "table.fill value"); err != nil {
			return err
		}
		return s.pop(api.ValueTypeI32, "table.fill dst")
	}
	return errf(InvalidIndex, "unhandled bulk opcode")
}
