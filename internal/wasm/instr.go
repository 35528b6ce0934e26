package wasm

import "github.com/corewasm/corewasm/api"

// Instr is the single flat sum type covering every WebAssembly 1.0
// instruction variant (spec §3.2). Rather than a tagged union per opcode
// class, every field is present on every Instr and interpreted according
// to Op — the same shape the teacher's interpreter uses for its compiled
// operations (wazero's interpreterOp: "a form of union type ... most
// fields are opaque and only relevant in context of its kind").
//
// Verified is nil on a freshly decoded instruction and is filled in by the
// validator (spec §4.2) for block/loop/if/br/br_if/br_table/return (an
// else's position is stored as its if's ElseOffset).
// This is the "same tree, decorated in place" parameterisation spec §3.1
// describes, without requiring a second generic instantiation of Module.
type Instr struct {
	Op Opcode

	// I32/I64/F32/F64 carry *.const immediates.
	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// Index1/Index2 carry local/global/func/type/table/memory/segment
	// indices, depending on Op. For ref.null, Index1 holds the reference
	// ValueType (funcref or externref). For call_indirect, Index1 is the
	// type index and Index2 is the table index. For table.init/table.copy/
	// memory.init/memory.copy, Index1 is the destination (or segment) and
	// Index2 the source.
	Index1 uint32
	Index2 uint32

	// MemArg immediate for load/store instructions.
	MemAlign  uint32
	MemOffset uint32

	// BlockType is the signed LEB128 block type immediate of block/loop/if:
	// -0x40 (BlockTypeEmpty) for no result, one of the negative single
	// value-type encodings, or a non-negative function type index for
	// multi-value block signatures.
	BlockType int64

	// Labels/Default are br_table's relative label depths (spec §3.2); in
	// the raw form these are the only decoded shape, the verified form
	// adds parallel Breaks entries (one per label plus the default).
	Labels  []uint32
	Default uint32

	// SelectTypes is the explicit result-type vector of the typed select
	// (0x1c) form.
	SelectTypes []api.ValueType

	Verified *VerifiedImm
}

// BlockType sentinel encodings (spec §3.2): the one-byte value types read as
// signed LEB128, so 0x40 is -0x40 (the empty type) and the six single-value
// shorthands i32/i64/f32/f64/funcref/externref are -0x01..-0x04, -0x10 and
// -0x11.
const (
	BlockTypeEmpty     int64 = -0x40
	BlockTypeI32       int64 = -0x01
	BlockTypeI64       int64 = -0x02
	BlockTypeF32       int64 = -0x03
	BlockTypeF64       int64 = -0x04
	BlockTypeFuncref   int64 = -0x10
	BlockTypeExternref int64 = -0x11
)

// BreakImm is the precomputed {arity, drop} pair every branch site carries
// after validation (spec §4.2, §9 "Break drop/arity"): arity is the number
// of values the target label expects preserved, drop is the number of
// values to discard from beneath them before the branch lands.
type BreakImm struct {
	Arity uint32
	Drop  uint32
}

// VerifiedImm is the side information the validator attaches to
// control-flow instructions so the interpreter never needs to search the
// instruction stream at run time (spec §4.2, §4.6).
type VerifiedImm struct {
	// EndOffset is the forward relative instruction-index distance from a
	// block/loop/if to its matching `end`. Zero for every other opcode.
	EndOffset uint32

	// ElseOffset is the forward relative distance from an `if` to its
	// `else`, or zero if the if has no else clause.
	ElseOffset uint32

	// Breaks holds one BreakImm per branch target: length 1 for br/br_if/
	// return, and len(Labels)+1 (each label, then the default) for
	// br_table.
	Breaks []BreakImm
}

// ResolvedBlockType is the {input, output} result-type pair a block/loop/if
// instruction's BlockType resolves to once looked up against the module's
// type section.
type ResolvedBlockType struct {
	Params  api.ResultType
	Results api.ResultType
}

// ResolveBlockType decodes bt against m's type section.
func ResolveBlockType(m *Module, bt int64) (ResolvedBlockType, error) {
	switch bt {
	case BlockTypeEmpty:
		return ResolvedBlockType{}, nil
	case BlockTypeI32:
		return ResolvedBlockType{Results: api.ResultType{api.ValueTypeI32}}, nil
	case BlockTypeI64:
		return ResolvedBlockType{Results: api.ResultType{api.ValueTypeI64}}, nil
	case BlockTypeF32:
		return ResolvedBlockType{Results: api.ResultType{api.ValueTypeF32}}, nil
	case BlockTypeF64:
		return ResolvedBlockType{Results: api.ResultType{api.ValueTypeF64}}, nil
	case BlockTypeFuncref:
		return ResolvedBlockType{Results: api.ResultType{api.ValueTypeFuncref}}, nil
	case BlockTypeExternref:
		return ResolvedBlockType{Results: api.ResultType{api.ValueTypeExternref}}, nil
	}
	if bt < 0 || int(bt) >= len(m.Types) {
		return ResolvedBlockType{}, errInvalidBlockType(bt)
	}
	ft := m.Types[bt]
	return ResolvedBlockType{Params: ft.Params, Results: ft.Results}, nil
}

type errInvalidBlockType int64

func (e errInvalidBlockType) Error() string {
	return "invalid block type index"
}
