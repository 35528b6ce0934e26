// Package wasm holds the module syntax tree shared by the decoder,
// validator, store and interpreter: function types, the instruction sum
// type, import/export descriptors, and the element/data segment shapes.
//
// The tree is used in two states, following the teacher's (wazero)
// separation between a raw, freshly decoded module and one whose
// instructions carry validator-computed side information. Rather than a
// generic type parameter, `Instr.Verified` carries that side information
// directly (nil until validation fills it in) — the tree is the same
// value before and after validation, which keeps the decoder and
// validator from needing to share a type parameter across packages.
package wasm

import (
	"fmt"

	"github.com/corewasm/corewasm/api"
)

type ValueType = api.ValueType

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeV128      = api.ValueTypeV128
	ValueTypeFuncref   = api.ValueTypeFuncref
	ValueTypeExternref = api.ValueTypeExternref
)

// SectionID identifies a module section, in the canonical order the binary
// format requires (custom sections may interleave at any point).
type SectionID byte

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

func SectionIDName(s SectionID) string {
	switch s {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}

// FunctionType is an input result type mapped to an output result type.
type FunctionType struct {
	Params  api.ResultType
	Results api.ResultType
}

func (t *FunctionType) String() string {
	if t == nil {
		return "null_null"
	}
	p, r := t.Params.String(), t.Results.String()
	if p == "" {
		p = "null"
	}
	if r == "" {
		r = "null"
	}
	return p + "_" + r
}

// Equal is structural (value) equality — spec §9's resolution of the
// call_indirect Open Question: two FunctionTypes from different modules
// with the same params/results compare equal even though they are
// different objects.
func (t *FunctionType) Equal(o *FunctionType) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Params.Equal(o.Params) && t.Results.Equal(o.Results)
}

// Limits bound a table or memory's size, `Min` required and `Max` optional.
type Limits struct {
	Min uint32
	Max *uint32
}

// TableType is a reference type plus limits, counted in elements.
type TableType struct {
	ElemType api.ValueType
	Limits   Limits
}

// MemoryType is limits counted in 64KiB pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType is a value type plus mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// ImportDesc is the tagged payload of an Import: exactly one of the four
// fields below is meaningful, selected by Kind.
type ImportDesc struct {
	Kind       api.ExternType
	TypeIndex  uint32 // ExternTypeFunc
	TableType  TableType
	MemoryType MemoryType
	GlobalType GlobalType
}

// Import names a module/item pair and the kind of item it must resolve to.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// Export names an item and an index into one of the four index spaces.
type Export struct {
	Name string
	Kind api.ExternType
	Index uint32
}

// ElementMode distinguishes how an element segment is initialized.
type ElementMode byte

const (
	ElementModePassive ElementMode = iota
	ElementModeActive
	ElementModeDeclarative
)

// ElementSegment is a reference-typed sequence of constant initializers,
// optionally placed into a table at instantiation time.
type ElementSegment struct {
	Type  api.ValueType
	Init  []ConstExpr
	Mode  ElementMode
	Table uint32     // ElementModeActive only
	Offset ConstExpr // ElementModeActive only
}

// DataMode distinguishes how a data segment is initialized.
type DataMode byte

const (
	DataModePassive DataMode = iota
	DataModeActive
)

// DataSegment is a raw byte blob, optionally copied into memory at
// instantiation time.
type DataSegment struct {
	Init   []byte
	Mode   DataMode
	Memory uint32   // DataModeActive only
	Offset ConstExpr // DataModeActive only
}

// ConstExpr is an instruction sequence restricted (and, after validation,
// proven restricted) to the constant subset: t.const, ref.null, ref.func,
// global.get of an immutable import, and end.
type ConstExpr struct {
	Body []Instr
}

// Function is a module-defined function: its signature by type index, its
// declared local types (already flattened from the binary's run-length
// local-group encoding), and its instruction body.
type Function struct {
	TypeIndex uint32
	Locals    []api.ValueType
	Body      []Instr
}

// Module is the in-memory form of a decoded (and, once Verified fields are
// populated on its instructions, validated) WebAssembly module.
type Module struct {
	Version uint32

	Types   []*FunctionType
	Imports []Import
	Funcs   []Function // func-space entries declared (not imported) by this module
	Tables  []TableType
	Memories []MemoryType
	Globals []Global
	Exports []Export
	Start   *uint32
	Elements []ElementSegment
	Data    []DataSegment
	Customs []CustomSection

	// NumImportedFuncs etc let callers split an index-space position into
	// "imported" vs "defined" without rescanning Imports.
	NumImportedFuncs    uint32
	NumImportedTables   uint32
	NumImportedMemories uint32
	NumImportedGlobals  uint32
}

// Global is a module-defined (non-imported) global with its constant
// initializer.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// CustomSection is an opaque, order-preserved custom section blob (spec's
// "preserved beyond" clause in §1's Non-goals: contents aren't interpreted,
// only carried).
type CustomSection struct {
	Name string
	Data []byte
}

// TypeOf resolves a function-space index (imports first, then defined
// funcs) to its FunctionType.
func (m *Module) TypeOf(funcIdx uint32) (*FunctionType, error) {
	if funcIdx < m.NumImportedFuncs {
		n := uint32(0)
		for i := range m.Imports {
			if m.Imports[i].Desc.Kind != api.ExternTypeFunc {
				continue
			}
			if n == funcIdx {
				ti := m.Imports[i].Desc.TypeIndex
				if int(ti) >= len(m.Types) {
					return nil, fmt.Errorf("invalid type index %d for imported func %d", ti, funcIdx)
				}
				return m.Types[ti], nil
			}
			n++
		}
		return nil, fmt.Errorf("no such imported func %d", funcIdx)
	}
	defIdx := funcIdx - m.NumImportedFuncs
	if int(defIdx) >= len(m.Funcs) {
		return nil, fmt.Errorf("invalid function index %d", funcIdx)
	}
	ti := m.Funcs[defIdx].TypeIndex
	if int(ti) >= len(m.Types) {
		return nil, fmt.Errorf("invalid type index %d for func %d", ti, funcIdx)
	}
	return m.Types[ti], nil
}

// NumFuncs is the size of the combined (imported + defined) func index space.
func (m *Module) NumFuncs() uint32 { return m.NumImportedFuncs + uint32(len(m.Funcs)) }

// NumTables is the size of the combined table index space.
func (m *Module) NumTables() uint32 { return m.NumImportedTables + uint32(len(m.Tables)) }

// NumMemories is the size of the combined memory index space.
func (m *Module) NumMemories() uint32 { return m.NumImportedMemories + uint32(len(m.Memories)) }

// NumGlobals is the size of the combined global index space.
func (m *Module) NumGlobals() uint32 { return m.NumImportedGlobals + uint32(len(m.Globals)) }
