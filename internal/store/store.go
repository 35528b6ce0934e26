// Package store implements the runtime entity tables and the instantiation
// sequence a verified module is wired into (spec §3.3, §3.4, §4.4, §4.5):
// seven append-only slabs (functions, tables, memories, globals, elements,
// data, module instances) addressed by opaque integer indices, with no
// deallocation for the store's lifetime.
package store

import (
	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// FuncAddr is biased by one so that address 0 is reserved as the null
// funcref — no separate tag is needed to represent a null reference (spec
// §3.4, §8 "WasmFuncAddr(0) is never allocated").
type FuncAddr uint32

const NullFuncAddr FuncAddr = 0

type TableAddr uint32
type MemAddr uint32
type GlobalAddr uint32
type ElemAddr uint32
type DataAddr uint32
type ModuleAddr uint32

// FuncKind distinguishes a wasm-defined function body from a host callback.
type FuncKind int

const (
	FuncKindWasm FuncKind = iota
	FuncKindHost
)

// HostFunction is a host-supplied callback bound to a function type (spec
// §6.3): it runs synchronously on the interpreter's own goroutine and
// signals failure by returning an error (modelled as the "throwing"
// callback the spec describes, since no error channel exists in the
// invocation ABI beyond a trap).
type HostFunction func(s *Store, caller ModuleAddr, args []uint64) ([]uint64, error)

// FunctionInstance is a function's runtime identity: a type plus either a
// wasm body (owned by, and indexed relative to, its defining module
// instance) or a host callback (spec §3.3).
type FunctionInstance struct {
	Type   *wasm.FunctionType
	Kind   FuncKind
	Module ModuleAddr // FuncKindWasm only
	Body   []wasm.Instr
	Locals []api.ValueType // declared (non-parameter) locals, FuncKindWasm only
	Host   HostFunction    // FuncKindHost only
}

// TableInstance is a resizable sequence of reference values. Elements are
// carried as raw uint64 payloads: a null reference (of either reference
// type) is uniformly the zero value, matching FuncAddr's null bias.
type TableInstance struct {
	Type  wasm.TableType
	Elems []uint64
}

// PageSize is the fixed WebAssembly memory page size in bytes.
const PageSize = 65536

// MemoryInstance is a byte buffer sized in whole pages.
type MemoryInstance struct {
	Type wasm.MemoryType
	Data []byte
}

func (m *MemoryInstance) Pages() uint32 { return uint32(len(m.Data) / PageSize) }

// GlobalInstance is a mutable or immutable value cell.
type GlobalInstance struct {
	Type  wasm.GlobalType
	Value uint64
}

// ElementInstance holds an element segment's resolved reference values;
// dropping it (spec's `elem.drop`) empties Elems without removing the
// store entry, since store tables never shrink.
type ElementInstance struct {
	Type  api.ValueType
	Elems []uint64
}

// DataInstance holds a data segment's raw bytes; dropping it (`data.drop`)
// clears Bytes to nil.
type DataInstance struct {
	Bytes []byte
}

// ExportInstance is one resolved export of a module instance: an externval
// naming one of the module's own addresses.
type ExportInstance struct {
	Name string
	Kind api.ExternType
	Addr uint32 // interpreted as FuncAddr/TableAddr/MemAddr/GlobalAddr per Kind
}

// ModuleInstance is a module's runtime identity: a back-reference to its
// (shared-owned) static module plus the address vectors for each index
// space, filled in by Instantiate (spec §3.3, §3.4 "re-filled during
// alloc_module; empty between alloc_inst and that call").
type ModuleInstance struct {
	Module      *wasm.Module
	Addr        ModuleAddr
	FuncAddrs   []FuncAddr
	TableAddrs  []TableAddr
	MemAddrs    []MemAddr
	GlobalAddrs []GlobalAddr
	ElemAddrs   []ElemAddr
	DataAddrs   []DataAddr
	Exports     []ExportInstance
}

func (inst *ModuleInstance) Export(name string) (ExportInstance, bool) {
	for _, e := range inst.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return ExportInstance{}, false
}

// Store owns every runtime entity ever allocated, across every module
// instantiated through it. Tables only grow; addresses are stable for the
// store's lifetime (spec §3.4).
type Store struct {
	Funcs    []FunctionInstance
	Tables   []*TableInstance
	Memories []*MemoryInstance
	Globals  []*GlobalInstance
	Elements []*ElementInstance
	DataInst []*DataInstance
	Modules  []*ModuleInstance
}

func New() *Store { return &Store{} }

func (s *Store) AddFunc(f FunctionInstance) FuncAddr {
	s.Funcs = append(s.Funcs, f)
	return FuncAddr(len(s.Funcs)) // biased: index 0 is reserved for null
}

func (s *Store) ResolveFunc(a FuncAddr) (*FunctionInstance, error) {
	if a == NullFuncAddr || int(a) > len(s.Funcs) {
		return nil, errInvalidAddr("func")
	}
	return &s.Funcs[a-1], nil
}

func (s *Store) AddTable(t *TableInstance) TableAddr {
	s.Tables = append(s.Tables, t)
	return TableAddr(len(s.Tables) - 1)
}

func (s *Store) ResolveTable(a TableAddr) (*TableInstance, error) {
	if int(a) >= len(s.Tables) {
		return nil, errInvalidAddr("table")
	}
	return s.Tables[a], nil
}

// ResolveTablesMut yields two disjoint mutable views into distinct tables
// (spec §3.4, §5): used by table.copy across different tables. It panics if
// a == b, matching the store contract's explicit non-aliasing requirement.
func (s *Store) ResolveTablesMut(a, b TableAddr) (*TableInstance, *TableInstance) {
	if a == b {
		panic("store: resolve_multi_mut requires distinct table addresses")
	}
	return s.Tables[a], s.Tables[b]
}

func (s *Store) AddMemory(m *MemoryInstance) MemAddr {
	s.Memories = append(s.Memories, m)
	return MemAddr(len(s.Memories) - 1)
}

func (s *Store) ResolveMemory(a MemAddr) (*MemoryInstance, error) {
	if int(a) >= len(s.Memories) {
		return nil, errInvalidAddr("memory")
	}
	return s.Memories[a], nil
}

func (s *Store) AddGlobal(g *GlobalInstance) GlobalAddr {
	s.Globals = append(s.Globals, g)
	return GlobalAddr(len(s.Globals) - 1)
}

func (s *Store) ResolveGlobal(a GlobalAddr) (*GlobalInstance, error) {
	if int(a) >= len(s.Globals) {
		return nil, errInvalidAddr("global")
	}
	return s.Globals[a], nil
}

func (s *Store) AddElement(e *ElementInstance) ElemAddr {
	s.Elements = append(s.Elements, e)
	return ElemAddr(len(s.Elements) - 1)
}

func (s *Store) ResolveElement(a ElemAddr) (*ElementInstance, error) {
	if int(a) >= len(s.Elements) {
		return nil, errInvalidAddr("elem")
	}
	return s.Elements[a], nil
}

func (s *Store) AddData(d *DataInstance) DataAddr {
	s.DataInst = append(s.DataInst, d)
	return DataAddr(len(s.DataInst) - 1)
}

func (s *Store) ResolveData(a DataAddr) (*DataInstance, error) {
	if int(a) >= len(s.DataInst) {
		return nil, errInvalidAddr("data")
	}
	return s.DataInst[a], nil
}

func (s *Store) addModuleInstance(inst *ModuleInstance) ModuleAddr {
	s.Modules = append(s.Modules, inst)
	return ModuleAddr(len(s.Modules) - 1)
}

func (s *Store) ResolveModule(a ModuleAddr) (*ModuleInstance, error) {
	if int(a) >= len(s.Modules) {
		return nil, errInvalidAddr("module")
	}
	return s.Modules[a], nil
}

type addrError string

func (e addrError) Error() string { return "invalid store address: " + string(e) }

func errInvalidAddr(kind string) error { return addrError(kind) }
