package store

import (
	"fmt"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// ExternVal is a resolved import: an address in one of the store's four
// externally-visible index spaces, tagged with which one (spec §3.4, §4.4
// "matching" step). Instantiate consumes one per entry in the module's
// import section, in order.
type ExternVal struct {
	Kind   api.ExternType
	Func   FuncAddr
	Table  TableAddr
	Mem    MemAddr
	Global GlobalAddr
}

func FuncExtern(a FuncAddr) ExternVal     { return ExternVal{Kind: api.ExternTypeFunc, Func: a} }
func TableExtern(a TableAddr) ExternVal   { return ExternVal{Kind: api.ExternTypeTable, Table: a} }
func MemExtern(a MemAddr) ExternVal       { return ExternVal{Kind: api.ExternTypeMemory, Mem: a} }
func GlobalExtern(a GlobalAddr) ExternVal { return ExternVal{Kind: api.ExternTypeGlobal, Global: a} }

// typecheckExternvals verifies externvals has one entry per m.Imports, in
// order, each matching its import's declared kind and type (spec §4.4's
// "matching" relation: func types equal, table/memory limits no more
// permissive than declared, global type and mutability exactly equal).
func typecheckExternvals(s *Store, m *wasm.Module, externvals []ExternVal) error {
	if len(externvals) != len(m.Imports) {
		return fmt.Errorf("store: %d externvals provided for %d imports", len(externvals), len(m.Imports))
	}
	for i, im := range m.Imports {
		ev := externvals[i]
		if ev.Kind != im.Desc.Kind {
			return fmt.Errorf("store: import %d (%s.%s) expects kind %s, got %s",
				i, im.Module, im.Name, api.ExternTypeName(im.Desc.Kind), api.ExternTypeName(ev.Kind))
		}
		switch im.Desc.Kind {
		case api.ExternTypeFunc:
			fi, err := s.ResolveFunc(ev.Func)
			if err != nil {
				return fmt.Errorf("store: import %d: %w", i, err)
			}
			want := m.Types[im.Desc.TypeIndex]
			if !fi.Type.Equal(want) {
				return fmt.Errorf("store: import %d (%s.%s): function type mismatch: want %s, got %s",
					i, im.Module, im.Name, want, fi.Type)
			}
		case api.ExternTypeTable:
			ti, err := s.ResolveTable(ev.Table)
			if err != nil {
				return fmt.Errorf("store: import %d: %w", i, err)
			}
			if ti.Type.ElemType != im.Desc.TableType.ElemType {
				return fmt.Errorf("store: import %d (%s.%s): table element type mismatch", i, im.Module, im.Name)
			}
			if !limitsMatch(ti.Type.Limits, im.Desc.TableType.Limits) {
				return fmt.Errorf("store: import %d (%s.%s): table limits mismatch", i, im.Module, im.Name)
			}
		case api.ExternTypeMemory:
			mi, err := s.ResolveMemory(ev.Mem)
			if err != nil {
				return fmt.Errorf("store: import %d: %w", i, err)
			}
			if !limitsMatch(mi.Type.Limits, im.Desc.MemoryType.Limits) {
				return fmt.Errorf("store: import %d (%s.%s): memory limits mismatch", i, im.Module, im.Name)
			}
		case api.ExternTypeGlobal:
			gi, err := s.ResolveGlobal(ev.Global)
			if err != nil {
				return fmt.Errorf("store: import %d: %w", i, err)
			}
			if gi.Type.ValType != im.Desc.GlobalType.ValType || gi.Type.Mutable != im.Desc.GlobalType.Mutable {
				return fmt.Errorf("store: import %d (%s.%s): global type mismatch", i, im.Module, im.Name)
			}
		}
	}
	return nil
}

// limitsMatch reports whether actual (the real resource's limits) satisfies
// expected (the import declaration's limits): at least as large a minimum,
// and, if a maximum is declared, a maximum no greater than it.
func limitsMatch(actual, expected wasm.Limits) bool {
	if actual.Min < expected.Min {
		return false
	}
	if expected.Max == nil {
		return true
	}
	return actual.Max != nil && *actual.Max <= *expected.Max
}
