package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// constEngine is a minimal Engine sufficient to drive Instantiate's const
// expressions and synthesized init sequences without the real interpreter:
// it folds the part of the instruction vocabulary these tests hand it
// (i32.const, global.get, ref.func, table.init, and the rest handled in the
// switch below), pushing/popping a small value stack.
type constEngine struct {
	called []wasm.Opcode
}

func (e *constEngine) Execute(s *Store, instance *ModuleInstance, locals []uint64, body []wasm.Instr) ([]uint64, error) {
	var stack []uint64
	for _, in := range body {
		e.called = append(e.called, in.Op)
		switch in.Op {
		case wasm.OpcodeI32Const:
			stack = append(stack, uint64(uint32(in.I32)))
		case wasm.OpcodeGlobalGet:
			g, err := s.ResolveGlobal(instance.GlobalAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			stack = append(stack, g.Value)
		case wasm.OpcodeRefFunc:
			stack = append(stack, uint64(instance.FuncAddrs[in.Index1]))
		case wasm.OpcodeTableInit:
			dst := stack[len(stack)-3]
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-3]
			tbl, err := s.ResolveTable(instance.TableAddrs[in.Index2])
			if err != nil {
				return nil, err
			}
			elem, err := s.ResolveElement(instance.ElemAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			copy(tbl.Elems[dst:dst+n], elem.Elems[:n])
		case wasm.OpcodeElemDrop:
			elem, err := s.ResolveElement(instance.ElemAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			elem.Elems = nil
		case wasm.OpcodeMemoryInit:
			dst := stack[len(stack)-3]
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-3]
			mem, err := s.ResolveMemory(instance.MemAddrs[0])
			if err != nil {
				return nil, err
			}
			data, err := s.ResolveData(instance.DataAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			copy(mem.Data[dst:dst+n], data.Bytes[:n])
		case wasm.OpcodeDataDrop:
			data, err := s.ResolveData(instance.DataAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			data.Bytes = nil
		case wasm.OpcodeCall:
			fn, err := s.ResolveFunc(instance.FuncAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			if fn.Host != nil {
				if _, err := fn.Host(s, ModuleAddr(0), nil); err != nil {
					return nil, err
				}
			}
		case wasm.OpcodeEnd:
			// no-op: terminates the sequence
		}
	}
	return stack, nil
}

func i32Const(v int32) wasm.ConstExpr {
	return wasm.ConstExpr{Body: []wasm.Instr{{Op: wasm.OpcodeI32Const, I32: v}, {Op: wasm.OpcodeEnd}}}
}

func TestInstantiate_GlobalsAndExports(t *testing.T) {
	ft := &wasm.FunctionType{Results: api.ResultType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body:      []wasm.Instr{{Op: wasm.OpcodeI32Const, I32: 7}, {Op: wasm.OpcodeEnd}},
		}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false}, Init: i32Const(42)},
		},
		Exports: []wasm.Export{
			{Name: "answer", Kind: api.ExternTypeGlobal, Index: 0},
			{Name: "get", Kind: api.ExternTypeFunc, Index: 0},
		},
	}

	s := New()
	inst, err := s.Instantiate(m, nil, &constEngine{})
	require.NoError(t, err)

	exp, ok := inst.Export("answer")
	require.True(t, ok)
	g, err := s.ResolveGlobal(GlobalAddr(exp.Addr))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), g.Value)

	exp, ok = inst.Export("get")
	require.True(t, ok)
	fn, err := s.ResolveFunc(FuncAddr(exp.Addr))
	require.NoError(t, err)
	assert.Equal(t, FuncKindWasm, fn.Kind)
}

func TestInstantiate_ActiveElementSegmentPopulatesTable(t *testing.T) {
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{}},
		Funcs: []wasm.Function{{TypeIndex: 0, Body: []wasm.Instr{{Op: wasm.OpcodeEnd}}}},
		Tables: []wasm.TableType{
			{ElemType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 4}},
		},
		Elements: []wasm.ElementSegment{
			{
				Type:   api.ValueTypeFuncref,
				Mode:   wasm.ElementModeActive,
				Table:  0,
				Offset: i32Const(1),
				Init:   []wasm.ConstExpr{{Body: []wasm.Instr{{Op: wasm.OpcodeRefFunc, Index1: 0}, {Op: wasm.OpcodeEnd}}}},
			},
		},
	}

	s := New()
	inst, err := s.Instantiate(m, nil, &constEngine{})
	require.NoError(t, err)

	tbl, err := s.ResolveTable(inst.TableAddrs[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(inst.FuncAddrs[0]), tbl.Elems[1])

	elem, err := s.ResolveElement(inst.ElemAddrs[0])
	require.NoError(t, err)
	assert.Empty(t, elem.Elems, "active segment must be dropped after copying")
}

func TestInstantiate_ImportMismatchRejected(t *testing.T) {
	ft := &wasm.FunctionType{Results: api.ResultType{api.ValueTypeI32}}
	other := &wasm.FunctionType{Results: api.ResultType{api.ValueTypeI64}}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Imports: []wasm.Import{
			{Module: "env", Name: "f", Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0}},
		},
		NumImportedFuncs: 1,
	}

	s := New()
	badAddr := s.AddFunc(FunctionInstance{Type: other, Kind: FuncKindHost})
	_, err := s.Instantiate(m, []ExternVal{FuncExtern(badAddr)}, &constEngine{})
	require.Error(t, err)
}

func TestResolveFunc_NullAddrRejected(t *testing.T) {
	s := New()
	_, err := s.ResolveFunc(NullFuncAddr)
	require.Error(t, err)
}

func TestResolveTablesMut_PanicsOnAliasedAddr(t *testing.T) {
	s := New()
	addr := s.AddTable(&TableInstance{})
	assert.Panics(t, func() { s.ResolveTablesMut(addr, addr) })
}
