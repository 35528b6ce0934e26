package interpreter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/interpreter"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/validator"
	"github.com/corewasm/corewasm/internal/wasm"
)

func mustInstantiate(t *testing.T, m *wasm.Module) (*store.Store, *store.ModuleInstance) {
	t.Helper()
	require.NoError(t, validator.Validate(m))
	s := store.New()
	it := interpreter.New()
	inst, err := s.Instantiate(m, nil, it)
	require.NoError(t, err)
	return s, inst
}

func TestInterpreter_Add(t *testing.T) {
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{
			Params:  api.ResultType{api.ValueTypeI32, api.ValueTypeI32},
			Results: api.ResultType{api.ValueTypeI32},
		}},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeLocalGet, Index1: 0},
				{Op: wasm.OpcodeLocalGet, Index1: 1},
				{Op: wasm.OpcodeI32Add},
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "add", Kind: api.ExternTypeFunc, Index: 0}},
	}

	s, inst := mustInstantiate(t, m)
	it := interpreter.New()
	exp, ok := inst.Export("add")
	require.True(t, ok)

	results, err := it.Invoke(s, store.FuncAddr(exp.Addr), []uint64{api.EncodeI32(19), api.EncodeI32(23)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(42), int32(uint32(results[0])))
}

// TestInterpreter_LoopSum sums 1..n via a loop with a br_if back-edge,
// exercising the block/loop/br_if control-flow offsets together.
func TestInterpreter_LoopSum(t *testing.T) {
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{
			Params:  api.ResultType{api.ValueTypeI32},
			Results: api.ResultType{api.ValueTypeI32},
		}},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Locals:    []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, // acc (local 1), i (local 2)
			Body: []wasm.Instr{
				{Op: wasm.OpcodeI32Const, I32: 0},
				{Op: wasm.OpcodeLocalSet, Index1: 1}, // acc = 0
				{Op: wasm.OpcodeI32Const, I32: 1},
				{Op: wasm.OpcodeLocalSet, Index1: 2}, // i = 1

				{Op: wasm.OpcodeLoop, BlockType: wasm.BlockTypeEmpty}, // 4
				{Op: wasm.OpcodeLocalGet, Index1: 1},
				{Op: wasm.OpcodeLocalGet, Index1: 2},
				{Op: wasm.OpcodeI32Add},
				{Op: wasm.OpcodeLocalSet, Index1: 1}, // acc += i
				{Op: wasm.OpcodeLocalGet, Index1: 2},
				{Op: wasm.OpcodeI32Const, I32: 1},
				{Op: wasm.OpcodeI32Add},
				{Op: wasm.OpcodeLocalSet, Index1: 2}, // i += 1
				{Op: wasm.OpcodeLocalGet, Index1: 2},
				{Op: wasm.OpcodeLocalGet, Index1: 0},
				{Op: wasm.OpcodeI32LeS},
				{Op: wasm.OpcodeBrIf, Index1: 0}, // i <= n: continue loop
				{Op: wasm.OpcodeEnd},             // 17: end loop

				{Op: wasm.OpcodeLocalGet, Index1: 1},
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "sum", Kind: api.ExternTypeFunc, Index: 0}},
	}

	s, inst := mustInstantiate(t, m)
	it := interpreter.New()
	exp, _ := inst.Export("sum")

	results, err := it.Invoke(s, store.FuncAddr(exp.Addr), []uint64{api.EncodeI32(10)})
	require.NoError(t, err)
	assert.Equal(t, int32(55), int32(uint32(results[0])))
}

func TestInterpreter_MemoryStoreLoadRoundtrip(t *testing.T) {
	one := uint32(1)
	m := &wasm.Module{
		Types: []*wasm.FunctionType{{
			Params:  api.ResultType{api.ValueTypeI32, api.ValueTypeI32},
			Results: api.ResultType{},
		}, {
			Params:  api.ResultType{api.ValueTypeI32},
			Results: api.ResultType{api.ValueTypeI32},
		}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: &one}}},
		Funcs: []wasm.Function{
			{
				TypeIndex: 0,
				Body: []wasm.Instr{
					{Op: wasm.OpcodeLocalGet, Index1: 0},
					{Op: wasm.OpcodeLocalGet, Index1: 1},
					{Op: wasm.OpcodeI32Store},
					{Op: wasm.OpcodeEnd},
				},
			},
			{
				TypeIndex: 1,
				Body: []wasm.Instr{
					{Op: wasm.OpcodeLocalGet, Index1: 0},
					{Op: wasm.OpcodeI32Load},
					{Op: wasm.OpcodeEnd},
				},
			},
		},
		Exports: []wasm.Export{
			{Name: "store", Kind: api.ExternTypeFunc, Index: 0},
			{Name: "load", Kind: api.ExternTypeFunc, Index: 1},
		},
	}

	s, inst := mustInstantiate(t, m)
	it := interpreter.New()
	storeExp, _ := inst.Export("store")
	loadExp, _ := inst.Export("load")

	_, err := it.Invoke(s, store.FuncAddr(storeExp.Addr), []uint64{api.EncodeI32(100), api.EncodeI32(777)})
	require.NoError(t, err)

	results, err := it.Invoke(s, store.FuncAddr(loadExp.Addr), []uint64{api.EncodeI32(100)})
	require.NoError(t, err)
	assert.Equal(t, int32(777), int32(uint32(results[0])))

	// Out of bounds: the one-page memory is 65536 bytes.
	_, err = it.Invoke(s, store.FuncAddr(loadExp.Addr), []uint64{api.EncodeI32(65533)})
	assert.Error(t, err)
}

func TestInterpreter_CallIndirectTrapsOnNullAndTypeMismatch(t *testing.T) {
	twenty := uint32(20)
	m := &wasm.Module{
		Types: []*wasm.FunctionType{
			{Results: api.ResultType{api.ValueTypeI32}},                                 // 0: expected by call_indirect
			{Results: api.ResultType{api.ValueTypeF32}},                                 // 1: the table entry's real type
			{Params: api.ResultType{api.ValueTypeI32}, Results: api.ResultType{api.ValueTypeI32}}, // 2: call_it itself
		},
		Tables: []wasm.TableType{{ElemType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 10, Max: &twenty}}},
		Funcs: []wasm.Function{
			{TypeIndex: 1, Body: []wasm.Instr{{Op: wasm.OpcodeF32Const, F32: 1}, {Op: wasm.OpcodeEnd}}},
			{
				TypeIndex: 2,
				Body: []wasm.Instr{
					{Op: wasm.OpcodeLocalGet, Index1: 0},
					{Op: wasm.OpcodeCallIndirect, Index1: 0, Index2: 0},
					{Op: wasm.OpcodeEnd},
				},
			},
		},
		Elements: []wasm.ElementSegment{{
			Type:   api.ValueTypeFuncref,
			Mode:   wasm.ElementModeActive,
			Table:  0,
			Offset: wasm.ConstExpr{Body: []wasm.Instr{{Op: wasm.OpcodeI32Const, I32: 0}, {Op: wasm.OpcodeEnd}}},
			Init:   []wasm.ConstExpr{{Body: []wasm.Instr{{Op: wasm.OpcodeRefFunc, Index1: 0}, {Op: wasm.OpcodeEnd}}}},
		}},
		Exports: []wasm.Export{{Name: "call_it", Kind: api.ExternTypeFunc, Index: 1}},
	}

	s, inst := mustInstantiate(t, m)
	it := interpreter.New()
	exp, _ := inst.Export("call_it")

	_, err := it.Invoke(s, store.FuncAddr(exp.Addr), []uint64{api.EncodeI32(0)})
	assert.ErrorContains(t, err, "type mismatch")

	_, err = it.Invoke(s, store.FuncAddr(exp.Addr), []uint64{api.EncodeI32(5)})
	assert.ErrorContains(t, err, "null")
}
