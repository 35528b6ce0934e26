package spectest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/interpreter"
	"github.com/corewasm/corewasm/internal/linker"
	"github.com/corewasm/corewasm/internal/spectest"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/validator"
	"github.com/corewasm/corewasm/internal/wasm"
)

func TestSpectest_GlobalsTableMemoryAndPrint(t *testing.T) {
	s := store.New()
	it := interpreter.New()
	l := linker.New(it)
	l.DefineHostModule(s, spectest.New(s, nil))

	root := &wasm.Module{
		Types: []*wasm.FunctionType{
			{Results: api.ResultType{api.ValueTypeI32}},
			{Params: api.ResultType{api.ValueTypeI32}},
		},
		Imports: []wasm.Import{
			{Module: "spectest", Name: "global_i32", Desc: wasm.ImportDesc{Kind: api.ExternTypeGlobal, GlobalType: wasm.GlobalType{ValType: api.ValueTypeI32}}},
			{Module: "spectest", Name: "table", Desc: wasm.ImportDesc{Kind: api.ExternTypeTable, TableType: wasm.TableType{ElemType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 10}}}},
			{Module: "spectest", Name: "memory", Desc: wasm.ImportDesc{Kind: api.ExternTypeMemory, MemoryType: wasm.MemoryType{Limits: wasm.Limits{Min: 1}}}},
			{Module: "spectest", Name: "print_i32", Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 1}},
		},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeGlobalGet, Index1: 0},
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "read_global", Kind: api.ExternTypeFunc, Index: 1}},
	}
	require.NoError(t, validator.Validate(root))

	inst, err := l.Link(s, root)
	require.NoError(t, err)

	exp, _ := inst.Export("read_global")
	results, err := it.Invoke(s, store.FuncAddr(exp.Addr), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(666), int32(uint32(results[0])))

	printExp, err := l.Resolve(&wasm.Module{
		Imports: []wasm.Import{{Module: "spectest", Name: "print_i32", Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0}}},
	})
	require.NoError(t, err)
	fn, err := s.ResolveFunc(printExp[0].Func)
	require.NoError(t, err)
	_, err = fn.Host(s, store.ModuleAddr(0), []uint64{api.EncodeI32(42)})
	assert.NoError(t, err)
}
