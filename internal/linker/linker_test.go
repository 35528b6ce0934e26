package linker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/interpreter"
	"github.com/corewasm/corewasm/internal/linker"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/validator"
	"github.com/corewasm/corewasm/internal/wasm"
)

// addOneType is shared by a couple of the modules below: one i32 in, one
// i32 out.
var addOneType = &wasm.FunctionType{
	Params:  api.ResultType{api.ValueTypeI32},
	Results: api.ResultType{api.ValueTypeI32},
}

func mustValidate(t *testing.T, m *wasm.Module) *wasm.Module {
	t.Helper()
	require.NoError(t, validator.Validate(m))
	return m
}

func TestLinker_HostModuleThenWasmModule(t *testing.T) {
	// "env" exports a host function "double"; root imports it and calls it.
	s := store.New()
	it := interpreter.New()
	l := linker.New(it)

	l.DefineHostModule(s, &linker.HostModule{
		Name: "env",
		Funcs: []linker.HostFunc{{
			Name: "double",
			Type: addOneType,
			Fn: func(s *store.Store, caller store.ModuleAddr, args []uint64) ([]uint64, error) {
				return []uint64{args[0] * 2}, nil
			},
		}},
	})

	root := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{addOneType},
		Imports: []wasm.Import{{
			Module: "env", Name: "double",
			Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0},
		}},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeLocalGet, Index1: 0},
				{Op: wasm.OpcodeCall, Index1: 0}, // imported func is index 0
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "run", Kind: api.ExternTypeFunc, Index: 1}},
	})

	inst, err := l.Link(s, root)
	require.NoError(t, err)

	exp, ok := inst.Export("run")
	require.True(t, ok)
	results, err := it.Invoke(s, store.FuncAddr(exp.Addr), []uint64{api.EncodeI32(21)})
	require.NoError(t, err)
	assert.Equal(t, int32(42), int32(uint32(results[0])))
}

func TestLinker_TransitiveWasmDependency(t *testing.T) {
	// "base" exports "inc"; "mid" imports "base.inc" and re-exports it as
	// "inc2"; root imports "mid.inc2". Link must instantiate base before
	// mid, and mid before root, purely from root's import graph.
	s := store.New()
	it := interpreter.New()
	l := linker.New(it)

	base := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{addOneType},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeLocalGet, Index1: 0},
				{Op: wasm.OpcodeI32Const, I32: 1},
				{Op: wasm.OpcodeI32Add},
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "inc", Kind: api.ExternTypeFunc, Index: 0}},
	})
	l.Define("base", base)

	mid := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{addOneType},
		Imports: []wasm.Import{{
			Module: "base", Name: "inc",
			Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0},
		}},
		Exports: []wasm.Export{{Name: "inc2", Kind: api.ExternTypeFunc, Index: 0}},
	})
	l.Define("mid", mid)

	root := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{addOneType},
		Imports: []wasm.Import{{
			Module: "mid", Name: "inc2",
			Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0},
		}},
		Exports: []wasm.Export{{Name: "run", Kind: api.ExternTypeFunc, Index: 0}},
	})

	inst, err := l.Link(s, root)
	require.NoError(t, err)

	exp, _ := inst.Export("run")
	results, err := it.Invoke(s, store.FuncAddr(exp.Addr), []uint64{api.EncodeI32(9)})
	require.NoError(t, err)
	assert.Equal(t, int32(10), int32(uint32(results[0])))
}

func TestLinker_UnknownModule(t *testing.T) {
	s := store.New()
	l := linker.New(interpreter.New())

	root := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{addOneType},
		Imports: []wasm.Import{{
			Module: "nope", Name: "whatever",
			Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0},
		}},
	})

	_, err := l.Link(s, root)
	var unknownMod *linker.UnknownModuleError
	assert.ErrorAs(t, err, &unknownMod)
	assert.Equal(t, "nope", unknownMod.Module)
}

func TestLinker_UnknownSymbol(t *testing.T) {
	s := store.New()
	l := linker.New(interpreter.New())
	l.DefineHostModule(s, &linker.HostModule{Name: "env"})

	root := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{addOneType},
		Imports: []wasm.Import{{
			Module: "env", Name: "missing",
			Desc: wasm.ImportDesc{Kind: api.ExternTypeFunc, TypeIndex: 0},
		}},
	})

	_, err := l.Link(s, root)
	var unknownSym *linker.UnknownSymbolError
	assert.ErrorAs(t, err, &unknownSym)
	assert.Equal(t, "env", unknownSym.Module)
	assert.Equal(t, "missing", unknownSym.Item)
}

func TestLinker_Bind(t *testing.T) {
	// A module instantiated outside the Linker (mirroring a `.wast` driver
	// instantiating a `module` directive itself) can still be registered
	// for a later module's imports via Bind.
	s := store.New()
	it := interpreter.New()
	l := linker.New(it)

	provider := mustValidate(t, &wasm.Module{
		Types:   []*wasm.FunctionType{addOneType},
		Globals: []wasm.Global{{Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false}, Init: wasm.ConstExpr{Body: []wasm.Instr{{Op: wasm.OpcodeI32Const, I32: 7}, {Op: wasm.OpcodeEnd}}}}},
		Exports: []wasm.Export{{Name: "seven", Kind: api.ExternTypeGlobal, Index: 0}},
	})
	providerInst, err := s.Instantiate(provider, nil, it)
	require.NoError(t, err)
	l.Bind("provider", providerInst)

	root := mustValidate(t, &wasm.Module{
		Types: []*wasm.FunctionType{{Results: api.ResultType{api.ValueTypeI32}}},
		Imports: []wasm.Import{{
			Module: "provider", Name: "seven",
			Desc: wasm.ImportDesc{Kind: api.ExternTypeGlobal, GlobalType: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false}},
		}},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeGlobalGet, Index1: 0},
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "run", Kind: api.ExternTypeFunc, Index: 0}},
	})

	externvals, err := l.Resolve(root)
	require.NoError(t, err)
	inst, err := s.Instantiate(root, externvals, it)
	require.NoError(t, err)

	exp, _ := inst.Export("run")
	results, err := it.Invoke(s, store.FuncAddr(exp.Addr), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), int32(uint32(results[0])))
}
