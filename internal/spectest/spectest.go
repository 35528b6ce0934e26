// Package spectest builds the "spectest" host module named by spec §6.4: a
// handful of print_* functions that discard their arguments after tracing
// them, four immutable globals, a table and a memory, all exported under
// the fixed names the reference test suite's `.wast` `register "spectest"`
// directive expects.
package spectest

import (
	"go.uber.org/zap"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/linker"
	"github.com/corewasm/corewasm/internal/observ"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/wasm"
)

// ModuleName is the fixed name a `.wast` `register` directive binds this
// module under.
const ModuleName = "spectest"

var (
	noArgsType    = &wasm.FunctionType{}
	i32Type       = &wasm.FunctionType{Params: api.ResultType{api.ValueTypeI32}}
	i64Type       = &wasm.FunctionType{Params: api.ResultType{api.ValueTypeI64}}
	f32Type       = &wasm.FunctionType{Params: api.ResultType{api.ValueTypeF32}}
	f64Type       = &wasm.FunctionType{Params: api.ResultType{api.ValueTypeF64}}
	i32f32Type    = &wasm.FunctionType{Params: api.ResultType{api.ValueTypeI32, api.ValueTypeF32}}
	f64f64Type    = &wasm.FunctionType{Params: api.ResultType{api.ValueTypeF64, api.ValueTypeF64}}
	tableMax      = uint32(20)
)

func printFunc(log *observ.Logger, name string, fields func(args []uint64) []zap.Field) store.HostFunction {
	return func(s *store.Store, caller store.ModuleAddr, args []uint64) ([]uint64, error) {
		log.Call(ModuleName, name, fields(args)...)
		return nil, nil
	}
}

// New allocates spectest's globals, table and memory in s and returns a
// linker.HostModule ready for linker.Linker.DefineHostModule. log may be
// nil (observ.Logger is a safe no-op in that case).
func New(s *store.Store, log *observ.Logger) *linker.HostModule {
	globalI32 := s.AddGlobal(&store.GlobalInstance{Type: wasm.GlobalType{ValType: api.ValueTypeI32}, Value: api.EncodeI32(666)})
	globalI64 := s.AddGlobal(&store.GlobalInstance{Type: wasm.GlobalType{ValType: api.ValueTypeI64}, Value: api.EncodeI64(666)})
	globalF32 := s.AddGlobal(&store.GlobalInstance{Type: wasm.GlobalType{ValType: api.ValueTypeF32}, Value: api.EncodeF32(666)})
	globalF64 := s.AddGlobal(&store.GlobalInstance{Type: wasm.GlobalType{ValType: api.ValueTypeF64}, Value: api.EncodeF64(666)})

	table := s.AddTable(&store.TableInstance{
		Type:  wasm.TableType{ElemType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 10, Max: &tableMax}},
		Elems: make([]uint64, 10),
	})

	memory := s.AddMemory(&store.MemoryInstance{
		Type: wasm.MemoryType{Limits: wasm.Limits{Min: 1}},
		Data: make([]byte, store.PageSize),
	})

	return &linker.HostModule{
		Name: ModuleName,
		Funcs: []linker.HostFunc{
			{Name: "print", Type: noArgsType, Fn: printFunc(log, "print", func(args []uint64) []zap.Field { return nil })},
			{Name: "print_i32", Type: i32Type, Fn: printFunc(log, "print_i32", func(args []uint64) []zap.Field {
				return []zap.Field{zap.Int32("i32", int32(uint32(args[0])))}
			})},
			{Name: "print_i64", Type: i64Type, Fn: printFunc(log, "print_i64", func(args []uint64) []zap.Field {
				return []zap.Field{zap.Int64("i64", int64(args[0]))}
			})},
			{Name: "print_f32", Type: f32Type, Fn: printFunc(log, "print_f32", func(args []uint64) []zap.Field {
				return []zap.Field{zap.Float32("f32", api.DecodeF32(args[0]))}
			})},
			{Name: "print_f64", Type: f64Type, Fn: printFunc(log, "print_f64", func(args []uint64) []zap.Field {
				return []zap.Field{zap.Float64("f64", api.DecodeF64(args[0]))}
			})},
			{Name: "print_i32_f32", Type: i32f32Type, Fn: printFunc(log, "print_i32_f32", func(args []uint64) []zap.Field {
				return []zap.Field{zap.Int32("i32", int32(uint32(args[0]))), zap.Float32("f32", api.DecodeF32(args[1]))}
			})},
			{Name: "print_f64_f64", Type: f64f64Type, Fn: printFunc(log, "print_f64_f64", func(args []uint64) []zap.Field {
				return []zap.Field{zap.Float64("f64_1", api.DecodeF64(args[0])), zap.Float64("f64_2", api.DecodeF64(args[1]))}
			})},
		},
		Items: map[string]store.ExternVal{
			"global_i32": store.GlobalExtern(globalI32),
			"global_i64": store.GlobalExtern(globalI64),
			"global_f32": store.GlobalExtern(globalF32),
			"global_f64": store.GlobalExtern(globalF64),
			"table":      store.TableExtern(table),
			"memory":     store.MemExtern(memory),
		},
	}
}
