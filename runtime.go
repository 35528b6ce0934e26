// Package corewasm is the embedder-facing surface over the engine's
// internal decode/validate/store/interpret/link pipeline: a Runtime holds
// one Store and one Linker, and a Module is a named, instantiated unit
// within it that callers can Invoke exported functions on.
package corewasm

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corewasm/corewasm/internal/interpreter"
	"github.com/corewasm/corewasm/internal/linker"
	"github.com/corewasm/corewasm/internal/observ"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/validator"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wasm/binary"
)

// Runtime owns one Store and one Linker: every Module instantiated through
// it can resolve imports against every other module already instantiated or
// defined on the same Runtime, per spec §4.7.
type Runtime struct {
	store  *store.Store
	it     *interpreter.Interpreter
	linker *linker.Linker
	log    *observ.Logger
}

// NewRuntime constructs a Runtime. A nil cfg is equivalent to
// NewRuntimeConfig() — silent, with no logging.
func NewRuntime(cfg *RuntimeConfig) *Runtime {
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	s := store.New()
	it := interpreter.New()
	return &Runtime{
		store:  s,
		it:     it,
		linker: linker.New(it),
		log:    observ.New(cfg.zl, cfg.scopes),
	}
}

// Store exposes the Runtime's underlying store, for callers (notably the
// CLI's spectest wiring) that need to allocate a host module's globals,
// tables, and memories themselves before calling InstantiateHostModule.
func (r *Runtime) Store() *store.Store { return r.store }

// Module is one instantiated module within a Runtime, addressable by the
// name it was instantiated or registered under (empty for an anonymous
// root module instantiated only to be invoked, never imported from).
type Module struct {
	rt   *Runtime
	Name string
	inst *store.ModuleInstance
}

// InstantiateHostModule allocates hm's functions (and any pre-allocated
// items) in the Runtime's store and makes it immediately resolvable by
// other modules' imports, under hm.Name.
func (r *Runtime) InstantiateHostModule(hm *linker.HostModule) {
	r.linker.DefineHostModule(r.store, hm)
	r.log.Instantiate(hm.Name, zap.String("kind", "host"))
}

// DecodeModule parses a binary-format module, without validating or
// instantiating it.
func (r *Runtime) DecodeModule(b []byte) (*wasm.Module, error) {
	return binary.DecodeModule(b)
}

// InstantiateModule validates m, resolves its imports against everything
// already instantiated or defined on r, and instantiates it under name (name
// may be empty for a module nothing else will import from). Each call is
// tagged with a fresh correlation id threaded into the trace line, so a
// multi-module run stays traceable without a tracing SDK.
func (r *Runtime) InstantiateModule(name string, m *wasm.Module) (*Module, error) {
	runID := uuid.New()
	if err := validator.Validate(m); err != nil {
		return nil, fmt.Errorf("corewasm: validate %q: %w", name, err)
	}
	externvals, err := r.linker.Resolve(m)
	if err != nil {
		return nil, fmt.Errorf("corewasm: resolve imports of %q: %w", name, err)
	}
	inst, err := r.store.Instantiate(m, externvals, r.it)
	if err != nil {
		return nil, fmt.Errorf("corewasm: instantiate %q: %w", name, err)
	}
	r.log.Instantiate(name, zap.String("run_id", runID.String()))
	if name != "" {
		r.linker.Bind(name, inst)
	}
	return &Module{rt: r, Name: name, inst: inst}, nil
}

// Link instantiates root's full transitive dependency graph (spec §4.7's
// topological walk) against modules previously defined with DefineModule,
// then instantiates root itself.
func (r *Runtime) Link(root *wasm.Module) (*Module, error) {
	inst, err := r.linker.Link(r.store, root)
	if err != nil {
		return nil, fmt.Errorf("corewasm: link: %w", err)
	}
	r.log.Instantiate("", zap.String("run_id", uuid.New().String()))
	return &Module{rt: r, inst: inst}, nil
}

// DefineModule registers m under name for Link to instantiate lazily, the
// first time some other module's import depends on it.
func (r *Runtime) DefineModule(name string, m *wasm.Module) {
	r.linker.Define(name, m)
}

// FuncType returns the declared signature of the exported function name, so
// a caller (notably the CLI) can encode raw argument strings and decode
// results without already knowing the module's shape.
func (m *Module) FuncType(name string) (*wasm.FunctionType, error) {
	exp, ok := m.inst.Export(name)
	if !ok {
		return nil, fmt.Errorf("corewasm: module %q has no export %q", m.Name, name)
	}
	fn, err := m.rt.store.ResolveFunc(store.FuncAddr(exp.Addr))
	if err != nil {
		return nil, err
	}
	return fn.Type, nil
}

// Invoke calls the exported function name on this module with args, each
// already encoded per the api.Encode* helpers, and returns its results in
// the same encoding. A fresh correlation id is attached to the resulting
// trace line.
func (m *Module) Invoke(name string, args ...uint64) ([]uint64, error) {
	exp, ok := m.inst.Export(name)
	if !ok {
		return nil, fmt.Errorf("corewasm: module %q has no export %q", m.Name, name)
	}
	runID := uuid.New()
	m.rt.log.Call(m.Name, name, zap.String("run_id", runID.String()))
	results, err := m.rt.it.Invoke(m.rt.store, store.FuncAddr(exp.Addr), args)
	if err != nil {
		m.rt.log.Trap(err.Error(), zap.String("run_id", runID.String()), zap.String("func", name))
		return nil, err
	}
	return results, nil
}
