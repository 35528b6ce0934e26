// Package linker resolves imports across a named set of wasm and host
// modules (spec §4.7): each registered wasm module's imports are satisfied
// by another registered module's exports, host modules supply a fixed set
// of externvals up front, and a topological walk instantiates dependencies
// before the modules that import them.
package linker

import (
	"fmt"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/wasm"
)

// UnknownModuleError is returned when an import (of Link's root or of one
// of its dependencies) names a module that was never registered with the
// Linker.
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("linker: unknown module %q", e.Module)
}

// UnknownSymbolError is returned when an import names a registered module
// that exists, but doesn't export the requested item.
type UnknownSymbolError struct {
	Module, Item string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("linker: module %q has no export %q", e.Module, e.Item)
}

// DependencyInstantiationError wraps a failure instantiating one of root's
// transitive dependencies during Link, naming which module failed.
type DependencyInstantiationError struct {
	Module string
	Err    error
}

func (e *DependencyInstantiationError) Error() string {
	return fmt.Sprintf("linker: instantiating dependency %q: %v", e.Module, e.Err)
}

func (e *DependencyInstantiationError) Unwrap() error { return e.Err }

// HostFunc is one named callback a host module exports (spec §6.3).
type HostFunc struct {
	Name string
	Type *wasm.FunctionType
	Fn   store.HostFunction
}

// HostModule is a named set of host-provided exports (spec §4.7 "a set of
// named (func-type, callback) pairs"). Funcs are allocated in the store by
// DefineHostModule; Items carries any non-func exports (globals, a table, a
// memory — the spectest module of spec §6.4 needs all three) that the
// registrant has already allocated in the same store.
type HostModule struct {
	Name  string
	Funcs []HostFunc
	Items map[string]store.ExternVal
}

type bindings map[string]map[string]store.ExternVal

// Linker accumulates module definitions and instantiated modules' export
// bindings, keyed by module name, and resolves one module's imports at a
// time against whatever has been bound so far.
type Linker struct {
	engine  store.Engine
	pending map[string]*wasm.Module // registered but not yet instantiated
	bound   bindings                // name -> export name -> externval
}

func New(engine store.Engine) *Linker {
	return &Linker{
		engine:  engine,
		pending: map[string]*wasm.Module{},
		bound:   bindings{},
	}
}

// DefineHostModule allocates hm's functions in s and makes the whole module
// immediately resolvable under hm.Name.
func (l *Linker) DefineHostModule(s *store.Store, hm *HostModule) {
	exports := map[string]store.ExternVal{}
	for _, f := range hm.Funcs {
		addr := s.AddFunc(store.FunctionInstance{Type: f.Type, Kind: store.FuncKindHost, Host: f.Fn})
		exports[f.Name] = store.FuncExtern(addr)
	}
	for name, ev := range hm.Items {
		exports[name] = ev
	}
	l.bound[hm.Name] = exports
}

// Define registers a wasm module under name, to be instantiated lazily by
// Link when something depends on it (or eagerly if passed directly as
// Link's root).
func (l *Linker) Define(name string, m *wasm.Module) {
	l.pending[name] = m
}

// Bind records an already-instantiated module's exports under name,
// without the Linker having instantiated it — for a `.wast` `register`
// directive, which names a module a driver instantiated itself.
func (l *Linker) Bind(name string, inst *store.ModuleInstance) {
	l.bound[name] = exportBindings(inst)
}

// Resolve builds the externval vector m.Imports requires, entirely from
// modules already bound (by DefineHostModule, Bind, or a prior Link call).
// It does not instantiate or define anything, so callers that want to
// drive store.Instantiate themselves (a `.wast` directive driver, which
// needs the resulting ModuleInstance before deciding whether to Bind it
// under a name) can resolve imports without going through Link.
func (l *Linker) Resolve(m *wasm.Module) ([]store.ExternVal, error) {
	externvals := make([]store.ExternVal, len(m.Imports))
	for i, im := range m.Imports {
		modExports, ok := l.bound[im.Module]
		if !ok {
			return nil, &UnknownModuleError{Module: im.Module}
		}
		ev, ok := modExports[im.Name]
		if !ok {
			return nil, &UnknownSymbolError{Module: im.Module, Item: im.Name}
		}
		externvals[i] = ev
	}
	return externvals, nil
}

// Link instantiates root against the Linker's registered modules: a
// depth-first walk of root's transitive wasm-module dependencies
// instantiates each one before its dependants (spec §4.7), binding every
// dependency's exports as it goes, then resolves and instantiates root
// itself. root need not have been registered via Define.
func (l *Linker) Link(s *store.Store, root *wasm.Module) (*store.ModuleInstance, error) {
	if err := l.linkDeps(s, root, map[string]bool{}); err != nil {
		return nil, err
	}
	externvals, err := l.Resolve(root)
	if err != nil {
		return nil, err
	}
	return s.Instantiate(root, externvals, l.engine)
}

func (l *Linker) linkDeps(s *store.Store, m *wasm.Module, visiting map[string]bool) error {
	for _, im := range m.Imports {
		if err := l.linkModule(s, im.Module, visiting); err != nil {
			return err
		}
	}
	return nil
}

// linkModule ensures name is bound, instantiating it (and, recursively, its
// own dependencies) first if it was only Define'd, not yet bound.
func (l *Linker) linkModule(s *store.Store, name string, visiting map[string]bool) error {
	if _, ok := l.bound[name]; ok {
		return nil
	}
	m, ok := l.pending[name]
	if !ok {
		return &UnknownModuleError{Module: name}
	}
	if visiting[name] {
		return fmt.Errorf("linker: cyclic dependency at module %q", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	if err := l.linkDeps(s, m, visiting); err != nil {
		return err
	}
	externvals, err := l.Resolve(m)
	if err != nil {
		return &DependencyInstantiationError{Module: name, Err: err}
	}
	inst, err := s.Instantiate(m, externvals, l.engine)
	if err != nil {
		return &DependencyInstantiationError{Module: name, Err: err}
	}
	l.bound[name] = exportBindings(inst)
	return nil
}

func exportBindings(inst *store.ModuleInstance) map[string]store.ExternVal {
	out := make(map[string]store.ExternVal, len(inst.Exports))
	for _, e := range inst.Exports {
		switch e.Kind {
		case api.ExternTypeFunc:
			out[e.Name] = store.FuncExtern(store.FuncAddr(e.Addr))
		case api.ExternTypeTable:
			out[e.Name] = store.TableExtern(store.TableAddr(e.Addr))
		case api.ExternTypeMemory:
			out[e.Name] = store.MemExtern(store.MemAddr(e.Addr))
		case api.ExternTypeGlobal:
			out[e.Name] = store.GlobalExtern(store.GlobalAddr(e.Addr))
		}
	}
	return out
}
