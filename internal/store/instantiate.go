package store

import (
	"fmt"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// Engine executes validated instruction sequences against a store and a
// module instance. The store package depends only on this interface, not on
// any concrete interpreter, so that instantiation (which must run constant
// expressions and the start function) never imports the interpreter package
// — the interpreter imports store instead, and supplies its Execute method
// as the Engine passed to Instantiate.
type Engine interface {
	// Execute runs body (a validated sequence ending in OpcodeEnd) against a
	// fresh call frame seeded with locals, resolving local/global/table/
	// memory/func indices through instance, and returns whatever values are
	// left on the operand stack when the frame's closing `end` is reached.
	Execute(s *Store, instance *ModuleInstance, locals []uint64, body []wasm.Instr) ([]uint64, error)
}

func evalConstExpr(engine Engine, s *Store, instance *ModuleInstance, body []wasm.Instr) (uint64, error) {
	vals, err := engine.Execute(s, instance, nil, body)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("store: constant expression left %d values, want 1", len(vals))
	}
	return vals[0], nil
}

// Instantiate allocates and wires a new module instance for m, resolving its
// imports from externvals (one per m.Imports, in order), evaluating every
// global and element constant expression, copying active element/data
// segments into their target tables/memories, and running the start
// function if present — the nine-step sequence of spec §4.5.
func (s *Store) Instantiate(m *wasm.Module, externvals []ExternVal, engine Engine) (*ModuleInstance, error) {
	if err := typecheckExternvals(s, m, externvals); err != nil {
		return nil, err
	}

	inst := &ModuleInstance{Module: m}

	// Steps 1-2: allocate a FunctionInstance for each function this module
	// defines; imported functions are simply the externvals' addresses.
	for _, ev := range externvals {
		if ev.Kind == api.ExternTypeFunc {
			inst.FuncAddrs = append(inst.FuncAddrs, ev.Func)
		}
	}
	definedFuncAddrs := make([]FuncAddr, len(m.Funcs))
	for i := range m.Funcs {
		ft := m.Types[m.Funcs[i].TypeIndex]
		addr := s.AddFunc(FunctionInstance{
			Type:   ft,
			Kind:   FuncKindWasm,
			Body:   m.Funcs[i].Body,
			Locals: m.Funcs[i].Locals,
		})
		definedFuncAddrs[i] = addr
		inst.FuncAddrs = append(inst.FuncAddrs, addr)
	}

	// Step 3: the auxiliary "evaluation" instance, exposing only the
	// function index space (now fully known) and imported globals — the
	// only things a constant expression may legally reference.
	aux := &ModuleInstance{Module: m, FuncAddrs: inst.FuncAddrs}
	for _, ev := range externvals {
		if ev.Kind == api.ExternTypeGlobal {
			aux.GlobalAddrs = append(aux.GlobalAddrs, ev.Global)
		}
	}

	// Step 4: evaluate every global initializer and every element segment's
	// reference initializers against the auxiliary instance.
	definedGlobalAddrs := make([]GlobalAddr, len(m.Globals))
	for i := range m.Globals {
		v, err := evalConstExpr(engine, s, aux, m.Globals[i].Init.Body)
		if err != nil {
			return nil, err
		}
		definedGlobalAddrs[i] = s.AddGlobal(&GlobalInstance{Type: m.Globals[i].Type, Value: v})
	}

	elemValues := make([][]uint64, len(m.Elements))
	for i := range m.Elements {
		seg := &m.Elements[i]
		vals := make([]uint64, len(seg.Init))
		for j, ce := range seg.Init {
			v, err := evalConstExpr(engine, s, aux, ce.Body)
			if err != nil {
				return nil, err
			}
			vals[j] = v
		}
		elemValues[i] = vals
	}

	// Step 5: finalize alloc_module — tables, memories, elements and data.
	for _, ev := range externvals {
		if ev.Kind == api.ExternTypeTable {
			inst.TableAddrs = append(inst.TableAddrs, ev.Table)
		}
	}
	for _, tt := range m.Tables {
		inst.TableAddrs = append(inst.TableAddrs, s.AddTable(&TableInstance{
			Type:  tt,
			Elems: make([]uint64, tt.Limits.Min),
		}))
	}

	for _, ev := range externvals {
		if ev.Kind == api.ExternTypeMemory {
			inst.MemAddrs = append(inst.MemAddrs, ev.Mem)
		}
	}
	for _, mt := range m.Memories {
		inst.MemAddrs = append(inst.MemAddrs, s.AddMemory(&MemoryInstance{
			Type: mt,
			Data: make([]byte, int(mt.Limits.Min)*PageSize),
		}))
	}

	for _, ev := range externvals {
		if ev.Kind == api.ExternTypeGlobal {
			inst.GlobalAddrs = append(inst.GlobalAddrs, ev.Global)
		}
	}
	inst.GlobalAddrs = append(inst.GlobalAddrs, definedGlobalAddrs...)

	for i := range m.Elements {
		inst.ElemAddrs = append(inst.ElemAddrs, s.AddElement(&ElementInstance{
			Type:  m.Elements[i].Type,
			Elems: elemValues[i],
		}))
	}
	for i := range m.Data {
		inst.DataAddrs = append(inst.DataAddrs, s.AddData(&DataInstance{Bytes: m.Data[i].Init}))
	}

	for _, exp := range m.Exports {
		ei := ExportInstance{Name: exp.Name, Kind: exp.Kind}
		switch exp.Kind {
		case api.ExternTypeFunc:
			ei.Addr = uint32(inst.FuncAddrs[exp.Index])
		case api.ExternTypeTable:
			ei.Addr = uint32(inst.TableAddrs[exp.Index])
		case api.ExternTypeMemory:
			ei.Addr = uint32(inst.MemAddrs[exp.Index])
		case api.ExternTypeGlobal:
			ei.Addr = uint32(inst.GlobalAddrs[exp.Index])
		}
		inst.Exports = append(inst.Exports, ei)
	}

	modAddr := s.addModuleInstance(inst)
	inst.Addr = modAddr
	for _, addr := range definedFuncAddrs {
		s.Funcs[addr-1].Module = modAddr
	}

	// Step 6: copy active element segments into their table, then drop
	// them; declarative segments are only dropped (they exist solely so
	// ref.func-in-const-expr can reference their contents beforehand).
	for i := range m.Elements {
		seg := &m.Elements[i]
		elemIdx := uint32(i)
		switch seg.Mode {
		case wasm.ElementModeActive:
			offset, err := evalConstExpr(engine, s, inst, seg.Offset.Body)
			if err != nil {
				return nil, err
			}
			seq := []wasm.Instr{
				{Op: wasm.OpcodeI32Const, I32: int32(offset)},
				{Op: wasm.OpcodeI32Const, I32: 0},
				{Op: wasm.OpcodeI32Const, I32: int32(len(seg.Init))},
				{Op: wasm.OpcodeTableInit, Index1: elemIdx, Index2: seg.Table},
				{Op: wasm.OpcodeElemDrop, Index1: elemIdx},
				{Op: wasm.OpcodeEnd},
			}
			if _, err := engine.Execute(s, inst, nil, seq); err != nil {
				return nil, err
			}
		case wasm.ElementModeDeclarative:
			seq := []wasm.Instr{{Op: wasm.OpcodeElemDrop, Index1: elemIdx}, {Op: wasm.OpcodeEnd}}
			if _, err := engine.Execute(s, inst, nil, seq); err != nil {
				return nil, err
			}
		}
	}

	// Step 7: copy active data segments into their memory, then drop them.
	for i := range m.Data {
		seg := &m.Data[i]
		if seg.Mode != wasm.DataModeActive {
			continue
		}
		dataIdx := uint32(i)
		offset, err := evalConstExpr(engine, s, inst, seg.Offset.Body)
		if err != nil {
			return nil, err
		}
		seq := []wasm.Instr{
			{Op: wasm.OpcodeI32Const, I32: int32(offset)},
			{Op: wasm.OpcodeI32Const, I32: 0},
			{Op: wasm.OpcodeI32Const, I32: int32(len(seg.Init))},
			{Op: wasm.OpcodeMemoryInit, Index1: dataIdx},
			{Op: wasm.OpcodeDataDrop, Index1: dataIdx},
			{Op: wasm.OpcodeEnd},
		}
		if _, err := engine.Execute(s, inst, nil, seq); err != nil {
			return nil, err
		}
	}

	// Step 8: invoke the start function, if any.
	if m.Start != nil {
		seq := []wasm.Instr{{Op: wasm.OpcodeCall, Index1: *m.Start}, {Op: wasm.OpcodeEnd}}
		if _, err := engine.Execute(s, inst, nil, seq); err != nil {
			return nil, err
		}
	}

	return inst, nil
}
