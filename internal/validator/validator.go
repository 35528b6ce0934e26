package validator

import (
	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// moduleCtx flattens a module's imported+defined entities into combined
// index spaces once, so every function body validates against the same
// precomputed view instead of re-scanning Imports per instruction.
type moduleCtx struct {
	m        *wasm.Module
	tables   []wasm.TableType
	memories []wasm.MemoryType
	globals  []wasm.GlobalType
	refSet   map[uint32]bool
}

func newModuleCtx(m *wasm.Module) *moduleCtx {
	c := &moduleCtx{m: m, refSet: computeRefSet(m)}
	for _, im := range m.Imports {
		switch im.Desc.Kind {
		case api.ExternTypeTable:
			c.tables = append(c.tables, im.Desc.TableType)
		case api.ExternTypeMemory:
			c.memories = append(c.memories, im.Desc.MemoryType)
		case api.ExternTypeGlobal:
			c.globals = append(c.globals, im.Desc.GlobalType)
		}
	}
	c.tables = append(c.tables, m.Tables...)
	c.memories = append(c.memories, m.Memories...)
	for _, g := range m.Globals {
		c.globals = append(c.globals, g.Type)
	}
	return c
}

func (c *moduleCtx) table(idx uint32) (*wasm.TableType, error) {
	if int(idx) >= len(c.tables) {
		return nil, errf(InvalidIndex, "table index out of range")
	}
	return &c.tables[idx], nil
}

func (c *moduleCtx) memory(idx uint32) (*wasm.MemoryType, error) {
	if int(idx) >= len(c.memories) {
		return nil, errf(NoMemory, "no memory at index")
	}
	return &c.memories[idx], nil
}

func (c *moduleCtx) global(idx uint32) (*wasm.GlobalType, error) {
	if int(idx) >= len(c.globals) {
		return nil, errf(InvalidIndex, "global index out of range")
	}
	return &c.globals[idx], nil
}

func (c *moduleCtx) funcType(idx uint32) (*wasm.FunctionType, error) {
	ft, err := c.m.TypeOf(idx)
	if err != nil {
		return nil, errf(InvalidIndex, "function index out of range")
	}
	return ft, nil
}

// Validate type-checks m in place, returning an error describing the first
// failure, or nil once every function body, constant expression, segment
// and export has been proven well-typed. On success each `block`/`loop`/
// `if` instruction and every branch site in m carries a populated
// VerifiedImm (spec §4.2); an `else` gets none of its own, its position is
// recorded as the ElseOffset of its `if`.
func Validate(m *wasm.Module) error {
	if len(m.Memories)+countImportedMemories(m) > 1 {
		return errf(TooManyMemories, "at most one memory is permitted")
	}
	for _, mem := range m.Memories {
		if err := checkMemoryLimits(mem.Limits); err != nil {
			return err
		}
	}
	for _, tbl := range m.Tables {
		if err := checkTableLimits(tbl.Limits); err != nil {
			return err
		}
	}

	ctx := newModuleCtx(m)

	for i := range m.Globals {
		g := &m.Globals[i]
		if err := validateConstExpr(ctx, g.Init.Body, g.Type.ValType); err != nil {
			return err
		}
	}

	for i := range m.Elements {
		seg := &m.Elements[i]
		for j := range seg.Init {
			if err := validateConstExpr(ctx, seg.Init[j].Body, seg.Type); err != nil {
				return err
			}
		}
		if seg.Mode == wasm.ElementModeActive {
			tbl, err := ctx.table(seg.Table)
			if err != nil {
				return err
			}
			if tbl.ElemType != seg.Type {
				return errf(MismatchedTableInit, "element segment type does not match table")
			}
			if err := validateConstExpr(ctx, seg.Offset.Body, api.ValueTypeI32); err != nil {
				return err
			}
		}
	}

	for i := range m.Data {
		seg := &m.Data[i]
		if seg.Mode == wasm.DataModeActive {
			if _, err := ctx.memory(seg.Memory); err != nil {
				return err
			}
			if err := validateConstExpr(ctx, seg.Offset.Body, api.ValueTypeI32); err != nil {
				return err
			}
		}
	}

	if m.Start != nil {
		ft, err := ctx.funcType(*m.Start)
		if err != nil {
			return err
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return errf(InvalidIndex, "start function must take no parameters and return no results")
		}
	}

	for i := range m.Funcs {
		if err := validateFunction(ctx, m.NumImportedFuncs+uint32(i), &m.Funcs[i]); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	for _, exp := range m.Exports {
		if seen[exp.Name] {
			return errf(DuplicateExportName, exp.Name)
		}
		seen[exp.Name] = true
		switch exp.Kind {
		case api.ExternTypeFunc:
			if exp.Index >= m.NumFuncs() {
				return errf(InvalidIndex, "export func index out of range")
			}
		case api.ExternTypeTable:
			if int(exp.Index) >= len(ctx.tables) {
				return errf(InvalidIndex, "export table index out of range")
			}
		case api.ExternTypeMemory:
			if int(exp.Index) >= len(ctx.memories) {
				return errf(InvalidIndex, "export memory index out of range")
			}
		case api.ExternTypeGlobal:
			if int(exp.Index) >= len(ctx.globals) {
				return errf(InvalidIndex, "export global index out of range")
			}
		}
	}

	return nil
}

func countImportedMemories(m *wasm.Module) int {
	n := 0
	for _, im := range m.Imports {
		if im.Desc.Kind == api.ExternTypeMemory {
			n++
		}
	}
	return n
}

func checkMemoryLimits(l wasm.Limits) error {
	const maxPages = 1 << 16
	if l.Min > maxPages || (l.Max != nil && *l.Max > maxPages) {
		return errf(InvalidAlignment, "memory limits exceed 2^16 pages")
	}
	return nil
}

func checkTableLimits(l wasm.Limits) error {
	if l.Max != nil && *l.Max < l.Min {
		return errf(InvalidAlignment, "table max below min")
	}
	return nil
}

// validateConstExpr checks that body is drawn from the constant-expression
// subset (spec §4.3, GLOSSARY "Constant expression") and leaves exactly one
// value of type want on the stack.
func validateConstExpr(ctx *moduleCtx, body []wasm.Instr, want api.ValueType) error {
	if len(body) == 0 || body[len(body)-1].Op != wasm.OpcodeEnd {
		return errf(ExprNotConst, "constant expression missing end")
	}
	s := newOpStack()
	s.frames = append(s.frames, frame{endTypes: api.ResultType{want}, height: 0})
	for _, in := range body[:len(body)-1] {
		switch in.Op {
		case wasm.OpcodeI32Const:
			s.push(api.ValueTypeI32)
		case wasm.OpcodeI64Const:
			s.push(api.ValueTypeI64)
		case wasm.OpcodeF32Const:
			s.push(api.ValueTypeF32)
		case wasm.OpcodeF64Const:
			s.push(api.ValueTypeF64)
		case wasm.OpcodeRefNull:
			s.push(api.ValueType(in.Index1))
		case wasm.OpcodeRefFunc:
			if !ctx.refSet[in.Index1] {
				return errf(ExprNotConst, "ref.func target not in reference set")
			}
			if in.Index1 >= ctx.m.NumFuncs() {
				return errf(InvalidIndex, "ref.func index out of range")
			}
			s.push(api.ValueTypeFuncref)
		case wasm.OpcodeGlobalGet:
			g, err := ctx.global(in.Index1)
			if err != nil {
				return err
			}
			if g.Mutable || in.Index1 >= ctx.m.NumImportedGlobals {
				return errf(ExprNotConst, "global.get in constant expression must reference an immutable import")
			}
			s.push(g.ValType)
		default:
			return errf(ExprNotConst, "instruction not permitted in a constant expression")
		}
	}
	if err := s.popResultType(api.ResultType{want}, "constant expression result"); err != nil {
		return err
	}
	if s.depth() != 0 {
		return errf(UnexpectedStackDepth, "constant expression leaves extra operands")
	}
	return nil
}

func localType(ft *wasm.FunctionType, fn *wasm.Function, idx uint32) (api.ValueType, error) {
	if int(idx) < len(ft.Params) {
		return ft.Params[idx], nil
	}
	li := int(idx) - len(ft.Params)
	if li < 0 || li >= len(fn.Locals) {
		return 0, errf(InvalidIndex, "local index out of range")
	}
	return fn.Locals[li], nil
}

func validateFunction(ctx *moduleCtx, funcIdx uint32, fn *wasm.Function) error {
	ft, err := ctx.funcType(funcIdx)
	if err != nil {
		return err
	}

	s := newOpStack()
	s.frames = append(s.frames, frame{endTypes: ft.Results, height: 0, instrIndex: -1})

	body := fn.Body
	for ip := 0; ip < len(body); ip++ {
		if err := validateInstr(ctx, ft, fn, s, body, ip, &body[ip]); err != nil {
			return err
		}
	}
	if len(s.frames) != 0 {
		return errf(UnopenedBlock, "function body ends with open blocks")
	}
	return nil
}
