// Package binary decodes the WebAssembly 1.0 binary module format into the
// raw wasm.Module syntax tree (spec §4.1). It performs zero validation
// beyond syntactic well-formedness: it never inspects types, indices, or
// stack discipline — that is the validator's job.
package binary

import (
	"unicode/utf8"

	"github.com/corewasm/corewasm/internal/leb128"
	"github.com/corewasm/corewasm/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

const supportedVersion uint32 = 1

// cursor is a forward-only reader over the module byte slice (or over one
// section or function body within it), tracking only the byte position.
type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) done() bool { return c.pos >= len(c.b) }

func (c *cursor) remaining() int { return len(c.b) - c.pos }

func (c *cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.b) {
		return 0, errEOF
	}
	b := c.b[c.pos]
	c.pos++
	return b, nil
}

var errEOF = decErr(UnexpectedEof, "cursor", errUnexpectedEOF{})

type errUnexpectedEOF struct{}

func (errUnexpectedEOF) Error() string { return "unexpected EOF" }

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, errEOF
	}
	b := c.b[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u32() (uint32, error) {
	v, n, err := leb128.DecodeUint32(c)
	_ = n
	if err != nil {
		return 0, decErr(UnexpectedEof, "varuint32", err)
	}
	return v, nil
}

func (c *cursor) i32() (int32, error) {
	v, _, err := leb128.DecodeInt32(c)
	if err != nil {
		return 0, decErr(UnexpectedEof, "varint32", err)
	}
	return v, nil
}

func (c *cursor) i64() (int64, error) {
	v, _, err := leb128.DecodeInt64(c)
	if err != nil {
		return 0, decErr(UnexpectedEof, "varint64", err)
	}
	return v, nil
}

func (c *cursor) i33AsI64() (int64, error) {
	v, _, err := leb128.DecodeInt33AsInt64(c)
	if err != nil {
		return 0, decErr(UnexpectedEof, "varint33", err)
	}
	return v, nil
}

func (c *cursor) f32() (float32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return float32FromBits(bits), nil
}

func (c *cursor) f64() (float64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return float64FromBits(bits), nil
}

func (c *cursor) name() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	b, err := c.bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", decErr(NonUtfName, "name", nil)
	}
	return string(b), nil
}

func (c *cursor) valueType() (wasm.ValueType, error) {
	b, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeV128, wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return b, nil
	}
	return 0, decErr(InvalidValueType, "value type", nil)
}

func (c *cursor) refType() (wasm.ValueType, error) {
	t, err := c.valueType()
	if err != nil {
		return 0, err
	}
	if t != wasm.ValueTypeFuncref && t != wasm.ValueTypeExternref {
		return 0, decErr(InvalidValueType, "reference type", nil)
	}
	return t, nil
}

func (c *cursor) limits() (wasm.Limits, error) {
	flag, err := c.ReadByte()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := c.u32()
	if err != nil {
		return wasm.Limits{}, err
	}
	switch flag {
	case 0x00:
		return wasm.Limits{Min: min}, nil
	case 0x01:
		max, err := c.u32()
		if err != nil {
			return wasm.Limits{}, err
		}
		if max < min {
			return wasm.Limits{}, decErr(InvalidLimits, "max < min", nil)
		}
		return wasm.Limits{Min: min, Max: &max}, nil
	}
	return wasm.Limits{}, decErr(InvalidLimits, "limits flag", nil)
}

// DecodeModule parses a complete binary module from b.
func DecodeModule(b []byte) (*wasm.Module, error) {
	c := &cursor{b: b}
	magicBytes, err := c.bytes(4)
	if err != nil || [4]byte{magicBytes[0], magicBytes[1], magicBytes[2], magicBytes[3]} != magic {
		return nil, decErr(MagicBytes, "header", nil)
	}
	verBytes, err := c.bytes(4)
	if err != nil {
		return nil, decErr(UnexpectedEof, "version", err)
	}
	version := uint32(verBytes[0]) | uint32(verBytes[1])<<8 | uint32(verBytes[2])<<16 | uint32(verBytes[3])<<24
	if version != supportedVersion {
		return nil, decErr(UnsupportedVersion, "header", nil)
	}

	m := &wasm.Module{Version: version}
	d := &decoder{m: m}

	lastNonCustom := wasm.SectionID(0)
	for !c.done() {
		idByte, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		id := wasm.SectionID(idByte)
		size, err := c.u32()
		if err != nil {
			return nil, err
		}
		body, err := c.bytes(int(size))
		if err != nil {
			return nil, err
		}
		sc := &cursor{b: body}

		switch id {
		case wasm.SectionIDCustom:
			if err := d.decodeCustomSection(sc); err != nil {
				return nil, err
			}
			continue // custom sections may interleave; they don't affect ordering.
		case wasm.SectionIDType:
			err = d.decodeTypeSection(sc)
		case wasm.SectionIDImport:
			err = d.decodeImportSection(sc)
		case wasm.SectionIDFunction:
			err = d.decodeFunctionSection(sc)
		case wasm.SectionIDTable:
			err = d.decodeTableSection(sc)
		case wasm.SectionIDMemory:
			err = d.decodeMemorySection(sc)
		case wasm.SectionIDGlobal:
			err = d.decodeGlobalSection(sc)
		case wasm.SectionIDExport:
			err = d.decodeExportSection(sc)
		case wasm.SectionIDStart:
			err = d.decodeStartSection(sc)
		case wasm.SectionIDElement:
			err = d.decodeElementSection(sc)
		case wasm.SectionIDCode:
			err = d.decodeCodeSection(sc)
		case wasm.SectionIDData:
			err = d.decodeDataSection(sc)
		default:
			return nil, decErr(UnknownSectionId, wasm.SectionIDName(id), nil)
		}
		if err != nil {
			return nil, err
		}
		// Sections (other than custom) must appear at most once, in
		// increasing canonical order.
		if id <= lastNonCustom {
			return nil, decErr(UnknownSectionId, "out of order or duplicate section "+wasm.SectionIDName(id), nil)
		}
		lastNonCustom = id
	}

	m.NumImportedFuncs, m.NumImportedTables, m.NumImportedMemories, m.NumImportedGlobals = countImports(m.Imports)
	if len(d.funcTypeIndices) != len(d.funcBodies) {
		return nil, decErr(UnexpectedEof, "function/code section length mismatch", nil)
	}
	for i, ti := range d.funcTypeIndices {
		m.Funcs = append(m.Funcs, wasm.Function{
			TypeIndex: ti,
			Locals:    d.funcBodies[i].locals,
			Body:      d.funcBodies[i].body,
		})
	}
	return m, nil
}

func countImports(imports []wasm.Import) (funcs, tables, mems, globals uint32) {
	for _, im := range imports {
		switch im.Desc.Kind {
		case 0x00:
			funcs++
		case 0x01:
			tables++
		case 0x02:
			mems++
		case 0x03:
			globals++
		}
	}
	return
}

// decoder accumulates section contents across the single decoding pass;
// function bodies are paired with their signatures only once the whole
// module is seen.
type decoder struct {
	m               *wasm.Module
	funcTypeIndices []uint32
	funcBodies      []funcBody
}

type funcBody struct {
	locals []wasm.ValueType
	body   []wasm.Instr
}

func (d *decoder) decodeCustomSection(c *cursor) error {
	name, err := c.name()
	if err != nil {
		return err
	}
	data := c.b[c.pos:]
	d.m.Customs = append(d.m.Customs, wasm.CustomSection{Name: name, Data: append([]byte(nil), data...)})
	return nil
}

func (d *decoder) decodeTypeSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := c.ReadByte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return decErr(InvalidFuncType, "func type form", nil)
		}
		params, err := d.decodeValueTypeVec(c)
		if err != nil {
			return err
		}
		results, err := d.decodeValueTypeVec(c)
		if err != nil {
			return err
		}
		d.m.Types = append(d.m.Types, &wasm.FunctionType{Params: params, Results: results})
	}
	return nil
}

func (d *decoder) decodeValueTypeVec(c *cursor) ([]wasm.ValueType, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ValueType, n)
	for i := uint32(0); i < n; i++ {
		vt, err := c.valueType()
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

func (d *decoder) decodeImportSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		mod, err := c.name()
		if err != nil {
			return err
		}
		item, err := c.name()
		if err != nil {
			return err
		}
		kind, err := c.ReadByte()
		if err != nil {
			return err
		}
		desc := wasm.ImportDesc{Kind: kind}
		switch kind {
		case 0x00:
			ti, err := c.u32()
			if err != nil {
				return err
			}
			desc.TypeIndex = ti
		case 0x01:
			rt, err := c.refType()
			if err != nil {
				return err
			}
			lim, err := c.limits()
			if err != nil {
				return err
			}
			desc.TableType = wasm.TableType{ElemType: rt, Limits: lim}
		case 0x02:
			lim, err := c.limits()
			if err != nil {
				return err
			}
			desc.MemoryType = wasm.MemoryType{Limits: lim}
		case 0x03:
			vt, err := c.valueType()
			if err != nil {
				return err
			}
			mutByte, err := c.ReadByte()
			if err != nil {
				return err
			}
			desc.GlobalType = wasm.GlobalType{ValType: vt, Mutable: mutByte == 1}
		default:
			return decErr(InvalidFuncType, "import desc kind", nil)
		}
		d.m.Imports = append(d.m.Imports, wasm.Import{Module: mod, Name: item, Desc: desc})
	}
	return nil
}

func (d *decoder) decodeFunctionSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		ti, err := c.u32()
		if err != nil {
			return err
		}
		d.funcTypeIndices = append(d.funcTypeIndices, ti)
	}
	return nil
}

func (d *decoder) decodeTableSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		rt, err := c.refType()
		if err != nil {
			return err
		}
		lim, err := c.limits()
		if err != nil {
			return err
		}
		d.m.Tables = append(d.m.Tables, wasm.TableType{ElemType: rt, Limits: lim})
	}
	return nil
}

func (d *decoder) decodeMemorySection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		lim, err := c.limits()
		if err != nil {
			return err
		}
		d.m.Memories = append(d.m.Memories, wasm.MemoryType{Limits: lim})
	}
	return nil
}

func (d *decoder) decodeGlobalSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		vt, err := c.valueType()
		if err != nil {
			return err
		}
		mutByte, err := c.ReadByte()
		if err != nil {
			return err
		}
		init, err := d.decodeConstExpr(c)
		if err != nil {
			return err
		}
		d.m.Globals = append(d.m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: vt, Mutable: mutByte == 1},
			Init: init,
		})
	}
	return nil
}

func (d *decoder) decodeExportSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := c.name()
		if err != nil {
			return err
		}
		kind, err := c.ReadByte()
		if err != nil {
			return err
		}
		idx, err := c.u32()
		if err != nil {
			return err
		}
		d.m.Exports = append(d.m.Exports, wasm.Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func (d *decoder) decodeStartSection(c *cursor) error {
	idx, err := c.u32()
	if err != nil {
		return err
	}
	d.m.Start = &idx
	return nil
}

func (d *decoder) decodeElementSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flag, err := c.u32()
		if err != nil {
			return err
		}
		seg := wasm.ElementSegment{Type: wasm.ValueTypeFuncref}
		switch flag {
		case 0: // active, table 0, funcref, func-index init list
			off, err := d.decodeConstExpr(c)
			if err != nil {
				return err
			}
			idxs, err := d.decodeU32Vec(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Offset = wasm.ElementModeActive, off
			seg.Init = funcIndicesToConstExprs(idxs)
		case 1: // passive, funcref, func-index init list
			kind, err := c.ReadByte()
			if err != nil {
				return err
			}
			if kind != 0 {
				return decErr(InvalidFuncType, "elemkind", nil)
			}
			idxs, err := d.decodeU32Vec(c)
			if err != nil {
				return err
			}
			seg.Mode = wasm.ElementModePassive
			seg.Init = funcIndicesToConstExprs(idxs)
		case 2: // active, explicit table, funcref, func-index init list
			ti, err := c.u32()
			if err != nil {
				return err
			}
			off, err := d.decodeConstExpr(c)
			if err != nil {
				return err
			}
			kind, err := c.ReadByte()
			if err != nil {
				return err
			}
			if kind != 0 {
				return decErr(InvalidFuncType, "elemkind", nil)
			}
			idxs, err := d.decodeU32Vec(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Table, seg.Offset = wasm.ElementModeActive, ti, off
			seg.Init = funcIndicesToConstExprs(idxs)
		case 3: // declarative, funcref, func-index init list
			kind, err := c.ReadByte()
			if err != nil {
				return err
			}
			if kind != 0 {
				return decErr(InvalidFuncType, "elemkind", nil)
			}
			idxs, err := d.decodeU32Vec(c)
			if err != nil {
				return err
			}
			seg.Mode = wasm.ElementModeDeclarative
			seg.Init = funcIndicesToConstExprs(idxs)
		case 4: // active, table 0, expr init list
			off, err := d.decodeConstExpr(c)
			if err != nil {
				return err
			}
			init, err := d.decodeConstExprVec(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Offset, seg.Init = wasm.ElementModeActive, off, init
		case 5: // passive, explicit reftype, expr init list
			rt, err := c.refType()
			if err != nil {
				return err
			}
			init, err := d.decodeConstExprVec(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Type, seg.Init = wasm.ElementModePassive, rt, init
		case 6: // active, explicit table+reftype, expr init list
			ti, err := c.u32()
			if err != nil {
				return err
			}
			off, err := d.decodeConstExpr(c)
			if err != nil {
				return err
			}
			rt, err := c.refType()
			if err != nil {
				return err
			}
			init, err := d.decodeConstExprVec(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Table, seg.Offset, seg.Type, seg.Init = wasm.ElementModeActive, ti, off, rt, init
		case 7: // declarative, explicit reftype, expr init list
			rt, err := c.refType()
			if err != nil {
				return err
			}
			init, err := d.decodeConstExprVec(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Type, seg.Init = wasm.ElementModeDeclarative, rt, init
		default:
			return decErr(InvalidFuncType, "element segment flag", nil)
		}
		d.m.Elements = append(d.m.Elements, seg)
	}
	return nil
}

func funcIndicesToConstExprs(idxs []uint32) []wasm.ConstExpr {
	out := make([]wasm.ConstExpr, len(idxs))
	for i, fi := range idxs {
		out[i] = wasm.ConstExpr{Body: []wasm.Instr{
			{Op: wasm.OpcodeRefFunc, Index1: fi},
			{Op: wasm.OpcodeEnd},
		}}
	}
	return out
}

func (d *decoder) decodeU32Vec(c *cursor) ([]uint32, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.u32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *decoder) decodeConstExprVec(c *cursor) ([]wasm.ConstExpr, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ConstExpr, n)
	for i := uint32(0); i < n; i++ {
		ce, err := d.decodeConstExpr(c)
		if err != nil {
			return nil, err
		}
		out[i] = ce
	}
	return out, nil
}

func (d *decoder) decodeCodeSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		size, err := c.u32()
		if err != nil {
			return err
		}
		body, err := c.bytes(int(size))
		if err != nil {
			return err
		}
		fc := &cursor{b: body}
		locals, err := d.decodeLocals(fc)
		if err != nil {
			return err
		}
		instrs, err := d.decodeInstructions(fc)
		if err != nil {
			return err
		}
		d.funcBodies = append(d.funcBodies, funcBody{locals: locals, body: instrs})
	}
	return nil
}

func (d *decoder) decodeLocals(c *cursor) ([]wasm.ValueType, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	var out []wasm.ValueType
	for i := uint32(0); i < n; i++ {
		count, err := c.u32()
		if err != nil {
			return nil, err
		}
		vt, err := c.valueType()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			out = append(out, vt)
		}
	}
	return out, nil
}

func (d *decoder) decodeDataSection(c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flag, err := c.u32()
		if err != nil {
			return err
		}
		seg := wasm.DataSegment{}
		switch flag {
		case 0:
			off, err := d.decodeConstExpr(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Offset = wasm.DataModeActive, off
		case 1:
			seg.Mode = wasm.DataModePassive
		case 2:
			mi, err := c.u32()
			if err != nil {
				return err
			}
			off, err := d.decodeConstExpr(c)
			if err != nil {
				return err
			}
			seg.Mode, seg.Memory, seg.Offset = wasm.DataModeActive, mi, off
		default:
			return decErr(InvalidFuncType, "data segment flag", nil)
		}
		n, err := c.u32()
		if err != nil {
			return err
		}
		b, err := c.bytes(int(n))
		if err != nil {
			return err
		}
		seg.Init = append([]byte(nil), b...)
		d.m.Data = append(d.m.Data, seg)
	}
	return nil
}

// decodeConstExpr decodes a constant expression: a restricted instruction
// sequence terminated by `end`. The decoder does not check that only the
// constant subset of opcodes appears — that is the validator's job (spec
// §4.3) — it only decodes whatever instructions are present up to `end`.
func (d *decoder) decodeConstExpr(c *cursor) (wasm.ConstExpr, error) {
	instrs, err := d.decodeInstructions(c)
	if err != nil {
		return wasm.ConstExpr{}, err
	}
	return wasm.ConstExpr{Body: instrs}, nil
}
