package interpreter

import (
	"encoding/binary"

	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wasmruntime"
)

// effectiveAddr combines a load/store's dynamic i32 address operand with its
// static offset immediate as a 64-bit sum so a huge offset can never wrap
// back into bounds (spec §4.6 "ea = i + memarg.offset, without mod 2^32").
func effectiveAddr(addr uint32, offset uint32, width int) (uint64, error) {
	return uint64(addr) + uint64(offset), nil
}

func boundsCheck(mem *store.MemoryInstance, ea uint64, width int) error {
	if ea+uint64(width) > uint64(len(mem.Data)) {
		return wasmruntime.New(wasmruntime.ReasonOutOfBoundsMemory, "")
	}
	return nil
}

// execMemory evaluates one memory instruction (load/store family, size/grow,
// and the bulk memory.* operations) against the active module instance's
// sole memory.
func execMemory(in *wasm.Instr, s *store.Store, instance *store.ModuleInstance, stack *[]uint64) (handled bool, err error) {
	op := in.Op
	memOf := func() (*store.MemoryInstance, error) {
		return s.ResolveMemory(instance.MemAddrs[0])
	}

	load := func(width int) (uint64, error) {
		mem, err := memOf()
		if err != nil {
			return 0, err
		}
		ea, err := effectiveAddr(popU32(stack), in.MemOffset, width)
		if err != nil {
			return 0, err
		}
		if err := boundsCheck(mem, ea, width); err != nil {
			return 0, err
		}
		buf := mem.Data[ea : ea+uint64(width)]
		var v uint64
		switch width {
		case 1:
			v = uint64(buf[0])
		case 2:
			v = uint64(binary.LittleEndian.Uint16(buf))
		case 4:
			v = uint64(binary.LittleEndian.Uint32(buf))
		case 8:
			v = binary.LittleEndian.Uint64(buf)
		}
		return v, nil
	}

	storeBytes := func(width int, v uint64) error {
		mem, err := memOf()
		if err != nil {
			return err
		}
		ea, err := effectiveAddr(popU32(stack), in.MemOffset, width)
		if err != nil {
			return err
		}
		if err := boundsCheck(mem, ea, width); err != nil {
			return err
		}
		buf := mem.Data[ea : ea+uint64(width)]
		switch width {
		case 1:
			buf[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(buf, uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf, uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf, v)
		}
		return nil
	}

	switch op {
	case wasm.OpcodeI32Load:
		v, err := load(4)
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(uint32(v)))
	case wasm.OpcodeI64Load:
		v, err := load(8)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(v))
	case wasm.OpcodeF32Load:
		v, err := load(4)
		if err != nil {
			return true, err
		}
		pushU64(stack, v)
	case wasm.OpcodeF64Load:
		v, err := load(8)
		if err != nil {
			return true, err
		}
		pushU64(stack, v)
	case wasm.OpcodeI32Load8S:
		v, err := load(1)
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(int8(v)))
	case wasm.OpcodeI32Load8U:
		v, err := load(1)
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(uint8(v)))
	case wasm.OpcodeI32Load16S:
		v, err := load(2)
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(int16(v)))
	case wasm.OpcodeI32Load16U:
		v, err := load(2)
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(uint16(v)))
	case wasm.OpcodeI64Load8S:
		v, err := load(1)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(int8(v)))
	case wasm.OpcodeI64Load8U:
		v, err := load(1)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(uint8(v)))
	case wasm.OpcodeI64Load16S:
		v, err := load(2)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(int16(v)))
	case wasm.OpcodeI64Load16U:
		v, err := load(2)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(uint16(v)))
	case wasm.OpcodeI64Load32S:
		v, err := load(4)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(int32(v)))
	case wasm.OpcodeI64Load32U:
		v, err := load(4)
		if err != nil {
			return true, err
		}
		pushI64(stack, int64(uint32(v)))

	case wasm.OpcodeI32Store:
		v := popU64(stack)
		if err := storeBytes(4, v); err != nil {
			return true, err
		}
	case wasm.OpcodeI64Store:
		v := popU64(stack)
		if err := storeBytes(8, v); err != nil {
			return true, err
		}
	case wasm.OpcodeF32Store:
		v := popU64(stack)
		if err := storeBytes(4, v); err != nil {
			return true, err
		}
	case wasm.OpcodeF64Store:
		v := popU64(stack)
		if err := storeBytes(8, v); err != nil {
			return true, err
		}
	case wasm.OpcodeI32Store8:
		v := popU64(stack)
		if err := storeBytes(1, v); err != nil {
			return true, err
		}
	case wasm.OpcodeI32Store16:
		v := popU64(stack)
		if err := storeBytes(2, v); err != nil {
			return true, err
		}
	case wasm.OpcodeI64Store8:
		v := popU64(stack)
		if err := storeBytes(1, v); err != nil {
			return true, err
		}
	case wasm.OpcodeI64Store16:
		v := popU64(stack)
		if err := storeBytes(2, v); err != nil {
			return true, err
		}
	case wasm.OpcodeI64Store32:
		v := popU64(stack)
		if err := storeBytes(4, v); err != nil {
			return true, err
		}

	case wasm.OpcodeMemorySize:
		mem, err := memOf()
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(mem.Pages()))

	case wasm.OpcodeMemoryGrow:
		mem, err := memOf()
		if err != nil {
			return true, err
		}
		delta := popU32(stack)
		old := mem.Pages()
		if mt := mem.Type; mt.Limits.Max != nil && uint64(old)+uint64(delta) > uint64(*mt.Limits.Max) {
			pushI32(stack, -1)
			return true, nil
		}
		const maxMemoryPages = 65536
		if uint64(old)+uint64(delta) > maxMemoryPages {
			pushI32(stack, -1)
			return true, nil
		}
		mem.Data = append(mem.Data, make([]byte, uint64(delta)*store.PageSize)...)
		pushI32(stack, int32(old))

	case wasm.OpcodeMemoryInit:
		n := popU32(stack)
		src := popU32(stack)
		dst := popU32(stack)
		mem, err := memOf()
		if err != nil {
			return true, err
		}
		data, err := s.ResolveData(instance.DataAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		if uint64(src)+uint64(n) > uint64(len(data.Bytes)) || uint64(dst)+uint64(n) > uint64(len(mem.Data)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsMemory, "memory.init")
		}
		copy(mem.Data[dst:uint64(dst)+uint64(n)], data.Bytes[src:uint64(src)+uint64(n)])

	case wasm.OpcodeDataDrop:
		data, err := s.ResolveData(instance.DataAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		data.Bytes = nil

	case wasm.OpcodeMemoryCopy:
		n := popU32(stack)
		src := popU32(stack)
		dst := popU32(stack)
		mem, err := memOf()
		if err != nil {
			return true, err
		}
		if uint64(src)+uint64(n) > uint64(len(mem.Data)) || uint64(dst)+uint64(n) > uint64(len(mem.Data)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsMemory, "memory.copy")
		}
		copy(mem.Data[dst:uint64(dst)+uint64(n)], mem.Data[src:uint64(src)+uint64(n)])

	case wasm.OpcodeMemoryFill:
		n := popU32(stack)
		val := byte(popU32(stack))
		dst := popU32(stack)
		mem, err := memOf()
		if err != nil {
			return true, err
		}
		if uint64(dst)+uint64(n) > uint64(len(mem.Data)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsMemory, "memory.fill")
		}
		buf := mem.Data[dst : uint64(dst)+uint64(n)]
		for i := range buf {
			buf[i] = val
		}

	default:
		return false, nil
	}
	return true, nil
}

// execTable evaluates the table.* family: get/set/size/grow/fill/copy/init
// and elem.drop (reference instructions ref.null/ref.is_null/ref.func are
// handled directly in exec.go since they need no store memory/table access
// beyond the function instance itself).
func execTable(in *wasm.Instr, s *store.Store, instance *store.ModuleInstance, stack *[]uint64) (handled bool, err error) {
	op := in.Op
	switch op {
	case wasm.OpcodeTableGet:
		tbl, err := s.ResolveTable(instance.TableAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		idx := popU32(stack)
		if uint64(idx) >= uint64(len(tbl.Elems)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "table.get")
		}
		pushU64(stack, tbl.Elems[idx])

	case wasm.OpcodeTableSet:
		tbl, err := s.ResolveTable(instance.TableAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		v := popU64(stack)
		idx := popU32(stack)
		if uint64(idx) >= uint64(len(tbl.Elems)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "table.set")
		}
		tbl.Elems[idx] = v

	case wasm.OpcodeTableSize:
		tbl, err := s.ResolveTable(instance.TableAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		pushI32(stack, int32(len(tbl.Elems)))

	case wasm.OpcodeTableGrow:
		tbl, err := s.ResolveTable(instance.TableAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		delta := popU32(stack)
		initVal := popU64(stack)
		old := len(tbl.Elems)
		newLen := uint64(old) + uint64(delta)
		if tbl.Type.Limits.Max != nil && newLen > uint64(*tbl.Type.Limits.Max) {
			pushI32(stack, -1)
			return true, nil
		}
		grown := make([]uint64, newLen)
		copy(grown, tbl.Elems)
		for i := old; i < len(grown); i++ {
			grown[i] = initVal
		}
		tbl.Elems = grown
		pushI32(stack, int32(old))

	case wasm.OpcodeTableFill:
		tbl, err := s.ResolveTable(instance.TableAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		n := popU32(stack)
		val := popU64(stack)
		dst := popU32(stack)
		if uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "table.fill")
		}
		for i := uint64(dst); i < uint64(dst)+uint64(n); i++ {
			tbl.Elems[i] = val
		}

	case wasm.OpcodeTableCopy:
		n := popU32(stack)
		src := popU32(stack)
		dst := popU32(stack)
		if instance.TableAddrs[in.Index1] == instance.TableAddrs[in.Index2] {
			tbl, err := s.ResolveTable(instance.TableAddrs[in.Index1])
			if err != nil {
				return true, err
			}
			if uint64(src)+uint64(n) > uint64(len(tbl.Elems)) || uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
				return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "table.copy")
			}
			copy(tbl.Elems[dst:uint64(dst)+uint64(n)], tbl.Elems[src:uint64(src)+uint64(n)])
			return true, nil
		}
		dstTbl, srcTbl := s.ResolveTablesMut(instance.TableAddrs[in.Index1], instance.TableAddrs[in.Index2])
		if uint64(src)+uint64(n) > uint64(len(srcTbl.Elems)) || uint64(dst)+uint64(n) > uint64(len(dstTbl.Elems)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "table.copy")
		}
		copy(dstTbl.Elems[dst:uint64(dst)+uint64(n)], srcTbl.Elems[src:uint64(src)+uint64(n)])

	case wasm.OpcodeTableInit:
		n := popU32(stack)
		src := popU32(stack)
		dst := popU32(stack)
		tbl, err := s.ResolveTable(instance.TableAddrs[in.Index2])
		if err != nil {
			return true, err
		}
		elem, err := s.ResolveElement(instance.ElemAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		if uint64(src)+uint64(n) > uint64(len(elem.Elems)) || uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
			return true, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "table.init")
		}
		copy(tbl.Elems[dst:uint64(dst)+uint64(n)], elem.Elems[src:uint64(src)+uint64(n)])

	case wasm.OpcodeElemDrop:
		elem, err := s.ResolveElement(instance.ElemAddrs[in.Index1])
		if err != nil {
			return true, err
		}
		elem.Elems = nil

	default:
		return false, nil
	}
	return true, nil
}
