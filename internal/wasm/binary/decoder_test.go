package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/internal/leb128"
	"github.com/corewasm/corewasm/internal/wasm"
)

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func section(id wasm.SectionID, body []byte) []byte {
	out := []byte{byte(id)}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	return append(out, body...)
}

func vec(n int) []byte { return leb128.EncodeUint32(uint32(n)) }

func TestDecodeModule_EmptyModule(t *testing.T) {
	m, err := DecodeModule(header())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), m.Version)
	assert.Empty(t, m.Types)
	assert.Empty(t, m.Funcs)
}

func TestDecodeModule_BadMagic(t *testing.T) {
	b := append([]byte{0x00, 0x61, 0x73, 0x6e}, header()[4:]...)
	_, err := DecodeModule(b)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, MagicBytes, de.Kind)
}

func TestDecodeModule_BadVersion(t *testing.T) {
	b := append([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00})
	_, err := DecodeModule(b)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, UnsupportedVersion, de.Kind)
}

func TestDecodeModule_TypeSection(t *testing.T) {
	// one func type: (i32, i64) -> (f32)
	body := vec(1)
	body = append(body, 0x60)
	body = append(body, vec(2)...)
	body = append(body, wasm.ValueTypeI32, wasm.ValueTypeI64)
	body = append(body, vec(1)...)
	body = append(body, wasm.ValueTypeF32)

	b := append(header(), section(wasm.SectionIDType, body)...)
	m, err := DecodeModule(b)
	require.NoError(t, err)
	require.Len(t, m.Types, 1)
	assert.Equal(t, []byte{wasm.ValueTypeI32, wasm.ValueTypeI64}, []byte(m.Types[0].Params))
	assert.Equal(t, []byte{wasm.ValueTypeF32}, []byte(m.Types[0].Results))
}

func TestDecodeModule_FunctionAndCodeSection(t *testing.T) {
	typeBody := vec(1)
	typeBody = append(typeBody, 0x60)
	typeBody = append(typeBody, vec(0)...)
	typeBody = append(typeBody, vec(0)...)

	funcBody := vec(1)
	funcBody = append(funcBody, leb128.EncodeUint32(0)...)

	// code: no locals, body: i32.const 42, end
	instrBody := []byte{}
	instrBody = append(instrBody, vec(0)...) // 0 local groups
	instrBody = append(instrBody, byte(wasm.OpcodeI32Const))
	instrBody = append(instrBody, leb128.EncodeInt32(42)...)
	instrBody = append(instrBody, byte(wasm.OpcodeEnd))

	codeBody := vec(1)
	codeBody = append(codeBody, leb128.EncodeUint32(uint32(len(instrBody)))...)
	codeBody = append(codeBody, instrBody...)

	b := header()
	b = append(b, section(wasm.SectionIDType, typeBody)...)
	b = append(b, section(wasm.SectionIDFunction, funcBody)...)
	b = append(b, section(wasm.SectionIDCode, codeBody)...)

	m, err := DecodeModule(b)
	require.NoError(t, err)
	require.Len(t, m.Funcs, 1)
	require.Len(t, m.Funcs[0].Body, 2)
	assert.Equal(t, wasm.OpcodeI32Const, m.Funcs[0].Body[0].Op)
	assert.Equal(t, int32(42), m.Funcs[0].Body[0].I32)
	assert.Equal(t, wasm.OpcodeEnd, m.Funcs[0].Body[1].Op)
}

func TestDecodeModule_OutOfOrderSections(t *testing.T) {
	typeBody := vec(0)
	b := header()
	b = append(b, section(wasm.SectionIDFunction, typeBody)...)
	b = append(b, section(wasm.SectionIDType, typeBody)...)

	_, err := DecodeModule(b)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, UnknownSectionId, de.Kind)
}

func TestDecodeModule_CustomSectionInterleaves(t *testing.T) {
	custom := []byte{}
	custom = append(custom, vec(4)...)
	custom = append(custom, []byte("name")...)
	custom = append(custom, []byte{0xde, 0xad}...)

	b := header()
	b = append(b, section(wasm.SectionIDCustom, custom)...)
	b = append(b, section(wasm.SectionIDType, vec(0))...)
	b = append(b, section(wasm.SectionIDCustom, custom)...)

	m, err := DecodeModule(b)
	require.NoError(t, err)
	require.Len(t, m.Customs, 2)
	assert.Equal(t, "name", m.Customs[0].Name)
}

func TestDecodeModule_NonUtfName(t *testing.T) {
	importBody := vec(1)
	importBody = append(importBody, vec(2)...)
	importBody = append(importBody, []byte{0xff, 0xfe}...)
	importBody = append(importBody, vec(1)...)
	importBody = append(importBody, []byte("x")...)
	importBody = append(importBody, 0x00)
	importBody = append(importBody, leb128.EncodeUint32(0)...)

	b := append(header(), section(wasm.SectionIDImport, importBody)...)
	_, err := DecodeModule(b)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, NonUtfName, de.Kind)
}

func TestDecodeModule_BlockNesting(t *testing.T) {
	typeBody := vec(1)
	typeBody = append(typeBody, 0x60)
	typeBody = append(typeBody, vec(0)...)
	typeBody = append(typeBody, vec(0)...)

	funcBody := vec(1)
	funcBody = append(funcBody, leb128.EncodeUint32(0)...)

	instrBody := []byte{}
	instrBody = append(instrBody, vec(0)...)
	instrBody = append(instrBody, byte(wasm.OpcodeBlock), 0x40) // empty block type
	instrBody = append(instrBody, byte(wasm.OpcodeNop))
	instrBody = append(instrBody, byte(wasm.OpcodeEnd)) // closes block
	instrBody = append(instrBody, byte(wasm.OpcodeEnd)) // closes function

	codeBody := vec(1)
	codeBody = append(codeBody, leb128.EncodeUint32(uint32(len(instrBody)))...)
	codeBody = append(codeBody, instrBody...)

	b := header()
	b = append(b, section(wasm.SectionIDType, typeBody)...)
	b = append(b, section(wasm.SectionIDFunction, funcBody)...)
	b = append(b, section(wasm.SectionIDCode, codeBody)...)

	m, err := DecodeModule(b)
	require.NoError(t, err)
	require.Len(t, m.Funcs[0].Body, 4)
	assert.Equal(t, wasm.OpcodeBlock, m.Funcs[0].Body[0].Op)
	assert.Equal(t, wasm.BlockTypeEmpty, m.Funcs[0].Body[0].BlockType)
	assert.Equal(t, wasm.OpcodeNop, m.Funcs[0].Body[1].Op)
	assert.Equal(t, wasm.OpcodeEnd, m.Funcs[0].Body[2].Op)
	assert.Equal(t, wasm.OpcodeEnd, m.Funcs[0].Body[3].Op)
}
