package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

func addModule() *wasm.Module {
	ft := &wasm.FunctionType{Params: api.ResultType{api.ValueTypeI32, api.ValueTypeI32}, Results: api.ResultType{api.ValueTypeI32}}
	return &wasm.Module{
		Version: 1,
		Types:   []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeLocalGet, Index1: 0},
				{Op: wasm.OpcodeLocalGet, Index1: 1},
				{Op: wasm.OpcodeI32Add},
				{Op: wasm.OpcodeEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "add", Kind: api.ExternTypeFunc, Index: 0}},
	}
}

func TestValidate_Add(t *testing.T) {
	m := addModule()
	require.NoError(t, Validate(m))
}

func TestValidate_MismatchedType(t *testing.T) {
	ft := &wasm.FunctionType{Results: api.ResultType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeI32Const, I32: 1},
				{Op: wasm.OpcodeI64Const, I64: 2},
				{Op: wasm.OpcodeI64Add},
				{Op: wasm.OpcodeEnd},
			},
		}},
	}
	err := Validate(m)
	require.Error(t, err)
	var ve *Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, MismatchedType, ve.Kind)
}

func TestValidate_BlockEndOffsetRecorded(t *testing.T) {
	ft := &wasm.FunctionType{}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeBlock, BlockType: wasm.BlockTypeEmpty},
				{Op: wasm.OpcodeNop},
				{Op: wasm.OpcodeEnd},
				{Op: wasm.OpcodeEnd},
			},
		}},
	}
	require.NoError(t, Validate(m))
	require.NotNil(t, m.Funcs[0].Body[0].Verified)
	assert.Equal(t, uint32(2), m.Funcs[0].Body[0].Verified.EndOffset)
}

func TestValidate_IfWithoutElseMustPreserveSignature(t *testing.T) {
	ft := &wasm.FunctionType{}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeI32Const, I32: 1},
				{Op: wasm.OpcodeIf, BlockType: wasm.BlockTypeI32},
				{Op: wasm.OpcodeI32Const, I32: 1},
				{Op: wasm.OpcodeEnd},
				{Op: wasm.OpcodeDrop},
				{Op: wasm.OpcodeEnd},
			},
		}},
	}
	err := Validate(m)
	require.Error(t, err)
	var ve *Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, MissingRequiredElseBlock, ve.Kind)
}

func TestValidate_BrTableArity(t *testing.T) {
	ft := &wasm.FunctionType{Params: api.ResultType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{
			TypeIndex: 0,
			Body: []wasm.Instr{
				{Op: wasm.OpcodeBlock, BlockType: wasm.BlockTypeEmpty},
				{Op: wasm.OpcodeBlock, BlockType: wasm.BlockTypeEmpty},
				{Op: wasm.OpcodeLocalGet, Index1: 0},
				{Op: wasm.OpcodeBrTable, Labels: []uint32{0, 1}, Default: 1},
				{Op: wasm.OpcodeEnd},
				{Op: wasm.OpcodeEnd},
				{Op: wasm.OpcodeEnd},
			},
		}},
	}
	require.NoError(t, Validate(m))
	brTable := &m.Funcs[0].Body[3]
	require.NotNil(t, brTable.Verified)
	require.Len(t, brTable.Verified.Breaks, 3)
}

func TestValidate_DuplicateExportName(t *testing.T) {
	ft := &wasm.FunctionType{}
	m := &wasm.Module{
		Types: []*wasm.FunctionType{ft},
		Funcs: []wasm.Function{{TypeIndex: 0, Body: []wasm.Instr{{Op: wasm.OpcodeEnd}}}},
		Exports: []wasm.Export{
			{Name: "f", Kind: api.ExternTypeFunc, Index: 0},
			{Name: "f", Kind: api.ExternTypeFunc, Index: 0},
		},
	}
	err := Validate(m)
	require.Error(t, err)
	var ve *Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, DuplicateExportName, ve.Kind)
}

func TestValidate_TooManyMemories(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}, {Limits: wasm.Limits{Min: 1}}},
	}
	err := Validate(m)
	require.Error(t, err)
	var ve *Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, TooManyMemories, ve.Kind)
}
