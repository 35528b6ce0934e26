package corewasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm"
	"github.com/corewasm/corewasm/api"
)

// constModuleBytes encodes:
//
//	(module
//	  (type (func (result i32)))
//	  (func (export "const42") (result i32) i32.const 42))
var constModuleBytes = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,

	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,

	0x07, 0x0b, 0x01,
	0x07, 'c', 'o', 'n', 's', 't', '4', '2',
	0x00, 0x00,

	0x0a, 0x06, 0x01,
	0x04, 0x00, 0x41, 0x2a, 0x0b,
}

func TestRuntime_InstantiateAndInvoke(t *testing.T) {
	rt := corewasm.NewRuntime(nil)

	m, err := rt.DecodeModule(constModuleBytes)
	require.NoError(t, err)

	mod, err := rt.InstantiateModule("root", m)
	require.NoError(t, err)

	ft, err := mod.FuncType("const42")
	require.NoError(t, err)
	require.Equal(t, api.ResultType{api.ValueTypeI32}, ft.Results)

	results, err := mod.Invoke("const42")
	require.NoError(t, err)
	assert.Equal(t, int32(42), int32(uint32(results[0])))
}

func TestRuntime_InvokeUnknownExport(t *testing.T) {
	rt := corewasm.NewRuntime(nil)

	m, err := rt.DecodeModule(constModuleBytes)
	require.NoError(t, err)
	mod, err := rt.InstantiateModule("", m)
	require.NoError(t, err)

	_, err = mod.Invoke("nope")
	assert.Error(t, err)
}
