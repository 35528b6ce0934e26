package wastdriver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/interpreter"
	"github.com/corewasm/corewasm/internal/linker"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/wastdriver"
)

// constModuleBytes is the binary encoding of:
//
//	(module
//	  (type (func (result i32)))
//	  (func (export "const42") (result i32) i32.const 42))
var constModuleBytes = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version

	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type section: (func (result i32))
	0x03, 0x02, 0x01, 0x00, // function section: func 0 has type 0

	0x07, 0x0b, 0x01, // export section: 1 export
	0x07, 'c', 'o', 'n', 's', 't', '4', '2', // name "const42"
	0x00, 0x00, // kind=func, index=0

	0x0a, 0x06, 0x01, // code section: 1 body
	0x04, 0x00, 0x41, 0x2a, 0x0b, // size=4, 0 locals, i32.const 42, end
}

// invalidModuleBytes declares a function typed to return i32 but whose body
// leaves nothing on the stack — valid binary encoding, invalid by typing.
var invalidModuleBytes = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,

	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,

	0x0a, 0x04, 0x01,
	0x02, 0x00, 0x0b, // size=2, 0 locals, end (no result pushed)
}

var malformedBytes = []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}

func newDriver(t *testing.T) *wastdriver.Driver {
	t.Helper()
	s := store.New()
	it := interpreter.New()
	l := linker.New(it)
	return wastdriver.New(s, it, l, nil)
}

func TestDriver_ModuleInvokeAssertReturn(t *testing.T) {
	d := newDriver(t)

	results := d.Run([]wastdriver.Directive{
		{Kind: wastdriver.KindModule, Bytes: constModuleBytes},
		{Kind: wastdriver.KindAssertReturn, Func: "const42", Expect: api.DynamicResult{
			Type:   api.ResultType{api.ValueTypeI32},
			Values: []uint64{api.EncodeI32(42)},
		}},
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestDriver_AssertReturnMismatchFails(t *testing.T) {
	d := newDriver(t)

	results := d.Run([]wastdriver.Directive{
		{Kind: wastdriver.KindModule, Bytes: constModuleBytes},
		{Kind: wastdriver.KindAssertReturn, Func: "const42", Expect: api.DynamicResult{
			Type:   api.ResultType{api.ValueTypeI32},
			Values: []uint64{api.EncodeI32(999)},
		}},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestDriver_AssertInvalid(t *testing.T) {
	d := newDriver(t)

	results := d.Run([]wastdriver.Directive{
		{Kind: wastdriver.KindAssertInvalid, Bytes: invalidModuleBytes},
	})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDriver_AssertMalformed(t *testing.T) {
	d := newDriver(t)

	results := d.Run([]wastdriver.Directive{
		{Kind: wastdriver.KindAssertMalformed, Bytes: malformedBytes},
	})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDriver_AssertUnlinkable(t *testing.T) {
	d := newDriver(t)

	// Same module but now exporting nothing depends on an import that was
	// never registered — build a tiny importer module inline.
	importerBytes := []byte{
		0x00, 0x61, 0x73, 0x6d,
		0x01, 0x00, 0x00, 0x00,

		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type 0: (func (result i32))
		0x02, 0x0a, 0x01, // import section: 1 import
		0x03, 'e', 'n', 'v', // module "env"
		0x02, 'f', 'n', // name "fn"
		0x00, 0x00, // kind=func, type index 0
	}

	results := d.Run([]wastdriver.Directive{
		{Kind: wastdriver.KindAssertUnlinkable, Bytes: importerBytes},
	})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDriver_RegisterAndInvokeByID(t *testing.T) {
	d := newDriver(t)

	results := d.Run([]wastdriver.Directive{
		{Kind: wastdriver.KindModule, ID: "provider", Bytes: constModuleBytes},
		{Kind: wastdriver.KindRegister, ID: "provider", As: "provider"},
		{Kind: wastdriver.KindInvoke, ID: "provider", Func: "const42"},
	})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}
