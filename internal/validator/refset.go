package validator

import "github.com/corewasm/corewasm/internal/wasm"

// computeRefSet computes the set of function indices reachable from constant
// contexts (global initializers, element segment initializers and active
// offsets, active data offsets), plus every exported function and the start
// function (spec §4.3's `ref.func` rule). `ref.func f` is only valid when f
// is a member of this set, since otherwise a function could escape as a
// first-class value without ever being recorded as "referenced" by the
// module (a requirement upstream engines use to decide which functions need
// call-indirect-safe trampolines).
func computeRefSet(m *wasm.Module) map[uint32]bool {
	refs := map[uint32]bool{}
	mark := func(body []wasm.Instr) {
		for _, in := range body {
			if in.Op == wasm.OpcodeRefFunc {
				refs[in.Index1] = true
			}
		}
	}
	for _, g := range m.Globals {
		mark(g.Init.Body)
	}
	for _, seg := range m.Elements {
		for _, init := range seg.Init {
			mark(init.Body)
		}
		if seg.Mode == wasm.ElementModeActive {
			mark(seg.Offset.Body)
		}
	}
	for _, seg := range m.Data {
		if seg.Mode == wasm.DataModeActive {
			mark(seg.Offset.Body)
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == 0x00 { // api.ExternTypeFunc
			refs[exp.Index] = true
		}
	}
	if m.Start != nil {
		refs[*m.Start] = true
	}
	return refs
}
