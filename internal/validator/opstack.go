package validator

import (
	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// unknownType is the sentinel marking a stack-polymorphic ("MaybeUntyped")
// slot: one produced below an unreachable point, which unifies with any
// expected type (spec §4.3, §9 Open Question on unknown-type propagation).
// It is disjoint from every real api.ValueType constant (all nonzero in the
// 0x6f-0x7f range), so zero is safe to reuse here.
const unknownType api.ValueType = 0x00

// frame is one entry of the validator's label stack: an open block/loop/if,
// or the implicit outermost function frame (opcode 0).
type frame struct {
	opcode      wasm.Opcode // the block/loop/if that opened this frame, or 0 for the function frame
	startTypes  api.ResultType
	endTypes    api.ResultType
	height      int // operand stack height at frame entry; pops below this are errors (or return Unknown if unreachable)
	unreachable bool
	instrIndex  int // index of the opening instruction in the function body, for side-table writes
	elseSeen    bool
}

// labelTypes returns the types a branch targeting this frame must carry:
// a loop branches to its start (so its *input* types), anything else
// branches to its end (so its *output* types).
func (f *frame) labelTypes() api.ResultType {
	if f.opcode == wasm.OpcodeLoop {
		return f.startTypes
	}
	return f.endTypes
}

// opStack is the operand-type stack threaded through one function body's
// validation. It is not reused across functions.
type opStack struct {
	vals   []api.ValueType
	frames []frame
}

func newOpStack() *opStack {
	return &opStack{}
}

func (s *opStack) cur() *frame { return &s.frames[len(s.frames)-1] }

func (s *opStack) pushFrame(opcode wasm.Opcode, in, out api.ResultType, instrIndex int) {
	s.frames = append(s.frames, frame{
		opcode:     opcode,
		startTypes: in,
		endTypes:   out,
		height:     len(s.vals),
		instrIndex: instrIndex,
	})
	for _, t := range in {
		s.push(t)
	}
}

func (s *opStack) popFrame() (frame, error) {
	f := *s.cur()
	if err := s.popResultType(f.endTypes, "end of block"); err != nil {
		return frame{}, err
	}
	if len(s.vals) != f.height {
		return frame{}, errf(UnexpectedStackDepth, "block leaves extra operands on the stack")
	}
	s.frames = s.frames[:len(s.frames)-1]
	return f, nil
}

func (s *opStack) push(t api.ValueType) { s.vals = append(s.vals, t) }

func (s *opStack) pushResultType(rt api.ResultType) {
	for _, t := range rt {
		s.push(t)
	}
}

// popChecked pops one operand, enforcing the current frame's height floor;
// below it (only legal once the frame is marked unreachable) it yields the
// unknown-type token instead of underflowing.
func (s *opStack) popChecked() (api.ValueType, error) {
	f := s.cur()
	if len(s.vals) == f.height {
		if f.unreachable {
			return unknownType, nil
		}
		return unknownType, errf(UnexpectedStackDepth, "pop below block entry height")
	}
	if len(s.vals) < f.height {
		return unknownType, errf(UnexpectedStackDepth, "stack underflow")
	}
	t := s.vals[len(s.vals)-1]
	s.vals = s.vals[:len(s.vals)-1]
	return t, nil
}

// pop pops and requires the operand to match expected (or be unknown).
func (s *opStack) pop(expected api.ValueType, context string) error {
	got, err := s.popChecked()
	if err != nil {
		return err
	}
	if got == unknownType || expected == unknownType {
		return nil
	}
	if got != expected {
		return errType(context, api.ValueTypeName(expected), api.ValueTypeName(got))
	}
	return nil
}

// popResultType pops a whole result type, in reverse (last value first).
func (s *opStack) popResultType(rt api.ResultType, context string) error {
	for i := len(rt) - 1; i >= 0; i-- {
		if err := s.pop(rt[i], context); err != nil {
			return err
		}
	}
	return nil
}

// popAny pops and returns whatever operand is present, for parametric
// polymorphic instructions (drop, untyped select).
func (s *opStack) popAny() (api.ValueType, error) {
	return s.popChecked()
}

// popNumOrVec requires the popped operand to be numeric (select's
// implicit operand-class check; v128 counts as "vec" and is accepted here
// too since the core doesn't distinguish vector arithmetic from numeric
// stacking).
func (s *opStack) popNumOrVec(context string) (api.ValueType, error) {
	t, err := s.popChecked()
	if err != nil {
		return unknownType, err
	}
	if t == unknownType || api.IsNumType(t) || t == api.ValueTypeV128 {
		return t, nil
	}
	return unknownType, errType(context, "num or vec", api.ValueTypeName(t))
}

// popRefType requires the popped operand to be a reference type.
func (s *opStack) popRefType(context string) (api.ValueType, error) {
	t, err := s.popChecked()
	if err != nil {
		return unknownType, err
	}
	if t == unknownType || api.IsRefType(t) {
		return t, nil
	}
	return unknownType, errType(context, "ref type", api.ValueTypeName(t))
}

// depth is the current operand stack height, used to compute break drop.
func (s *opStack) depth() int { return len(s.vals) }

// setUnreachable truncates the stack to the current frame's height and
// marks it polymorphic: every subsequent pop until the matching `end`
// succeeds with the unknown-type token (spec §4.3, §9).
func (s *opStack) setUnreachable() {
	f := s.cur()
	s.vals = s.vals[:f.height]
	f.unreachable = true
}

func (s *opStack) unOp(t api.ValueType) error {
	if err := s.pop(t, "unop operand"); err != nil {
		return err
	}
	s.push(t)
	return nil
}

func (s *opStack) binOp(t api.ValueType) error {
	if err := s.pop(t, "binop rhs"); err != nil {
		return err
	}
	if err := s.pop(t, "binop lhs"); err != nil {
		return err
	}
	s.push(t)
	return nil
}

func (s *opStack) testOp(t api.ValueType) error {
	if err := s.pop(t, "testop operand"); err != nil {
		return err
	}
	s.push(api.ValueTypeI32)
	return nil
}

func (s *opStack) relOp(t api.ValueType) error {
	if err := s.pop(t, "relop rhs"); err != nil {
		return err
	}
	if err := s.pop(t, "relop lhs"); err != nil {
		return err
	}
	s.push(api.ValueTypeI32)
	return nil
}

func (s *opStack) cvtOp(from, to api.ValueType) error {
	if err := s.pop(from, "cvtop operand"); err != nil {
		return err
	}
	s.push(to)
	return nil
}

// labelInfo resolves a De Bruijn branch depth to its target frame and the
// result type a branch to it must carry.
func (s *opStack) labelInfo(l int) (*frame, api.ResultType, error) {
	if l < 0 || l >= len(s.frames) {
		return nil, nil, errf(InvalidIndex, "branch depth out of range")
	}
	f := &s.frames[len(s.frames)-1-l]
	return f, f.labelTypes(), nil
}

func breakImmFor(target *frame, types api.ResultType, curDepth int) wasm.BreakImm {
	drop := curDepth - len(types) - target.height
	if drop < 0 {
		drop = 0
	}
	return wasm.BreakImm{Arity: uint32(len(types)), Drop: uint32(drop)}
}
