// Package interpreter executes validated WebAssembly code directly against
// wasm.Instr's Verified side table — no separate compiled IR, unlike the
// teacher's wazeroir-based engine. The validator has already computed every
// branch's {arity, drop} pair and every block's end/else offsets, so the
// runtime loop only needs to follow them.
package interpreter

import (
	"fmt"

	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wasmruntime"
)

// maxCallDepth bounds call/call_indirect recursion. Each nested call costs a
// Go stack frame; this catches runaway wasm recursion as a trap rather than
// letting it crash the host with a native stack overflow.
const maxCallDepth = 8192

// ctrlFrame is one entry of the runtime control stack, mirroring the
// validator's frame stack one-to-one: a sentinel {instrIndex: -1} seeds the
// function's own top-level scope, exactly as validateFunction seeds its
// opStack.
type ctrlFrame struct {
	opcode     wasm.Opcode
	instrIndex int
}

// Interpreter is a stateless store.Engine implementation: all execution
// state (operand stack, control stack, locals) lives on the Go call stack
// of runBody/callFunction, so one Interpreter value carries nothing between
// invocations. The store it executes against has no locking of its own.
type Interpreter struct{}

func New() *Interpreter { return &Interpreter{} }

// Execute implements store.Engine.
func (it *Interpreter) Execute(s *store.Store, instance *store.ModuleInstance, locals []uint64, body []wasm.Instr) ([]uint64, error) {
	return runBody(s, instance, locals, body, 0)
}

// Invoke calls the exported function at addr with args, the public entry
// point for driving a module instance from outside the interpreter (linker,
// spectest directives, host code).
func (it *Interpreter) Invoke(s *store.Store, addr store.FuncAddr, args []uint64) ([]uint64, error) {
	fn, err := s.ResolveFunc(addr)
	if err != nil {
		return nil, err
	}
	return callFunction(s, fn, store.ModuleAddr(0), args, 0)
}

func callFunction(s *store.Store, fn *store.FunctionInstance, callerAddr store.ModuleAddr, args []uint64, depth int) ([]uint64, error) {
	if depth > maxCallDepth {
		return nil, wasmruntime.New(wasmruntime.ReasonCallStackExhausted, "")
	}
	if fn.Kind == store.FuncKindHost {
		return fn.Host(s, callerAddr, args)
	}
	owner, err := s.ResolveModule(fn.Module)
	if err != nil {
		return nil, err
	}
	locals := make([]uint64, len(args)+len(fn.Locals))
	copy(locals, args)
	return runBody(s, owner, locals, fn.Body, depth+1)
}

// takeBranch applies brk's {arity, drop} to stack and resolves which frame a
// branch of relative depth l lands on. A target index of 0 — the sentinel
// seeded at the bottom of frames — means the branch targets the function's
// own outermost scope, which is exactly what `return` does too (spec's
// recognized equivalence between `return` and a branch to the outermost
// depth): isReturn reports this case, in which the caller should hand newStack
// straight back as the function's result instead of resuming the loop.
func takeBranch(frames []ctrlFrame, body []wasm.Instr, stack []uint64, brk wasm.BreakImm, l int) (newFrames []ctrlFrame, newStack []uint64, newIP int, isReturn bool) {
	newStack = adjustStack(stack, int(brk.Arity), int(brk.Drop))
	targetIdx := len(frames) - 1 - l
	if targetIdx == 0 {
		return nil, newStack, -1, true
	}
	newFrames = frames[:targetIdx+1]
	target := newFrames[targetIdx]
	if target.opcode == wasm.OpcodeLoop {
		newIP = target.instrIndex + 1
	} else {
		newIP = target.instrIndex + int(body[target.instrIndex].Verified.EndOffset)
	}
	return newFrames, newStack, newIP, false
}

// runBody is the instruction-pointer loop that drives one function body (or
// a synthesized const-expr/segment-init/start-call sequence) to completion.
func runBody(s *store.Store, instance *store.ModuleInstance, locals []uint64, body []wasm.Instr, depth int) ([]uint64, error) {
	var stack []uint64
	frames := []ctrlFrame{{instrIndex: -1}}
	ip := 0

	for ip < len(body) {
		in := &body[ip]
		switch in.Op {
		case wasm.OpcodeUnreachable:
			return nil, wasmruntime.New(wasmruntime.ReasonUnreachable, "")
		case wasm.OpcodeNop:
			ip++

		case wasm.OpcodeBlock, wasm.OpcodeLoop:
			frames = append(frames, ctrlFrame{opcode: in.Op, instrIndex: ip})
			ip++

		case wasm.OpcodeIf:
			cond := popI32(&stack)
			frames = append(frames, ctrlFrame{opcode: wasm.OpcodeIf, instrIndex: ip})
			switch {
			case cond != 0:
				ip++
			case in.Verified.ElseOffset != 0:
				ip += int(in.Verified.ElseOffset) + 1
			default:
				ip += int(in.Verified.EndOffset)
			}

		case wasm.OpcodeElse:
			f := frames[len(frames)-1]
			ip = f.instrIndex + int(body[f.instrIndex].Verified.EndOffset)

		case wasm.OpcodeEnd:
			frames = frames[:len(frames)-1]
			ip++

		case wasm.OpcodeBr:
			nf, ns, nip, isReturn := takeBranch(frames, body, stack, in.Verified.Breaks[0], int(in.Index1))
			if isReturn {
				return ns, nil
			}
			frames, stack, ip = nf, ns, nip

		case wasm.OpcodeBrIf:
			cond := popI32(&stack)
			if cond == 0 {
				ip++
				break
			}
			nf, ns, nip, isReturn := takeBranch(frames, body, stack, in.Verified.Breaks[0], int(in.Index1))
			if isReturn {
				return ns, nil
			}
			frames, stack, ip = nf, ns, nip

		case wasm.OpcodeBrTable:
			idx := popU32(&stack)
			var l uint32
			var brkIdx int
			if int(idx) < len(in.Labels) {
				l = in.Labels[idx]
				brkIdx = int(idx)
			} else {
				l = in.Default
				brkIdx = len(in.Labels)
			}
			nf, ns, nip, isReturn := takeBranch(frames, body, stack, in.Verified.Breaks[brkIdx], int(l))
			if isReturn {
				return ns, nil
			}
			frames, stack, ip = nf, ns, nip

		case wasm.OpcodeReturn:
			brk := in.Verified.Breaks[0]
			return adjustStack(stack, int(brk.Arity), int(brk.Drop)), nil

		case wasm.OpcodeCall:
			fn, err := s.ResolveFunc(instance.FuncAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			args := popN(&stack, len(fn.Type.Params))
			results, err := callFunction(s, fn, instance.Addr, args, depth+1)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)
			ip++

		case wasm.OpcodeCallIndirect:
			tbl, err := s.ResolveTable(instance.TableAddrs[in.Index2])
			if err != nil {
				return nil, err
			}
			idx := popU32(&stack)
			if uint64(idx) >= uint64(len(tbl.Elems)) {
				return nil, wasmruntime.New(wasmruntime.ReasonOutOfBoundsTable, "call_indirect")
			}
			raw := tbl.Elems[idx]
			if raw == 0 {
				return nil, wasmruntime.New(wasmruntime.ReasonIndirectCallNull, "")
			}
			fn, err := s.ResolveFunc(store.FuncAddr(raw))
			if err != nil {
				return nil, err
			}
			want := instance.Module.Types[in.Index1]
			if !fn.Type.Equal(want) {
				return nil, wasmruntime.New(wasmruntime.ReasonIndirectCallTypeMismatch, "")
			}
			args := popN(&stack, len(fn.Type.Params))
			results, err := callFunction(s, fn, instance.Addr, args, depth+1)
			if err != nil {
				return nil, err
			}
			stack = append(stack, results...)
			ip++

		case wasm.OpcodeDrop:
			popU64(&stack)
			ip++

		case wasm.OpcodeSelect, wasm.OpcodeSelectT:
			cond := popI32(&stack)
			b := popU64(&stack)
			a := popU64(&stack)
			if cond != 0 {
				pushU64(&stack, a)
			} else {
				pushU64(&stack, b)
			}
			ip++

		case wasm.OpcodeLocalGet:
			pushU64(&stack, locals[in.Index1])
			ip++
		case wasm.OpcodeLocalSet:
			locals[in.Index1] = popU64(&stack)
			ip++
		case wasm.OpcodeLocalTee:
			locals[in.Index1] = stack[len(stack)-1]
			ip++

		case wasm.OpcodeGlobalGet:
			g, err := s.ResolveGlobal(instance.GlobalAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			pushU64(&stack, g.Value)
			ip++
		case wasm.OpcodeGlobalSet:
			g, err := s.ResolveGlobal(instance.GlobalAddrs[in.Index1])
			if err != nil {
				return nil, err
			}
			g.Value = popU64(&stack)
			ip++

		case wasm.OpcodeI32Const:
			pushI32(&stack, in.I32)
			ip++
		case wasm.OpcodeI64Const:
			pushI64(&stack, in.I64)
			ip++
		case wasm.OpcodeF32Const:
			pushF32(&stack, in.F32)
			ip++
		case wasm.OpcodeF64Const:
			pushF64(&stack, in.F64)
			ip++

		case wasm.OpcodeRefNull:
			pushU64(&stack, 0)
			ip++
		case wasm.OpcodeRefIsNull:
			pushBool(&stack, popU64(&stack) == 0)
			ip++
		case wasm.OpcodeRefFunc:
			pushU64(&stack, uint64(instance.FuncAddrs[in.Index1]))
			ip++

		default:
			if handled, err := execNumeric(in.Op, &stack); handled {
				if err != nil {
					return nil, err
				}
				ip++
				break
			}
			if handled, err := execMemory(in, s, instance, &stack); handled {
				if err != nil {
					return nil, err
				}
				ip++
				break
			}
			if handled, err := execTable(in, s, instance, &stack); handled {
				if err != nil {
					return nil, err
				}
				ip++
				break
			}
			return nil, fmt.Errorf("interpreter: unhandled opcode 0x%x", byte(in.Op))
		}
	}
	return stack, nil
}
