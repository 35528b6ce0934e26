// Package wastdriver drives the core engine through a sequence of
// semblance-wast-style directives (spec §6.4): module, register, invoke,
// assert_return, assert_trap, assert_invalid, assert_malformed, and
// assert_unlinkable. It consumes only the linker and store invoke
// contract, and — unlike a real `.wast` test runner — never parses the
// text format: each Module directive already carries pre-decoded binary
// module bytes (the core's own scope per spec §1 stops at the binary
// format).
package wastdriver

import (
	"fmt"
	"strings"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/linker"
	"github.com/corewasm/corewasm/internal/observ"
	"github.com/corewasm/corewasm/internal/store"
	"github.com/corewasm/corewasm/internal/validator"
	"github.com/corewasm/corewasm/internal/wasm/binary"
	"github.com/corewasm/corewasm/internal/wasmruntime"
)

// Kind discriminates one directive's intent.
type Kind int

const (
	KindModule Kind = iota
	KindRegister
	KindInvoke
	KindAssertReturn
	KindAssertTrap
	KindAssertInvalid
	KindAssertMalformed
	KindAssertUnlinkable
)

// Directive is one line of a `.wast`-style script, already reduced to the
// fields the driver needs — a real frontend would produce these from
// parsed text; the driver itself only ever sees this struct.
type Directive struct {
	Kind Kind

	// Bytes carries the pre-decoded binary module for Module,
	// AssertInvalid, AssertMalformed, and AssertUnlinkable.
	Bytes []byte

	// ID optionally names the module a Module directive defines, for later
	// Register/Invoke/AssertReturn/AssertTrap directives to target by id.
	// Empty means "the most recently defined module".
	ID string

	// As is Register's target import-visible name (the string a later
	// module's `(import "As" ...)` will resolve against).
	As string

	// Func, Args name the exported function and argument values an
	// Invoke/AssertReturn/AssertTrap directive calls.
	Func string
	Args []uint64

	// Expect is AssertReturn's expected result.
	Expect api.DynamicResult

	// TrapSubstring, if non-empty, is required to appear in AssertTrap's
	// resulting trap message.
	TrapSubstring string
}

// Engine is what the driver needs from a concrete execution engine: the
// store.Engine contract Instantiate depends on, plus a way to actually call
// an exported function. *interpreter.Interpreter satisfies this without
// any explicit declaration on its side.
type Engine interface {
	store.Engine
	Invoke(s *store.Store, addr store.FuncAddr, args []uint64) ([]uint64, error)
}

// Result is one directive's outcome: Err is nil exactly when the directive
// behaved as its kind requires (a plain Module instantiated cleanly, an
// AssertTrap's invoke did trap, an AssertInvalid's module did fail
// validation, and so on) — so a failing AssertInvalid (one whose module
// validates successfully) is reported via a non-nil Err same as any other
// failure.
type Result struct {
	Directive Directive
	Err       error
}

// Driver runs a Directive sequence against one Store, tracking named
// modules by ID (for Invoke/Register targeting) separately from the
// Linker's import-visible bindings (which only Register populates).
type Driver struct {
	store   *store.Store
	engine  Engine
	linker  *linker.Linker
	log     *observ.Logger
	byID    map[string]*store.ModuleInstance
	current *store.ModuleInstance
}

func New(s *store.Store, engine Engine, l *linker.Linker, log *observ.Logger) *Driver {
	return &Driver{store: s, engine: engine, linker: l, log: log, byID: map[string]*store.ModuleInstance{}}
}

// Run executes every directive in order, stopping at the first one whose
// outcome doesn't match its kind's expectation (a Result with a non-nil
// Err), and returns every Result produced up to and including that one.
func (d *Driver) Run(directives []Directive) []Result {
	results := make([]Result, 0, len(directives))
	for _, dir := range directives {
		err := d.exec(dir)
		results = append(results, Result{Directive: dir, Err: err})
		if err != nil {
			break
		}
	}
	return results
}

func (d *Driver) exec(dir Directive) error {
	switch dir.Kind {
	case KindModule:
		return d.execModule(dir)
	case KindRegister:
		return d.execRegister(dir)
	case KindInvoke:
		_, err := d.invoke(dir)
		return err
	case KindAssertReturn:
		return d.execAssertReturn(dir)
	case KindAssertTrap:
		return d.execAssertTrap(dir)
	case KindAssertInvalid:
		return d.execAssertInvalid(dir)
	case KindAssertMalformed:
		return d.execAssertMalformed(dir)
	case KindAssertUnlinkable:
		return d.execAssertUnlinkable(dir)
	default:
		return fmt.Errorf("wastdriver: unknown directive kind %d", dir.Kind)
	}
}

func (d *Driver) execModule(dir Directive) error {
	m, err := binary.DecodeModule(dir.Bytes)
	if err != nil {
		return fmt.Errorf("wastdriver: decode: %w", err)
	}
	if err := validator.Validate(m); err != nil {
		return fmt.Errorf("wastdriver: validate: %w", err)
	}
	externvals, err := d.linker.Resolve(m)
	if err != nil {
		return fmt.Errorf("wastdriver: resolve imports: %w", err)
	}
	inst, err := d.store.Instantiate(m, externvals, d.engine)
	if err != nil {
		return fmt.Errorf("wastdriver: instantiate: %w", err)
	}
	d.log.Instantiate(dir.ID)
	d.current = inst
	if dir.ID != "" {
		d.byID[dir.ID] = inst
	}
	return nil
}

func (d *Driver) execRegister(dir Directive) error {
	target, err := d.resolveTarget(dir.ID)
	if err != nil {
		return err
	}
	d.linker.Bind(dir.As, target)
	return nil
}

func (d *Driver) resolveTarget(id string) (*store.ModuleInstance, error) {
	if id == "" {
		if d.current == nil {
			return nil, fmt.Errorf("wastdriver: no current module")
		}
		return d.current, nil
	}
	inst, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("wastdriver: no module registered under id %q", id)
	}
	return inst, nil
}

func (d *Driver) invoke(dir Directive) ([]uint64, error) {
	target, err := d.resolveTarget(dir.ID)
	if err != nil {
		return nil, err
	}
	exp, ok := target.Export(dir.Func)
	if !ok {
		return nil, fmt.Errorf("wastdriver: no export %q", dir.Func)
	}
	d.log.Call(dir.ID, dir.Func)
	return d.engine.Invoke(d.store, store.FuncAddr(exp.Addr), dir.Args)
}

func (d *Driver) execAssertReturn(dir Directive) error {
	values, err := d.invoke(dir)
	if err != nil {
		return fmt.Errorf("wastdriver: assert_return: unexpected error: %w", err)
	}
	got := api.DynamicResult{Type: dir.Expect.Type, Values: values}
	if !got.Equal(dir.Expect) {
		return fmt.Errorf("wastdriver: assert_return: got %v, want %v", values, dir.Expect.Values)
	}
	return nil
}

func (d *Driver) execAssertTrap(dir Directive) error {
	_, err := d.invoke(dir)
	if err == nil {
		return fmt.Errorf("wastdriver: assert_trap: expected a trap, got success")
	}
	if !wasmruntime.IsTrap(err) {
		return fmt.Errorf("wastdriver: assert_trap: expected a trap, got: %w", err)
	}
	d.log.Trap(err.Error())
	if dir.TrapSubstring != "" && !strings.Contains(err.Error(), dir.TrapSubstring) {
		return fmt.Errorf("wastdriver: assert_trap: trap %q does not contain %q", err.Error(), dir.TrapSubstring)
	}
	return nil
}

func (d *Driver) execAssertInvalid(dir Directive) error {
	m, err := binary.DecodeModule(dir.Bytes)
	if err != nil {
		return nil // malformed at decode time also satisfies "not a valid module"
	}
	if err := validator.Validate(m); err == nil {
		return fmt.Errorf("wastdriver: assert_invalid: module validated successfully")
	}
	return nil
}

func (d *Driver) execAssertMalformed(dir Directive) error {
	if _, err := binary.DecodeModule(dir.Bytes); err == nil {
		return fmt.Errorf("wastdriver: assert_malformed: module decoded successfully")
	}
	return nil
}

func (d *Driver) execAssertUnlinkable(dir Directive) error {
	m, err := binary.DecodeModule(dir.Bytes)
	if err != nil {
		return fmt.Errorf("wastdriver: assert_unlinkable: decode: %w", err)
	}
	if err := validator.Validate(m); err != nil {
		return fmt.Errorf("wastdriver: assert_unlinkable: validate: %w", err)
	}
	externvals, err := d.linker.Resolve(m)
	if err == nil {
		if _, err := d.store.Instantiate(m, externvals, d.engine); err == nil {
			return fmt.Errorf("wastdriver: assert_unlinkable: module instantiated successfully")
		}
	}
	return nil
}

