package vm

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Value is the untagged 8-byte runtime cell: exactly one of I, F, or S is
// meaningful at any given stack slot, selected by the parallel types
// array the VM maintains alongside the stack (see DESIGN.md's resolution
// of §4.6's soundness requirement — a type bitmap rather than pointer-
// range sniffing).
type Value struct {
	I int64
	F float64
	S StringRef
}

// VM is the register-less stack interpreter: {bp, sp, pc, code, constants,
// string_pool, marks, max_depth} from §4.5, plus the parallel type array
// that lets GC and diagnostics know each live cell's static type.
type VM struct {
	bp, sp int
	pc     int

	stack []Value
	types []Type

	code      []byte
	constants []string
	pool      *StringPool

	maxDepth int

	in  *bufio.Reader
	out *bufio.Writer
	err io.Writer
}

// NewVM allocates the fixed-size value stack sized to maxDepth (the
// verifier's computed bound) and wires standard streams. The original
// spec calls for a page-aligned allocation of the stack's backing memory;
// Go's slice allocator does not expose alignment control, so the
// alignment guarantee here is conceptual only — sized, not page-aligned
// (see DESIGN.md).
func NewVM(bin *Binary, maxDepth int) *VM {
	return newVM(bin, maxDepth, 0)
}

// NewVMWithInputBuffer is NewVM with an explicit initial capacity for the
// INPUT opcode's line reader, for callers (the `interpret` subcommand's
// `--prealloc`) that know ahead of time roughly how much stdin a program
// will consume and want to avoid bufio's default growth-by-doubling.
func NewVMWithInputBuffer(bin *Binary, maxDepth, inputBufSize int) *VM {
	return newVM(bin, maxDepth, inputBufSize)
}

func newVM(bin *Binary, maxDepth, inputBufSize int) *VM {
	in := bufio.NewReader(os.Stdin)
	if inputBufSize > 0 {
		in = bufio.NewReaderSize(os.Stdin, inputBufSize)
	}
	return &VM{
		stack:     make([]Value, maxDepth),
		types:     make([]Type, maxDepth),
		code:      bin.Code,
		constants: bin.Constants,
		pool:      NewStringPool(),
		maxDepth:  maxDepth,
		in:        in,
		out:       bufio.NewWriter(os.Stdout),
		err:       os.Stderr,
	}
}

func (vm *VM) push(v Value, t Type) error {
	if vm.sp >= len(vm.stack) {
		return errors.Wrap(ErrIllegalInstruction, "stack overflow: sp exceeds max_depth")
	}
	vm.stack[vm.sp] = v
	vm.types[vm.sp] = t
	vm.sp++
	return nil
}

func (vm *VM) pop() (Value, Type, error) {
	if vm.sp <= vm.bp {
		return Value{}, 0, errors.Wrap(ErrIllegalInstruction, "stack underflow: sp below bp")
	}
	vm.sp--
	return vm.stack[vm.sp], vm.types[vm.sp], nil
}

func (vm *VM) pushInt(i int64) error          { return vm.push(Value{I: i}, TypeInt) }
func (vm *VM) pushFloat(f float64) error      { return vm.push(Value{F: f}, TypeFloat) }
func (vm *VM) pushString(ref StringRef) error { return vm.push(Value{S: ref}, TypeString) }

// constRef tags a constant-pool index so it can travel through the same
// StringRef field a pool-backed string uses, without ever allocating a
// pool slot for it. Negative refs name a constant; non-negative refs name
// a string_pool slot. Constant-pool strings live as long as the VM and are
// never visited by gc's mark-sweep pass, matching §4.6.
func constRef(idx int64) StringRef { return StringRef(-idx - 1) }

func isConstRef(ref StringRef) bool { return ref < 0 }

func constIndex(ref StringRef) int64 { return int64(-ref - 1) }

// derefString resolves a String-typed cell's payload, following either the
// read-only constant pool or the mutable string_pool depending on how the
// ref was tagged.
func (vm *VM) derefString(ref StringRef) string {
	if isConstRef(ref) {
		return vm.constants[constIndex(ref)]
	}
	return vm.pool.Get(ref)
}

// pushConstString pushes a reference to constants[idx] directly, without
// copying the string into the string_pool.
func (vm *VM) pushConstString(idx int64) error { return vm.pushString(constRef(idx)) }

// gc runs the mark-sweep pass described in §4.6, consulting the parallel
// types array (rather than pointer address ranges) to find every String-
// typed cell currently live in [bp, sp). Constant-pool references are
// skipped: they lie outside the string_pool's address range and are immune
// to reclamation by construction.
func (vm *VM) gc() {
	roots := make(map[StringRef]bool)
	for i := vm.bp; i < vm.sp; i++ {
		if vm.types[i] == TypeString && !isConstRef(vm.stack[i].S) {
			roots[vm.stack[i].S] = true
		}
	}
	vm.pool.GC(roots)
}

// dump logs a structured snapshot of VM state for the fatal-error handler
// in run.go.
func (vm *VM) dump() {
	log.Error().
		Int("pc", vm.pc).
		Int("bp", vm.bp).
		Int("sp", vm.sp).
		Int("max_depth", vm.maxDepth).
		Msg("vm state dump")
}
