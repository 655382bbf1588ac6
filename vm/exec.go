package vm

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Step fetches, decodes, and executes exactly one instruction, advancing
// pc. It returns a non-nil error when the VM must stop: either one of the
// fatal sentinels in errors.go, or *ExitError / *PanicError signalling a
// program-requested termination that the caller (run.go) handles without
// a VM-state dump.
func (vm *VM) Step() error {
	if vm.pc < 0 || vm.pc+2 > len(vm.code) {
		return errors.Wrap(ErrIllegalInstruction, "pc outside code region")
	}
	op := Bytecode(binary.LittleEndian.Uint16(vm.code[vm.pc : vm.pc+2]))
	vm.pc += 2

	log.Debug().Int("pc", vm.pc-2).Stringer("op", op).Int("sp", vm.sp).Msg("exec")

	switch op {
	case PushI64:
		if vm.pc+8 > len(vm.code) {
			return errors.Wrap(ErrIllegalInstruction, "truncated PushI64 immediate")
		}
		v := int64(binary.LittleEndian.Uint64(vm.code[vm.pc : vm.pc+8]))
		vm.pc += 8
		return vm.pushInt(v)
	case PushF64:
		if vm.pc+8 > len(vm.code) {
			return errors.Wrap(ErrIllegalInstruction, "truncated PushF64 immediate")
		}
		bits := binary.LittleEndian.Uint64(vm.code[vm.pc : vm.pc+8])
		vm.pc += 8
		return vm.pushFloat(math.Float64frombits(bits))

	case Drop:
		_, _, err := vm.pop()
		return err

	case Load:
		idx, _, err := vm.pop()
		if err != nil {
			return err
		}
		if idx.I < 0 || idx.I >= int64(len(vm.constants)) {
			return errors.Wrapf(ErrInvalidConstant, "index %d out of range [0,%d)", idx.I, len(vm.constants))
		}
		return vm.pushConstString(idx.I)

	case Swap:
		a, ta, err := vm.pop()
		if err != nil {
			return err
		}
		b, tb, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.push(a, ta); err != nil {
			return err
		}
		return vm.push(b, tb)

	case TRot:
		x, tx, err := vm.pop()
		if err != nil {
			return err
		}
		y, ty, err := vm.pop()
		if err != nil {
			return err
		}
		z, tz, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.push(y, ty); err != nil {
			return err
		}
		if err := vm.push(x, tx); err != nil {
			return err
		}
		return vm.push(z, tz)

	case Dup, DDup, TDup:
		depth := map[Bytecode]int{Dup: 1, DDup: 2, TDup: 3}[op]
		idx := vm.sp - depth
		if idx < vm.bp {
			return errors.Wrapf(ErrIllegalInstruction, "%s below bp", op)
		}
		return vm.push(vm.stack[idx], vm.types[idx])

	case J:
		addr, _, err := vm.pop()
		if err != nil {
			return err
		}
		vm.pc = int(addr.I)
		return nil

	case Jnz, Jz:
		addr, _, err := vm.pop()
		if err != nil {
			return err
		}
		cond, _, err := vm.pop()
		if err != nil {
			return err
		}
		taken := (op == Jnz && cond.I != 0) || (op == Jz && cond.I == 0)
		if taken {
			vm.pc = int(addr.I)
		}
		return nil

	case NumconvI64:
		v, _, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.pushInt(int64(v.F))
	case NumconvF64:
		v, _, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.pushFloat(float64(v.I))

	case Abort:
		return ErrAbort

	case Exit:
		code, _, err := vm.pop()
		if err != nil {
			return err
		}
		vm.flush()
		return &ExitError{Code: code.I}

	case Panic:
		msg, _, err := vm.pop()
		if err != nil {
			return err
		}
		vm.flush()
		return &PanicError{Message: vm.derefString(msg.S)}

	case Println:
		vm.out.WriteByte('\n')
		vm.flush()
		return nil

	case Input:
		line, err := vm.in.ReadString('\n')
		if err != nil && line == "" {
			line = ""
		}
		line = stripLineEnding(line)
		ref := vm.pool.Intern(line)
		return vm.pushString(ref)

	case Gc:
		vm.gc()
		return nil

	case PrintI64:
		v, _, err := vm.pop()
		if err != nil {
			return err
		}
		vm.out.WriteString(strconv.FormatInt(v.I, 10))
		vm.flush()
		return nil
	case PrintF64:
		v, _, err := vm.pop()
		if err != nil {
			return err
		}
		vm.out.WriteString(strconv.FormatFloat(v.F, 'g', -1, 64))
		vm.flush()
		return nil
	case PrintStr:
		v, _, err := vm.pop()
		if err != nil {
			return err
		}
		vm.out.WriteString(vm.derefString(v.S))
		vm.flush()
		return nil

	case AddI64, SubI64, MulI64, DivI64:
		return vm.execIntBinary(op)
	case AddF64, SubF64, MulF64, DivF64:
		return vm.execFloatBinary(op)
	case AddStr:
		return vm.execAddStr()

	case EqI64, LtI64, GtI64, LeI64, GeI64:
		return vm.execIntCompare(op)
	case EqF64, LtF64, GtF64, LeF64, GeF64:
		return vm.execFloatCompare(op)
	case EqStr:
		return vm.execStrCompare()
	}

	return errors.Wrapf(ErrIllegalInstruction, "unknown opcode 0x%04x", uint16(op))
}

// flush writes buffered stdout so PRINT*/PRINTLN observe line-level
// ordering with the rest of the process, per §5's resource policy.
func (vm *VM) flush() { vm.out.Flush() }

func stripLineEnding(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

// execIntBinary pops x (top, right operand) then y (left operand) and
// pushes y OP x: SUB/DIV are left-biased per §4.1/VE-3.
func (vm *VM) execIntBinary(op Bytecode) error {
	x, _, err := vm.pop()
	if err != nil {
		return err
	}
	y, _, err := vm.pop()
	if err != nil {
		return err
	}
	var result int64
	switch op {
	case AddI64:
		result = y.I + x.I
	case SubI64:
		result = y.I - x.I
	case MulI64:
		result = y.I * x.I
	case DivI64:
		if x.I == 0 {
			return errors.Wrap(ErrDivisionByZero, "DIV_I64")
		}
		result = y.I / x.I
	}
	return vm.pushInt(result)
}

func (vm *VM) execFloatBinary(op Bytecode) error {
	x, _, err := vm.pop()
	if err != nil {
		return err
	}
	y, _, err := vm.pop()
	if err != nil {
		return err
	}
	var result float64
	switch op {
	case AddF64:
		result = y.F + x.F
	case SubF64:
		result = y.F - x.F
	case MulF64:
		result = y.F * x.F
	case DivF64:
		result = y.F / x.F
	}
	return vm.pushFloat(result)
}

// execAddStr concatenates y ++ x (left operand first), allocating a fresh
// pool entry, per §4.5/VE-4.
func (vm *VM) execAddStr() error {
	x, _, err := vm.pop()
	if err != nil {
		return err
	}
	y, _, err := vm.pop()
	if err != nil {
		return err
	}
	ref := vm.pool.Intern(vm.derefString(y.S) + vm.derefString(x.S))
	return vm.pushString(ref)
}

func (vm *VM) execIntCompare(op Bytecode) error {
	x, _, err := vm.pop()
	if err != nil {
		return err
	}
	y, _, err := vm.pop()
	if err != nil {
		return err
	}
	var result bool
	switch op {
	case EqI64:
		result = y.I == x.I
	case LtI64:
		result = y.I < x.I
	case GtI64:
		result = y.I > x.I
	case LeI64:
		result = y.I <= x.I
	case GeI64:
		result = y.I >= x.I
	}
	return vm.pushInt(boolToInt(result))
}

func (vm *VM) execFloatCompare(op Bytecode) error {
	x, _, err := vm.pop()
	if err != nil {
		return err
	}
	y, _, err := vm.pop()
	if err != nil {
		return err
	}
	var result bool
	switch op {
	case EqF64:
		result = y.F == x.F
	case LtF64:
		result = y.F < x.F
	case GtF64:
		result = y.F > x.F
	case LeF64:
		result = y.F <= x.F
	case GeF64:
		result = y.F >= x.F
	}
	return vm.pushInt(boolToInt(result))
}

func (vm *VM) execStrCompare() error {
	x, _, err := vm.pop()
	if err != nil {
		return err
	}
	y, _, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.pushInt(boolToInt(vm.derefString(y.S) == vm.derefString(x.S)))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
