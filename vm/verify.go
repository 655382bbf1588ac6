package vm

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VerifyResult is the verifier's successful output: the maximum and final
// abstract stack depths observed over a linear scan of the code region.
type VerifyResult struct {
	MaxDepth   int
	FinalDepth int
}

// Verify replays code linearly over an abstract type-stack, proving each
// opcode's operands satisfy its arity and type contract and computing the
// maximum runtime stack depth. It does not follow jumps: branches are
// checked as if control simply falls through in byte order, matching the
// documented linear-verifier limitation.
func Verify(code []byte) (*VerifyResult, error) {
	if len(code)%2 != 0 {
		return nil, errors.Wrap(ErrMisalignedCode, "code length is not a multiple of 2")
	}
	var stack []Type
	maxDepth := 0
	pop := func() (Type, error) {
		n := len(stack)
		if n == 0 {
			return 0, errors.Wrap(ErrStackUnderflow, "pop from empty stack")
		}
		t := stack[n-1]
		stack = stack[:n-1]
		return t, nil
	}
	push := func(t Type) {
		stack = append(stack, t)
		if len(stack) > maxDepth {
			maxDepth = len(stack)
		}
	}
	expect := func(t, want Type) error {
		if t != want {
			return errors.Wrapf(ErrOperandTypeMismatch, "expected %s, got %s", want, t)
		}
		return nil
	}

	pc := 0
	for pc < len(code) {
		if pc+2 > len(code) {
			return nil, errors.Wrap(ErrTruncatedImmediate, "opcode truncated")
		}
		op := Bytecode(binary.LittleEndian.Uint16(code[pc : pc+2]))
		pc += 2

		switch op {
		case PushI64:
			if pc+8 > len(code) {
				return nil, errors.Wrap(ErrTruncatedImmediate, "PushI64 immediate")
			}
			pc += 8
			push(TypeInt)
		case PushF64:
			if pc+8 > len(code) {
				return nil, errors.Wrap(ErrTruncatedImmediate, "PushF64 immediate")
			}
			pc += 8
			push(TypeFloat)
		case Drop:
			if _, err := pop(); err != nil {
				return nil, err
			}
		case Load:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeInt); err != nil {
				return nil, err
			}
			push(TypeString)
		case Swap:
			a, err := pop()
			if err != nil {
				return nil, err
			}
			b, err := pop()
			if err != nil {
				return nil, err
			}
			push(a)
			push(b)
		case TRot:
			x, err := pop()
			if err != nil {
				return nil, err
			}
			y, err := pop()
			if err != nil {
				return nil, err
			}
			z, err := pop()
			if err != nil {
				return nil, err
			}
			push(y)
			push(x)
			push(z)
		case Dup, DDup, TDup:
			depth := map[Bytecode]int{Dup: 1, DDup: 2, TDup: 3}[op]
			if len(stack) < depth {
				return nil, errors.Wrapf(ErrStackUnderflow, "%s needs depth %d", op, depth)
			}
			push(stack[len(stack)-depth])
		case J:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeInt); err != nil {
				return nil, err
			}
		case Jnz, Jz:
			addr, err := pop()
			if err != nil {
				return nil, err
			}
			cond, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(addr, TypeInt); err != nil {
				return nil, err
			}
			if err := expect(cond, TypeInt); err != nil {
				return nil, err
			}
		case NumconvI64:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeFloat); err != nil {
				return nil, err
			}
			push(TypeInt)
		case NumconvF64:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeInt); err != nil {
				return nil, err
			}
			push(TypeFloat)
		case Abort:
			// no stack effect
		case Exit:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeInt); err != nil {
				return nil, err
			}
		case Panic:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeString); err != nil {
				return nil, err
			}
		case Println:
			// no stack effect
		case Input:
			push(TypeString)
		case Gc:
			// no stack effect
		case PrintI64:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeInt); err != nil {
				return nil, err
			}
		case PrintF64:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeFloat); err != nil {
				return nil, err
			}
		case PrintStr:
			t, err := pop()
			if err != nil {
				return nil, err
			}
			if err := expect(t, TypeString); err != nil {
				return nil, err
			}
		case AddI64, SubI64, MulI64, DivI64:
			if err := verifyBinary(pop, push, TypeInt); err != nil {
				return nil, err
			}
		case AddF64, SubF64, MulF64, DivF64:
			if err := verifyBinary(pop, push, TypeFloat); err != nil {
				return nil, err
			}
		case AddStr:
			if err := verifyBinary(pop, push, TypeString); err != nil {
				return nil, err
			}
		case EqI64, LtI64, GtI64, LeI64, GeI64:
			if err := verifyComparison(pop, push, TypeInt); err != nil {
				return nil, err
			}
		case EqF64, LtF64, GtF64, LeF64, GeF64:
			if err := verifyComparison(pop, push, TypeFloat); err != nil {
				return nil, err
			}
		case EqStr:
			if err := verifyComparison(pop, push, TypeString); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Wrapf(ErrUnknownOpcode, "0x%04x at pc=%d", uint16(op), pc-2)
		}
	}

	res := &VerifyResult{MaxDepth: maxDepth, FinalDepth: len(stack)}
	log.Debug().Int("max_depth", res.MaxDepth).Int("final_depth", res.FinalDepth).Msg("verification complete")
	return res, nil
}

func verifyBinary(pop func() (Type, error), push func(Type), want Type) error {
	x, err := pop()
	if err != nil {
		return err
	}
	y, err := pop()
	if err != nil {
		return err
	}
	if x != want || y != want {
		return errors.Wrapf(ErrOperandTypeMismatch, "expected (%s, %s), got (%s, %s)", want, want, y, x)
	}
	push(want)
	return nil
}

func verifyComparison(pop func() (Type, error), push func(Type), want Type) error {
	x, err := pop()
	if err != nil {
		return err
	}
	y, err := pop()
	if err != nil {
		return err
	}
	if x != want || y != want {
		return errors.Wrapf(ErrOperandTypeMismatch, "expected (%s, %s), got (%s, %s)", want, want, y, x)
	}
	push(TypeInt)
	return nil
}
