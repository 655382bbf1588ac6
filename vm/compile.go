package vm

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PreBinary is the compiler's output: an ordered constant pool and an
// ordered instruction list, not yet serialized to the wire format.
type PreBinary struct {
	Constants    []string
	Instructions []Instruction
}

// Instruction is a decoded (or not-yet-encoded) bytecode instruction. Most
// opcodes carry no immediate; PUSH_I64/PUSH_F64 do.
type Instruction struct {
	Op   Bytecode
	IArg int64
	FArg float64
}

// byteSize reports how many bytes this instruction occupies in the code
// region: 2 for a bare opcode, 10 for one with an inline 8-byte immediate.
func (in Instruction) byteSize() int64 {
	if in.Op.HasImmediate() {
		return 10
	}
	return 2
}

type fixup struct {
	insnIndex int
	label     string
}

// compiler holds the running state the compile pass threads through the
// token loop: the abstract type-stack, the byte-offset counter, the label
// table, and the deferred fixup list.
type compiler struct {
	verify    bool
	typeStack []Type
	byteIndex int64
	labels    map[string]int64
	fixups    []fixup
	pre       PreBinary
	constIdx  map[string]int
}

// CompileOptions controls how Compile behaves.
type CompileOptions struct {
	// Verify, when true, rejects %int/%float/%str/%drop escape-hatch
	// tokens at compile time (FeatureRequiresNoVerify).
	Verify bool
}

// Compile runs the lexer and the single-pass type-stack compiler over
// Roth source text, producing a PreBinary. Labels are resolved in a
// post-pass once the full token stream has been consumed.
func Compile(src string, opts CompileOptions) (*PreBinary, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return CompileTokens(tokens, opts)
}

// CompileTokens compiles an already-lexed token stream. Exposed
// separately so ExpandMacros can run its desugaring pass on tokens
// before the type-stack compiler sees them.
func CompileTokens(tokens []Token, opts CompileOptions) (*PreBinary, error) {
	c := &compiler{
		verify:   opts.Verify,
		labels:   make(map[string]int64),
		constIdx: make(map[string]int),
	}
	for _, tok := range tokens {
		if err := c.emit(tok); err != nil {
			return nil, err
		}
	}
	if err := c.resolveFixups(); err != nil {
		return nil, err
	}
	log.Debug().Int("instructions", len(c.pre.Instructions)).Int("constants", len(c.pre.Constants)).Msg("compile complete")
	return &c.pre, nil
}

func (c *compiler) push(t Type) { c.typeStack = append(c.typeStack, t) }

func (c *compiler) pop() (Type, error) {
	n := len(c.typeStack)
	if n == 0 {
		return 0, errors.Wrap(ErrInvalidStackForOp, "pop from empty type-stack")
	}
	t := c.typeStack[n-1]
	c.typeStack = c.typeStack[:n-1]
	return t, nil
}

func (c *compiler) peekAt(depth int) (Type, error) {
	n := len(c.typeStack)
	if depth < 1 || depth > n {
		return 0, errors.Wrapf(ErrInvalidStackForOp, "depth %d exceeds stack size %d", depth, n)
	}
	return c.typeStack[n-depth], nil
}

func (c *compiler) emitInsn(in Instruction) {
	c.pre.Instructions = append(c.pre.Instructions, in)
	c.byteIndex += in.byteSize()
}

func (c *compiler) internConstant(s string) int {
	if idx, ok := c.constIdx[s]; ok {
		return idx
	}
	idx := len(c.pre.Constants)
	c.pre.Constants = append(c.pre.Constants, s)
	c.constIdx[s] = idx
	return idx
}

// emit type-checks, updates the type-stack, and emits code for one token,
// mirroring the original compiler's per-token match arms.
func (c *compiler) emit(tok Token) error {
	switch tok.Kind {
	case TokInt:
		c.emitInsn(Instruction{Op: PushI64, IArg: tok.Int})
		c.push(TypeInt)
		return nil
	case TokFloat:
		c.emitInsn(Instruction{Op: PushF64, FArg: tok.Float})
		c.push(TypeFloat)
		return nil
	case TokString:
		idx := c.internConstant(tok.Text)
		c.emitInsn(Instruction{Op: PushI64, IArg: int64(idx)})
		c.emitInsn(Instruction{Op: Load})
		c.push(TypeString)
		return nil
	case TokLabel:
		c.labels[tok.Text] = c.byteIndex
		return nil
	case TokAt:
		idx := len(c.pre.Instructions)
		c.emitInsn(Instruction{Op: PushI64, IArg: -1})
		c.fixups = append(c.fixups, fixup{insnIndex: idx, label: tok.Text})
		c.emitInsn(Instruction{Op: J})
		return nil
	case TokAmp:
		idx := len(c.pre.Instructions)
		c.emitInsn(Instruction{Op: PushI64, IArg: -1})
		c.fixups = append(c.fixups, fixup{insnIndex: idx, label: tok.Text})
		c.push(TypeInt)
		return nil
	case TokWord:
		return c.emitWord(tok)
	}
	return errors.Wrapf(ErrUnknownToken, "unhandled token kind %d", tok.Kind)
}

func (c *compiler) emitWord(tok Token) error {
	switch tok.Text {
	case "+", "-", "*", "/", "=", "<", ">", "<=", ">=":
		return c.emitOperator(tok.Text)
	case "drop":
		_, err := c.pop()
		if err != nil {
			return err
		}
		c.emitInsn(Instruction{Op: Drop})
		return nil
	case "load":
		t, err := c.pop()
		if err != nil {
			return err
		}
		if t != TypeInt {
			return errors.Wrapf(ErrTypeMismatch, "load requires Int, got %s", t)
		}
		c.emitInsn(Instruction{Op: Load})
		c.push(TypeString)
		return nil
	case "swap":
		a, err := c.pop()
		if err != nil {
			return err
		}
		b, err := c.pop()
		if err != nil {
			return err
		}
		c.push(a)
		c.push(b)
		c.emitInsn(Instruction{Op: Swap})
		return nil
	case "dup", "dDup", "tDup":
		return c.emitDup(tok.Text)
	case "tRot":
		x, err := c.pop()
		if err != nil {
			return err
		}
		y, err := c.pop()
		if err != nil {
			return err
		}
		z, err := c.pop()
		if err != nil {
			return err
		}
		c.push(y)
		c.push(x)
		c.push(z)
		c.emitInsn(Instruction{Op: TRot})
		return nil
	case "jump", "call":
		t, err := c.pop()
		if err != nil {
			return err
		}
		if t != TypeInt {
			return errors.Wrapf(ErrTypeMismatch, "%s requires Int address, got %s", tok.Text, t)
		}
		c.emitInsn(Instruction{Op: J})
		return nil
	case "if", "!if":
		return c.emitBranch(tok.Text)
	case "abort":
		c.emitInsn(Instruction{Op: Abort})
		return nil
	case "exit":
		t, err := c.pop()
		if err != nil {
			return err
		}
		if t != TypeInt {
			return errors.Wrapf(ErrTypeMismatch, "exit requires Int, got %s", t)
		}
		c.emitInsn(Instruction{Op: Exit})
		return nil
	case "panic":
		t, err := c.pop()
		if err != nil {
			return err
		}
		if t != TypeString {
			return errors.Wrapf(ErrTypeMismatch, "panic requires String, got %s", t)
		}
		c.emitInsn(Instruction{Op: Panic})
		return nil
	case "ln":
		c.emitInsn(Instruction{Op: Println})
		return nil
	case "input":
		c.emitInsn(Instruction{Op: Input})
		c.push(TypeString)
		return nil
	case "gc":
		c.emitInsn(Instruction{Op: Gc})
		return nil
	case "print":
		t, err := c.pop()
		if err != nil {
			return err
		}
		switch t {
		case TypeInt:
			c.emitInsn(Instruction{Op: PrintI64})
		case TypeFloat:
			c.emitInsn(Instruction{Op: PrintF64})
		case TypeString:
			c.emitInsn(Instruction{Op: PrintStr})
		}
		return nil
	case "~int":
		t, err := c.pop()
		if err != nil {
			return err
		}
		if t != TypeFloat {
			return errors.Wrapf(ErrTypeMismatch, "~int requires Float, got %s", t)
		}
		c.emitInsn(Instruction{Op: NumconvI64})
		c.push(TypeInt)
		return nil
	case "~float":
		t, err := c.pop()
		if err != nil {
			return err
		}
		if t != TypeInt {
			return errors.Wrapf(ErrTypeMismatch, "~float requires Int, got %s", t)
		}
		c.emitInsn(Instruction{Op: NumconvF64})
		c.push(TypeFloat)
		return nil
	case "%int", "%float", "%str", "%drop":
		return c.emitEscapeHatch(tok.Text)
	}
	return errors.Wrapf(ErrUnknownToken, "unhandled reserved word %q", tok.Text)
}

func (c *compiler) emitDup(word string) error {
	depth := 1
	switch word {
	case "dDup":
		depth = 2
	case "tDup":
		depth = 3
	}
	t, err := c.peekAt(depth)
	if err != nil {
		return err
	}
	c.push(t)
	switch word {
	case "dup":
		c.emitInsn(Instruction{Op: Dup})
	case "dDup":
		c.emitInsn(Instruction{Op: DDup})
	case "tDup":
		c.emitInsn(Instruction{Op: TDup})
	}
	return nil
}

func (c *compiler) emitBranch(word string) error {
	addr, err := c.pop()
	if err != nil {
		return err
	}
	cond, err := c.pop()
	if err != nil {
		return err
	}
	if addr != TypeInt || cond != TypeInt {
		return errors.Wrapf(ErrTypeMismatch, "%s requires (Int, Int), got (%s, %s)", word, cond, addr)
	}
	if word == "if" {
		c.emitInsn(Instruction{Op: Jnz})
	} else {
		c.emitInsn(Instruction{Op: Jz})
	}
	return nil
}

func (c *compiler) emitOperator(op string) error {
	x, err := c.pop()
	if err != nil {
		return err
	}
	y, err := c.pop()
	if err != nil {
		return err
	}
	if x != y {
		return errors.Wrapf(ErrTypeMismatch, "%s requires equal types, got %s and %s", op, y, x)
	}
	t := x
	isComparison := op == "<" || op == ">" || op == "<=" || op == ">="
	if t == TypeString && (op == "-" || op == "*" || op == "/" || isComparison) {
		return errors.Wrapf(ErrTypeMismatch, "%s does not accept String operands", op)
	}
	var bc Bytecode
	switch {
	case op == "+" && t == TypeInt:
		bc = AddI64
	case op == "+" && t == TypeFloat:
		bc = AddF64
	case op == "+" && t == TypeString:
		bc = AddStr
	case op == "-" && t == TypeInt:
		bc = SubI64
	case op == "-" && t == TypeFloat:
		bc = SubF64
	case op == "*" && t == TypeInt:
		bc = MulI64
	case op == "*" && t == TypeFloat:
		bc = MulF64
	case op == "/" && t == TypeInt:
		bc = DivI64
	case op == "/" && t == TypeFloat:
		bc = DivF64
	case op == "=" && t == TypeInt:
		bc = EqI64
	case op == "=" && t == TypeFloat:
		bc = EqF64
	case op == "=" && t == TypeString:
		bc = EqStr
	case op == "<" && t == TypeInt:
		bc = LtI64
	case op == "<" && t == TypeFloat:
		bc = LtF64
	case op == ">" && t == TypeInt:
		bc = GtI64
	case op == ">" && t == TypeFloat:
		bc = GtF64
	case op == "<=" && t == TypeInt:
		bc = LeI64
	case op == "<=" && t == TypeFloat:
		bc = LeF64
	case op == ">=" && t == TypeInt:
		bc = GeI64
	case op == ">=" && t == TypeFloat:
		bc = GeF64
	default:
		return errors.Wrapf(ErrTypeMismatch, "unsupported %s on %s", op, t)
	}
	c.emitInsn(Instruction{Op: bc})
	if isComparison || op == "=" {
		c.push(TypeInt)
	} else {
		c.push(t)
	}
	return nil
}

func (c *compiler) emitEscapeHatch(word string) error {
	if c.verify {
		return errors.Wrapf(ErrFeatureRequiresNoVerify, "%q", word)
	}
	switch word {
	case "%int":
		c.push(TypeInt)
	case "%float":
		c.push(TypeFloat)
	case "%str":
		c.push(TypeString)
	case "%drop":
		if _, err := c.pop(); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) resolveFixups() error {
	for _, fx := range c.fixups {
		addr, ok := c.labels[fx.label]
		if !ok {
			return errors.Wrapf(ErrUnknownLabel, "%q", fx.label)
		}
		c.pre.Instructions[fx.insnIndex].IArg = addr
	}
	return nil
}
