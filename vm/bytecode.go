package vm

/*
	Roth bytecode is 16-bit little-endian, partitioned into a family (the high
	nibble of the high byte) and a type suffix (the low nibble of the high
	byte): 0x0 untyped, 0x1 Int, 0x2 Float, 0x3 String. Families:

		0x0xxx  memory/control  (drop, load, swap, dup, jump, push, numconv)
		0x1xxx  system          (abort, exit, panic, println, input, gc, print)
		0x2xxx  arithmetic      (add, sub, mul, div)
		0x3xxx  comparison      (eq, lt, gt, le, ge)

	Most instructions are nullary. PUSH_I64/PUSH_F64 carry an 8-byte immediate
	that follows the opcode inline in the code stream; every other operand,
	including jump targets, lives on the runtime stack.

	The exact opcode values below are carried over from the original Roth
	compiler's bytecode table (see DESIGN.md) rather than invented here, so
	that a hand-assembled .bin produced against that table round-trips through
	this package unchanged. The one exception is GC (0x1005), which that table
	has no value for and which is assigned here.
*/

// Type is an abstract value type: what the compiler's type-stack tracks and
// what the verifier proves about every live cell.
type Type byte

const (
	TypeInt    Type = 0x01
	TypeFloat  Type = 0x02
	TypeString Type = 0x03
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	default:
		return "?unknown-type?"
	}
}

// Bytecode is a 16-bit opcode.
type Bytecode uint16

const (
	flagInt    uint16 = uint16(TypeInt) << 8
	flagFloat  uint16 = uint16(TypeFloat) << 8
	flagString uint16 = uint16(TypeString) << 8
)

const (
	Drop Bytecode = 0x0000
	Load Bytecode = 0x0001
	Swap Bytecode = 0x0002
	Dup  Bytecode = 0x0003
	J    Bytecode = 0x0004
	Jnz  Bytecode = 0x0005
	Jz   Bytecode = 0x0006
	TRot Bytecode = 0x0007

	pushFamily    Bytecode = 0x0008
	numconvFamily Bytecode = 0x0009

	PushI64 Bytecode = pushFamily | Bytecode(flagInt)
	PushF64 Bytecode = pushFamily | Bytecode(flagFloat)

	NumconvI64 Bytecode = numconvFamily | Bytecode(flagInt)
	NumconvF64 Bytecode = numconvFamily | Bytecode(flagFloat)

	DDup Bytecode = 0x000A
	TDup Bytecode = 0x000B
)

const (
	Abort   Bytecode = 0x1000
	Exit    Bytecode = 0x1001
	Panic   Bytecode = 0x1002
	Println Bytecode = 0x1003
	Input   Bytecode = 0x1004
	Gc      Bytecode = 0x1005

	printFamily Bytecode = 0x1008

	PrintI64 Bytecode = printFamily | Bytecode(flagInt)
	PrintF64 Bytecode = printFamily | Bytecode(flagFloat)
	PrintStr Bytecode = printFamily | Bytecode(flagString)
)

const (
	addFamily Bytecode = 0x2000
	subFamily Bytecode = 0x2001
	mulFamily Bytecode = 0x2002
	divFamily Bytecode = 0x2003

	AddI64 Bytecode = addFamily | Bytecode(flagInt)
	SubI64 Bytecode = subFamily | Bytecode(flagInt)
	MulI64 Bytecode = mulFamily | Bytecode(flagInt)
	DivI64 Bytecode = divFamily | Bytecode(flagInt)

	AddF64 Bytecode = addFamily | Bytecode(flagFloat)
	SubF64 Bytecode = subFamily | Bytecode(flagFloat)
	MulF64 Bytecode = mulFamily | Bytecode(flagFloat)
	DivF64 Bytecode = divFamily | Bytecode(flagFloat)

	AddStr Bytecode = addFamily | Bytecode(flagString)
)

const (
	eqFamily Bytecode = 0x3000
	ltFamily Bytecode = 0x3001
	gtFamily Bytecode = 0x3002
	leFamily Bytecode = 0x3003
	geFamily Bytecode = 0x3004

	EqI64 Bytecode = eqFamily | Bytecode(flagInt)
	LtI64 Bytecode = ltFamily | Bytecode(flagInt)
	GtI64 Bytecode = gtFamily | Bytecode(flagInt)
	LeI64 Bytecode = leFamily | Bytecode(flagInt)
	GeI64 Bytecode = geFamily | Bytecode(flagInt)

	EqF64 Bytecode = eqFamily | Bytecode(flagFloat)
	LtF64 Bytecode = ltFamily | Bytecode(flagFloat)
	GtF64 Bytecode = gtFamily | Bytecode(flagFloat)
	LeF64 Bytecode = leFamily | Bytecode(flagFloat)
	GeF64 Bytecode = geFamily | Bytecode(flagFloat)

	EqStr Bytecode = eqFamily | Bytecode(flagString)
)

var bytecodeNames = map[Bytecode]string{
	Drop: "DROP", Load: "LOAD", Swap: "SWAP", Dup: "DUP",
	J: "J", Jnz: "JNZ", Jz: "JZ", TRot: "TROT",
	PushI64: "PUSH_I64", PushF64: "PUSH_F64",
	NumconvI64: "NUMCONV_I64", NumconvF64: "NUMCONV_F64",
	DDup: "DDUP", TDup: "TDUP",

	Abort: "ABORT", Exit: "EXIT", Panic: "PANIC", Println: "PRINTLN",
	Input: "INPUT", Gc: "GC",
	PrintI64: "PRINT_I64", PrintF64: "PRINT_F64", PrintStr: "PRINT_STR",

	AddI64: "ADD_I64", SubI64: "SUB_I64", MulI64: "MUL_I64", DivI64: "DIV_I64",
	AddF64: "ADD_F64", SubF64: "SUB_F64", MulF64: "MUL_F64", DivF64: "DIV_F64",
	AddStr: "ADD_STR",

	EqI64: "EQ_I64", LtI64: "LT_I64", GtI64: "GT_I64", LeI64: "LE_I64", GeI64: "GE_I64",
	EqF64: "EQ_F64", LtF64: "LT_F64", GtF64: "GT_F64", LeF64: "LE_F64", GeF64: "GE_F64",
	EqStr: "EQ_STR",
}

// String renders an opcode for diagnostics and VM dumps.
func (b Bytecode) String() string {
	if s, ok := bytecodeNames[b]; ok {
		return s
	}
	return "?unknown-opcode?"
}

// HasImmediate reports whether this opcode is followed by an inline 8-byte
// immediate in the code stream (PUSH_I64/PUSH_F64 only).
func (b Bytecode) HasImmediate() bool {
	return b == PushI64 || b == PushF64
}
