package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytecodeStringKnownOpcodes(t *testing.T) {
	assert.Equal(t, "ADD_I64", AddI64.String())
	assert.Equal(t, "DROP", Drop.String())
	assert.Equal(t, "PUSH_I64", PushI64.String())
	assert.Equal(t, "PUSH_F64", PushF64.String())
	assert.Equal(t, "EQ_STR", EqStr.String())
}

func TestBytecodeStringUnknownOpcode(t *testing.T) {
	assert.Equal(t, "?unknown-opcode?", Bytecode(0xBEEF).String())
}

func TestHasImmediate(t *testing.T) {
	assert.True(t, PushI64.HasImmediate())
	assert.True(t, PushF64.HasImmediate())
	assert.False(t, Drop.HasImmediate())
	assert.False(t, AddI64.HasImmediate())
}

func TestTypeSuffixEncoding(t *testing.T) {
	// Every typed opcode's high byte carries the Type suffix per §4.1.
	assert.Equal(t, uint16(TypeInt), uint16(PushI64)>>8&0x0f)
	assert.Equal(t, uint16(TypeFloat), uint16(PushF64)>>8&0x0f)
	assert.Equal(t, uint16(TypeString), uint16(AddStr)>>8&0x0f)
}
