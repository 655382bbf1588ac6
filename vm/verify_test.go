package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, src string) []byte {
	pre, err := Compile(src, CompileOptions{Verify: true})
	require.NoError(t, err)
	code, err := AssemblePreBinary(pre)
	require.NoError(t, err)
	return code
}

func TestVerifyWellTypedProgram(t *testing.T) {
	code := assemble(t, "1 2 + print")
	res, err := Verify(code)
	require.NoError(t, err)
	assert.Equal(t, 2, res.MaxDepth)
	assert.Equal(t, 0, res.FinalDepth)
}

func TestVerifyStackUnderflow(t *testing.T) {
	// A bare DROP with nothing pushed first.
	raw := []byte{0x00, 0x00} // DROP
	_, err := Verify(raw)
	assert.ErrorIs(t, err, ErrStackUnderflow)
}

func TestVerifyMisalignedCode(t *testing.T) {
	_, err := Verify([]byte{0x00})
	assert.ErrorIs(t, err, ErrMisalignedCode)
}

func TestVerifyUnknownOpcode(t *testing.T) {
	_, err := Verify([]byte{0xFF, 0xFF})
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestVerifyTruncatedImmediate(t *testing.T) {
	var buf []byte
	buf = append(buf, 0x08, 0x01) // PUSH_I64 opcode, no immediate bytes following
	_, err := Verify(buf)
	assert.ErrorIs(t, err, ErrTruncatedImmediate)
}

func TestVerifyMaxDepthTracksPeak(t *testing.T) {
	code := assemble(t, "1 2 3 drop drop drop")
	res, err := Verify(code)
	require.NoError(t, err)
	assert.Equal(t, 3, res.MaxDepth)
	assert.Equal(t, 0, res.FinalDepth)
}

func TestVerifyOperandTypeMismatch(t *testing.T) {
	// PushF64(0.0) then PrintI64 expects Int, not Float.
	var buf []byte
	buf = append(buf, 0x08, 0x02) // PUSH_F64
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, 0x08, 0x11) // PRINT_I64 = printFamily(0x1008)|flagInt -> little endian 0x1108 => bytes 0x08,0x11
	_, err := Verify(buf)
	assert.ErrorIs(t, err, ErrOperandTypeMismatch)
}
