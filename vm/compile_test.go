package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *PreBinary {
	pre, err := Compile(src, CompileOptions{Verify: true})
	require.NoError(t, err)
	return pre
}

func TestCompileArithmeticPicksTypedVariant(t *testing.T) {
	pre := mustCompile(t, "1 2 +")
	require.Len(t, pre.Instructions, 3)
	assert.Equal(t, PushI64, pre.Instructions[0].Op)
	assert.Equal(t, PushI64, pre.Instructions[1].Op)
	assert.Equal(t, AddI64, pre.Instructions[2].Op)
}

func TestCompileStringConcatUsesAddStr(t *testing.T) {
	pre := mustCompile(t, `"a" "b" +`)
	require.Len(t, pre.Constants, 2)
	assert.Equal(t, "a", pre.Constants[0])
	assert.Equal(t, "b", pre.Constants[1])
	last := pre.Instructions[len(pre.Instructions)-1]
	assert.Equal(t, AddStr, last.Op)
}

func TestCompileStringLiteralDeduplicates(t *testing.T) {
	pre := mustCompile(t, `"dup" "dup"`)
	assert.Len(t, pre.Constants, 1)
}

func TestCompileTypeMismatchIsError(t *testing.T) {
	_, err := Compile(`1 "x" +`, CompileOptions{Verify: true})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCompileStringArithmeticOtherThanAddIsError(t *testing.T) {
	_, err := Compile(`"a" "b" -`, CompileOptions{Verify: true})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCompileUnknownLabelIsError(t *testing.T) {
	_, err := Compile("@nowhere", CompileOptions{Verify: true})
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestCompileLabelFixupResolvesToByteOffset(t *testing.T) {
	// "1 :top drop @top" — @top must resolve to the byte offset right
	// after PushI64(1), which is where DROP starts.
	pre := mustCompile(t, "1 :top drop @top")
	// PushI64 (10 bytes) then DROP (2 bytes) = label "top" at offset 10.
	// @top emits PushInt(addr) + J; PushInt carries the resolved addr.
	atInsn := pre.Instructions[2]
	assert.Equal(t, PushI64, atInsn.Op)
	assert.EqualValues(t, 10, atInsn.IArg)
}

func TestCompileEscapeHatchRejectedWhenVerifying(t *testing.T) {
	_, err := Compile("%int", CompileOptions{Verify: true})
	assert.ErrorIs(t, err, ErrFeatureRequiresNoVerify)
}

func TestCompileEscapeHatchAllowedWithoutVerify(t *testing.T) {
	pre, err := Compile("%int drop", CompileOptions{Verify: false})
	require.NoError(t, err)
	require.Len(t, pre.Instructions, 1)
	assert.Equal(t, Drop, pre.Instructions[0].Op)
}

func TestCompileCallCompilesToJ(t *testing.T) {
	pre := mustCompile(t, "5 call")
	last := pre.Instructions[len(pre.Instructions)-1]
	assert.Equal(t, J, last.Op)
}

func TestCompileComparisonResultIsInt(t *testing.T) {
	pre := mustCompile(t, "1 2 < drop")
	assert.Equal(t, LtI64, pre.Instructions[2].Op)
	assert.Equal(t, Drop, pre.Instructions[3].Op)
}

func TestCompileDupFamilyDepth(t *testing.T) {
	pre := mustCompile(t, "1 2 3 tDup")
	last := pre.Instructions[len(pre.Instructions)-1]
	assert.Equal(t, TDup, last.Op)
}

func TestCompilePrintDispatchesByType(t *testing.T) {
	pre := mustCompile(t, "3.0 print")
	last := pre.Instructions[len(pre.Instructions)-1]
	assert.Equal(t, PrintF64, last.Op)
}
