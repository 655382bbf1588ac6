package vm

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSource compiles and executes src, capturing everything written to
// the VM's stdout. It redirects the process-wide os.Stdout since NewVM
// wires directly to it, matching the teacher's style of testing through
// whole example programs rather than mocking I/O.
func runSource(t *testing.T, src string) (stdout string, result RunResult) {
	t.Helper()
	tokens, err := Lex(src)
	require.NoError(t, err)
	tokens, err = ExpandMacros(tokens)
	require.NoError(t, err)
	pre, err := CompileTokens(tokens, CompileOptions{Verify: true})
	require.NoError(t, err)
	code := mustAssemble(t, pre)
	res, err := Verify(code)
	require.NoError(t, err)
	bin := &Binary{Constants: pre.Constants, Code: code}

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	machine := NewVM(bin, res.MaxDepth)
	done := make(chan RunResult, 1)
	go func() {
		done <- Run(machine)
	}()

	result = <-done
	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out), result
}

func mustAssemble(t *testing.T, pre *PreBinary) []byte {
	t.Helper()
	code, err := AssemblePreBinary(pre)
	require.NoError(t, err)
	return code
}

func TestScenarioAddAndPrint(t *testing.T) {
	out, res := runSource(t, "1 2 + print")
	assert.Equal(t, "3", out)
	assert.Equal(t, 0, res.ExitCode)
}

func TestScenarioStringConcatAndPrint(t *testing.T) {
	out, res := runSource(t, `"hello " "world" + print`)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, 0, res.ExitCode)
}

func TestScenarioLoopPrintsDigits(t *testing.T) {
	out, res := runSource(t, "0 while { dup 3 < } { dup print 1 + }")
	assert.Equal(t, "012", out)
	assert.Equal(t, 0, res.ExitCode)
}

func TestScenarioFloatTruncation(t *testing.T) {
	out, res := runSource(t, "3.0 ~int print")
	assert.Equal(t, "3", out)
	assert.Equal(t, 0, res.ExitCode)
}

func TestScenarioExitCode(t *testing.T) {
	out, res := runSource(t, "1 exit")
	assert.Equal(t, "", out)
	assert.Equal(t, 1, res.ExitCode)
	assert.NoError(t, res.Err)
}

func TestScenarioPanicMessage(t *testing.T) {
	_, res := runSource(t, `"oops" panic`)
	assert.Equal(t, -1, res.ExitCode)
	require.Error(t, res.Err)
	var panicErr *PanicError
	require.ErrorAs(t, res.Err, &panicErr)
	assert.Contains(t, panicErr.Message, "oops")
}

func TestAddStrIsLeftBiased(t *testing.T) {
	// VE-4: ADD_STR is non-commutative, forming y ++ x where x is top.
	out, _ := runSource(t, `"y" "x" + print`)
	assert.Equal(t, "yx", out)
}

func TestSubIsLeftBiased(t *testing.T) {
	// VE-3: SUB/DIV compute y - x where x is the top cell.
	out, _ := runSource(t, "10 3 - print")
	assert.Equal(t, "7", out)
}

func TestDivisionByZeroIsFatal(t *testing.T) {
	_, res := runSource(t, "1 0 / print")
	assert.Equal(t, -1, res.ExitCode)
	assert.Error(t, res.Err)
}
