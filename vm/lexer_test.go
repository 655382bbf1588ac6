package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexNumbers(t *testing.T) {
	toks, err := Lex("1 -2 3.5 -0.25")
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, TokInt, toks[0].Kind)
	assert.EqualValues(t, 1, toks[0].Int)
	assert.Equal(t, TokInt, toks[1].Kind)
	assert.EqualValues(t, -2, toks[1].Int)
	assert.Equal(t, TokFloat, toks[2].Kind)
	assert.InDelta(t, 3.5, toks[2].Float, 0)
	assert.Equal(t, TokFloat, toks[3].Kind)
	assert.InDelta(t, -0.25, toks[3].Float, 0)
}

func TestLexStringEscapes(t *testing.T) {
	toks, err := Lex(`"hello\nworld\t\"quoted\""`)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, "hello\nworld\t\"quoted\"", toks[0].Text)
}

func TestLexNewlineInStringIsError(t *testing.T) {
	_, err := Lex("\"oops\nno\"")
	assert.ErrorIs(t, err, ErrNewlineInStringLiteral)
}

func TestLexUnknownTokenIsError(t *testing.T) {
	_, err := Lex("$$$")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestLexComment(t *testing.T) {
	toks, err := Lex("1 # this is a comment\n2")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.EqualValues(t, 1, toks[0].Int)
	assert.EqualValues(t, 2, toks[1].Int)
}

func TestLexLabelForms(t *testing.T) {
	toks, err := Lex(":top @top &top")
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, TokLabel, toks[0].Kind)
	assert.Equal(t, TokAt, toks[1].Kind)
	assert.Equal(t, TokAmp, toks[2].Kind)
	for _, tok := range toks {
		assert.Equal(t, "top", tok.Text)
	}
}
