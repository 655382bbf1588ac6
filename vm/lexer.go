package vm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TokenKind classifies a lexed token for the compiler.
type TokenKind int

const (
	TokWord   TokenKind = iota // reserved word or operator, verbatim text in Text
	TokLabel                   // :name
	TokAt                      // @name
	TokAmp                     // &name
	TokString                  // string literal, decoded value in Text
	TokInt                     // integer literal, value in Int
	TokFloat                   // float literal, value in Float
)

// Token is one lexical unit of Roth source.
type Token struct {
	Kind  TokenKind
	Text  string
	Int   int64
	Float float64
	// Pos is the rune offset of the token's first character, used for
	// diagnostics.
	Pos int
}

var operators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"=": true, "<": true, ">": true, "<=": true, ">=": true,
}

var reservedWords = map[string]bool{
	"drop": true, "load": true, "swap": true, "dup": true, "dDup": true,
	"tDup": true, "tRot": true, "jump": true, "if": true, "!if": true,
	"call": true, "abort": true, "exit": true, "panic": true, "ln": true,
	"input": true, "gc": true, "print": true, "~int": true, "~float": true,
	"%int": true, "%float": true, "%str": true, "%drop": true,
}

// Lex tokenizes Roth source text. It is a whitespace-delimited scanner:
// `#` starts a line comment, `"` opens a string literal with `\" \\ \n \r \t`
// escapes, and every other run of non-whitespace characters is classified
// as a label form, operator, reserved word, or numeric literal.
func Lex(src string) ([]Token, error) {
	runes := []rune(src)
	var tokens []Token
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '"':
			tok, next, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		default:
			start := i
			for i < len(runes) && !isSpace(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			tok, err := classifyWord(word, start)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func lexString(runes []rune, start int) (Token, int, error) {
	i := start + 1 // skip opening quote
	var sb strings.Builder
	for {
		if i >= len(runes) {
			return Token{}, 0, errors.Wrapf(ErrUnknownToken, "unterminated string literal at offset %d", start)
		}
		c := runes[i]
		switch c {
		case '"':
			return Token{Kind: TokString, Text: sb.String(), Pos: start}, i + 1, nil
		case '\n':
			return Token{}, 0, errors.Wrapf(ErrNewlineInStringLiteral, "at offset %d", i)
		case '\\':
			i++
			if i >= len(runes) {
				return Token{}, 0, errors.Wrapf(ErrInvalidEscape, "dangling backslash at offset %d", i-1)
			}
			switch runes[i] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			default:
				return Token{}, 0, errors.Wrapf(ErrInvalidEscape, "unrecognized escape '\\%c' at offset %d", runes[i], i-1)
			}
			i++
		default:
			sb.WriteRune(c)
			i++
		}
	}
}

func classifyWord(word string, pos int) (Token, error) {
	switch {
	case strings.HasPrefix(word, ":") && len(word) > 1:
		return Token{Kind: TokLabel, Text: word[1:], Pos: pos}, nil
	case strings.HasPrefix(word, "@") && len(word) > 1:
		return Token{Kind: TokAt, Text: word[1:], Pos: pos}, nil
	case strings.HasPrefix(word, "&") && len(word) > 1:
		return Token{Kind: TokAmp, Text: word[1:], Pos: pos}, nil
	case operators[word] || reservedWords[word] || word == "{" || word == "}" || word == "while":
		return Token{Kind: TokWord, Text: word, Pos: pos}, nil
	}

	if strings.Contains(word, ".") {
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return Token{Kind: TokFloat, Float: f, Pos: pos}, nil
		}
	}
	if n, err := strconv.ParseInt(word, 10, 64); err == nil {
		return Token{Kind: TokInt, Int: n, Pos: pos}, nil
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return Token{Kind: TokFloat, Float: f, Pos: pos}, nil
	}
	return Token{}, errors.Wrapf(ErrUnknownToken, "%q at offset %d", word, pos)
}
