package vm

import "github.com/pkg/errors"

// labelCounter generates unique synthetic label names for macro expansion.
// Shared across a single ExpandMacros call; never observed by user code.
type labelCounter struct{ n int }

func (lc *labelCounter) next(prefix string) string {
	lc.n++
	return prefix + "$" + itoa(lc.n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ExpandMacros desugars `if { ... }` and `while { ... }` surface syntax
// into the primitive :label / @label / &label / if / !if token stream the
// type-stack compiler understands. It is a pure token rewrite: the block
// forms never reach CompileTokens, and a caller who writes only primitive
// label-based control flow can skip this pass entirely.
//
// `if { BODY }` requires an Int condition already on the stack at the
// block's open and desugars to:
//
//	&end !if BODY :end
//
// `while { COND } { BODY }` desugars to:
//
//	:top COND &end !if BODY @top :end
func ExpandMacros(tokens []Token) ([]Token, error) {
	lc := &labelCounter{}
	out, rest, err := expandBlock(tokens, lc)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.Wrap(ErrUnknownToken, "unmatched '}' in macro expansion")
	}
	return out, nil
}

// expandBlock rewrites tokens up to (but not including) an unmatched '}',
// recursively expanding any if/while it finds along the way.
func expandBlock(tokens []Token, lc *labelCounter) ([]Token, []Token, error) {
	var out []Token
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok.Kind == TokWord && tok.Text == "}":
			return out, tokens[i:], nil
		case tok.Kind == TokWord && tok.Text == "if" && i+1 < len(tokens) && isOpenBrace(tokens[i+1]):
			body, next, end, err := consumeBracedBody(tokens[i+2:], lc)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, Token{Kind: TokAmp, Text: end})
			out = append(out, Token{Kind: TokWord, Text: "!if"})
			out = append(out, body...)
			out = append(out, Token{Kind: TokLabel, Text: end})
			i = i + 2 + next
		case tok.Kind == TokWord && tok.Text == "while" && i+1 < len(tokens) && isOpenBrace(tokens[i+1]):
			cond, next1, _, err := consumeBracedBody(tokens[i+2:], lc)
			if err != nil {
				return nil, nil, err
			}
			j := i + 2 + next1
			if j >= len(tokens) || !isOpenBrace(tokens[j]) {
				return nil, nil, errors.Wrap(ErrUnknownToken, "while requires a second { body } block")
			}
			body, next2, _, err := consumeBracedBody(tokens[j+1:], lc)
			if err != nil {
				return nil, nil, err
			}
			top := lc.next("while_top")
			end := lc.next("while_end")
			out = append(out, Token{Kind: TokLabel, Text: top})
			out = append(out, cond...)
			out = append(out, Token{Kind: TokAmp, Text: end})
			out = append(out, Token{Kind: TokWord, Text: "!if"})
			out = append(out, body...)
			out = append(out, Token{Kind: TokAt, Text: top})
			out = append(out, Token{Kind: TokLabel, Text: end})
			i = j + 1 + next2
		default:
			out = append(out, tok)
			i++
		}
	}
	return out, nil, nil
}

func isOpenBrace(tok Token) bool {
	return tok.Kind == TokWord && tok.Text == "{"
}

// consumeBracedBody expands the tokens immediately following an opening
// '{' up to its matching '}', returning the expanded body, how many input
// tokens (including the closing brace) were consumed, and a freshly
// allocated label name for callers that need one (if/while use it for the
// end-of-block label).
func consumeBracedBody(tokens []Token, lc *labelCounter) ([]Token, int, string, error) {
	body, rest, err := expandBlock(tokens, lc)
	if err != nil {
		return nil, 0, "", err
	}
	if len(rest) == 0 {
		return nil, 0, "", errors.Wrap(ErrUnknownToken, "unterminated '{' block")
	}
	consumed := len(tokens) - len(rest) + 1 // +1 for the closing '}'
	return body, consumed, lc.next("end"), nil
}
