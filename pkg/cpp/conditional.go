// conditional.go implements conditional compilation (#if, #ifdef, etc.)
package cpp

import (
	"fmt"
	"strconv"
	"strings"
)

// State is one frame of the conditional stack.
type State struct {
	ParentActive bool // every enclosing frame is active
	Active       bool // the current branch of this frame is taken
	SawElse      bool
}

// IsActive reports whether tokens under this frame are processed.
func (s State) IsActive() bool { return s.ParentActive && s.Active }

// Hash packs the frame into the integer used by the trace format.
func (s State) Hash() int {
	return btoi(s.ParentActive)<<2 | btoi(s.Active)<<1 | btoi(s.SawElse)
}

// StateStack is a persistent stack of frames. It always holds at least
// the root frame, which is active.
type StateStack struct {
	top   State
	below *StateStack
	depth int
}

// NewStateStack returns a stack holding only the root frame.
func NewStateStack() *StateStack {
	return &StateStack{top: State{ParentActive: true, Active: true}, depth: 1}
}

// Top returns the innermost frame.
func (s *StateStack) Top() State { return s.top }

// Depth counts frames including the root.
func (s *StateStack) Depth() int { return s.depth }

// Push opens a nested conditional under the current frame.
func (s *StateStack) Push() *StateStack {
	return &StateStack{
		top:   State{ParentActive: s.top.IsActive(), Active: true},
		below: s,
		depth: s.depth + 1,
	}
}

// Pop closes the innermost conditional. ok is false when only the root
// frame remains; the stack is then returned unchanged.
func (s *StateStack) Pop() (st *StateStack, ok bool) {
	if s.below == nil {
		return s, false
	}
	return s.below, true
}

// WithTop returns the stack with its innermost frame replaced.
func (s *StateStack) WithTop(st State) *StateStack {
	return &StateStack{top: st, below: s.below, depth: s.depth}
}

// Frames lists the frames from innermost to root.
func (s *StateStack) Frames() []State {
	var out []State
	for ; s != nil; s = s.below {
		out = append(out, s.top)
	}
	return out
}

// Equal compares two stacks frame by frame.
func (s *StateStack) Equal(o *StateStack) bool {
	for s != o {
		if s == nil || o == nil || s.depth != o.depth || s.top != o.top {
			return false
		}
		s, o = s.below, o.below
	}
	return true
}

// EvalExpr evaluates a #if constant expression. The caller has already
// replaced defined operators and macro invocations; any identifier left
// over counts as 0.
func EvalExpr(tokens []Token) (int64, error) {
	var filtered []Token
	for _, tok := range tokens {
		if !tok.IsWhite() && tok.Type != PP_NEWLINE {
			filtered = append(filtered, tok)
		}
	}
	if len(filtered) == 0 {
		return 0, fmt.Errorf("empty expression")
	}

	p := &exprParser{tokens: filtered}
	result, err := p.parseConditional()
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.tokens) {
		return 0, fmt.Errorf("unexpected token after expression: %s", p.tokens[p.pos].Text)
	}
	return result, nil
}

// exprParser evaluates preprocessor constant expressions by precedence
// climbing over binaryOps.
type exprParser struct {
	tokens []Token
	pos    int
}

func (p *exprParser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: PP_EOF}
	}
	return p.tokens[p.pos]
}

func (p *exprParser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *exprParser) match(text string) bool {
	if p.peek().Type == PP_PUNCTUATOR && p.peek().Text == text {
		p.advance()
		return true
	}
	return false
}

type binaryOp struct {
	prec int
	eval func(l, r int64) (int64, error)
}

func pure(f func(l, r int64) int64) func(l, r int64) (int64, error) {
	return func(l, r int64) (int64, error) { return f(l, r), nil }
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func checkedDiv(f func(l, r int64) int64) func(l, r int64) (int64, error) {
	return func(l, r int64) (int64, error) {
		if r == 0 {
			return 0, fmt.Errorf("division by zero in #if")
		}
		return f(l, r), nil
	}
}

var binaryOps = map[string]binaryOp{
	"||": {1, pure(func(l, r int64) int64 { return b2i(l != 0 || r != 0) })},
	"&&": {2, pure(func(l, r int64) int64 { return b2i(l != 0 && r != 0) })},
	"|":  {3, pure(func(l, r int64) int64 { return l | r })},
	"^":  {4, pure(func(l, r int64) int64 { return l ^ r })},
	"&":  {5, pure(func(l, r int64) int64 { return l & r })},
	"==": {6, pure(func(l, r int64) int64 { return b2i(l == r) })},
	"!=": {6, pure(func(l, r int64) int64 { return b2i(l != r) })},
	"<":  {7, pure(func(l, r int64) int64 { return b2i(l < r) })},
	">":  {7, pure(func(l, r int64) int64 { return b2i(l > r) })},
	"<=": {7, pure(func(l, r int64) int64 { return b2i(l <= r) })},
	">=": {7, pure(func(l, r int64) int64 { return b2i(l >= r) })},
	"<<": {8, pure(func(l, r int64) int64 { return l << uint64(r&63) })},
	">>": {8, pure(func(l, r int64) int64 { return l >> uint64(r&63) })},
	"+":  {9, pure(func(l, r int64) int64 { return l + r })},
	"-":  {9, pure(func(l, r int64) int64 { return l - r })},
	"*":  {10, pure(func(l, r int64) int64 { return l * r })},
	"/":  {10, checkedDiv(func(l, r int64) int64 { return l / r })},
	"%":  {10, checkedDiv(func(l, r int64) int64 { return l % r })},
}

func (p *exprParser) parseConditional() (int64, error) {
	cond, err := p.parseBinary(1)
	if err != nil {
		return 0, err
	}
	if !p.match("?") {
		return cond, nil
	}
	thenVal, err := p.parseConditional()
	if err != nil {
		return 0, err
	}
	if !p.match(":") {
		return 0, fmt.Errorf("expected ':' in conditional expression")
	}
	elseVal, err := p.parseConditional()
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return thenVal, nil
	}
	return elseVal, nil
}

func (p *exprParser) parseBinary(minPrec int) (int64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		tok := p.peek()
		op, ok := binaryOps[tok.Text]
		if tok.Type != PP_PUNCTUATOR || !ok || op.prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(op.prec + 1)
		if err != nil {
			return 0, err
		}
		if left, err = op.eval(left, right); err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) parseUnary() (int64, error) {
	tok := p.peek()
	if tok.Type == PP_PUNCTUATOR {
		switch tok.Text {
		case "!", "-", "+", "~":
			p.advance()
			val, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			switch tok.Text {
			case "!":
				return b2i(val == 0), nil
			case "-":
				return -val, nil
			case "~":
				return ^val, nil
			}
			return val, nil
		}
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (int64, error) {
	tok := p.advance()
	switch tok.Type {
	case PP_PUNCTUATOR:
		if tok.Text == "(" {
			val, err := p.parseConditional()
			if err != nil {
				return 0, err
			}
			if !p.match(")") {
				return 0, fmt.Errorf("expected ')'")
			}
			return val, nil
		}
	case PP_NUMBER:
		return parseNumber(tok.Text)
	case PP_CHAR_CONST:
		return parseCharConst(tok.Text)
	case PP_IDENTIFIER:
		return 0, nil
	case PP_EOF:
		return 0, fmt.Errorf("unexpected end of expression")
	}
	return 0, fmt.Errorf("unexpected token in expression: %s", tok.Text)
}

// parseNumber parses an integer constant, ignoring any suffix.
func parseNumber(s string) (int64, error) {
	digits := strings.TrimRight(s, "lLuU")
	base := 10
	switch {
	case strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X"):
		digits, base = digits[2:], 16
	case strings.HasPrefix(digits, "0b") || strings.HasPrefix(digits, "0B"):
		digits, base = digits[2:], 2
	case len(digits) > 1 && digits[0] == '0':
		digits, base = digits[1:], 8
	}
	val, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer constant in #if: %s", s)
	}
	return int64(val), nil
}

var simpleEscapes = map[byte]int64{
	'n': '\n', 't': '\t', 'r': '\r', '\\': '\\', '\'': '\'', '"': '"',
	'a': '\a', 'b': '\b', 'f': '\f', 'v': '\v', '?': '?',
}

// parseCharConst parses a character constant like 'a' or '\n'.
func parseCharConst(s string) (int64, error) {
	s = strings.TrimLeft(s, "LuU")
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, fmt.Errorf("invalid character constant: %s", s)
	}
	inner := s[1 : len(s)-1]
	if inner[0] != '\\' {
		return int64(inner[0]), nil
	}
	if len(inner) < 2 {
		return 0, fmt.Errorf("invalid escape sequence")
	}
	if v, ok := simpleEscapes[inner[1]]; ok {
		return v, nil
	}
	var val int64
	var err error
	switch {
	case inner[1] == 'x':
		val, err = strconv.ParseInt(inner[2:], 16, 64)
	case inner[1] >= '0' && inner[1] <= '7':
		val, err = strconv.ParseInt(inner[1:], 8, 64)
	default:
		return 0, fmt.Errorf("unknown escape sequence: %s", inner)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid escape sequence: %s", inner)
	}
	return val, nil
}
