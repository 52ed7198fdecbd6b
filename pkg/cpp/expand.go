// expand.go implements macro expansion including argument substitution,
// stringification, and token pasting.
package cpp

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Argument is one actual argument of a macro call.
type Argument struct {
	Tokens    []TokenS // raw tokens, whitespace runs collapsed
	Indices   []int    // position of each raw token in the call's span
	Expansion []TokenS
	Actions   *ActionSequence // trace of the pre-expansion
}

func (a *Argument) add(tok TokenS, idx int) {
	a.Tokens = append(a.Tokens, tok)
	a.Indices = append(a.Indices, idx)
}

// macro starts an expansion of m triggered by name. It returns false if
// nothing was expanded, in which case name is still pending and must be
// output by the caller.
func (p *Preprocessor) macro(name ptoken, m *Macro) bool {
	disables := name.Disables.Add(m.Name)

	var args []*Argument
	if m.IsFunctionLike() {
		var read []ptoken
		for {
			pt := p.sourceToken()
			if pt.IsWhite() || pt.Type == PP_NEWLINE {
				read = append(read, pt)
				continue
			}
			if pt.Type == PP_PUNCTUATOR && pt.Text == "(" {
				read = append(read, pt)
				break
			}
			// Not an invocation: give back the lookahead and the
			// whitespace before it.
			read = append(read, pt)
			p.giveBack(read)
			return false
		}
		var ok bool
		if args, ok = p.collectArgs(m); !ok {
			p.giveBack(read)
			return false
		}
		for _, a := range args {
			p.expandArgument(a)
		}
	}

	p.debug(logrus.Fields{"macro": m.Name, "line": name.Loc.Line}, "pp: expanding")

	if m.Kind == MacroBuiltin {
		p.builtin(name, m, disables)
		return true
	}
	src := p.newMacroTokenSource(m, args, disables, name.Token)
	p.collector.replaceWithMapping(src.Mapping, disables)
	p.push(src)
	return true
}

// collectArgs reads the arguments of a call to m, after the opening
// parenthesis. On error every token read is given back.
func (p *Preprocessor) collectArgs(m *Macro) ([]*Argument, bool) {
	var read []ptoken
	next := func() ptoken {
		pt := p.sourceToken()
		read = append(read, pt)
		return pt
	}

	tok := next()
	for tok.IsWhite() || tok.Type == PP_NEWLINE {
		tok = next()
	}
	if tok.Type == PP_PUNCTUATOR && tok.Text == ")" && len(m.Params) == 0 {
		return nil, true
	}

	var args []*Argument
	arg := &Argument{}
	depth := 0
	var space *TokenS
	addSpace := func() {
		if space != nil && len(arg.Tokens) > 0 {
			arg.add(*space, p.collector.numToken()-2)
		}
		space = nil
	}
	for {
		idx := p.collector.numToken() - 1
		punct := ""
		if tok.Type == PP_PUNCTUATOR {
			punct = tok.Text
		}
		switch {
		case tok.Type == PP_EOF:
			p.syntaxf(tok.Token, "EOF in macro args")
			p.giveBack(read)
			return nil, false
		case punct == "," && depth == 0:
			if m.IsVariadic && len(args) == len(m.Params)-1 {
				addSpace()
				arg.add(tok.TokenS, idx)
			} else {
				args = append(args, arg)
				arg = &Argument{}
				space = nil
			}
		case punct == ")" && depth == 0:
			args = append(args, arg)
			if len(args) != len(m.Params) {
				if m.IsVariadic && len(args) == len(m.Params)-1 {
					args = append(args, &Argument{})
				} else {
					p.errorf(tok.Token, "macro %s has %d parameters but given %d args", m.Name, len(m.Params), len(args))
					p.giveBack(read)
					return nil, false
				}
			}
			return args, true
		case tok.IsWhite() || tok.Type == PP_NEWLINE:
			// Runs collapse to their last token.
			t := tok.TokenS
			space = &t
		default:
			if punct == "(" {
				depth++
			} else if punct == ")" {
				depth--
			}
			addSpace()
			arg.add(tok.TokenS, idx)
		}
		tok = next()
	}
}

// giveBack ungets read in reverse order.
func (p *Preprocessor) giveBack(read []ptoken) {
	for i := len(read) - 1; i >= 0; i-- {
		p.ungetToken(read[i])
	}
}

// expandArgument fully expands a's tokens with a nested collector and
// records the result in a.
func (p *Preprocessor) expandArgument(a *Argument) {
	outer, pushback := p.collector, p.pushback
	p.collector, p.pushback = outer.nested(), nil

	src := NewFixedTokenSource(a.Tokens, false, false)
	p.push(src)
	x := &argExpansion{p: p}
	for !x.done && p.err == nil {
		x.step()
	}
	for len(p.sources) > 0 && p.top() != Source(src) {
		p.pop()
	}
	if len(p.sources) > 0 {
		p.pop()
	}

	a.Expansion = x.out
	a.Actions = p.collector.Sequence()
	p.collector, p.pushback = outer, pushback
}

// argExpansion expands one argument a token at a time. Whitespace is
// deleted when read and reverted to a Skip once a later token shows it
// is interior. started is set once a token has been output, which may
// be before this expansion began when it resumes a recorded one.
type argExpansion struct {
	p        *Preprocessor
	out      []TokenS
	space    *TokenS
	spaceIdx int
	started  bool
	done     bool
}

func (x *argExpansion) step() {
	c := x.p.collector
	pt := x.p.expandedToken()
	switch {
	case pt.Type == PP_EOF:
		x.done = true
		c.hold = -1
	case pt.IsWhite() || pt.Type == PP_NEWLINE:
		t := pt.TokenS
		x.space = &t
		x.spaceIdx = c.deleteAll()
		c.hold = x.spaceIdx
	default:
		if x.space != nil && x.started {
			x.out = append(x.out, *x.space)
			c.revert(x.spaceIdx, *x.space)
		}
		x.out = append(x.out, pt.TokenS)
		x.started = true
		x.space = nil
		c.hold = -1
		c.skipLast()
	}
}

// builtin expands __LINE__, __FILE__ and __COUNTER__.
func (p *Preprocessor) builtin(name ptoken, m *Macro, disables Disables) {
	tok := Token{Loc: name.Loc}
	switch m.Builtin {
	case BuiltinLine:
		tok.Type, tok.Text = PP_NUMBER, strconv.Itoa(name.Loc.Line)
	case BuiltinFile:
		file := name.Loc.File
		if file == "" {
			file = "<no file>"
		}
		tok.Type, tok.Text = PP_STRING, `"`+escapeString(file)+`"`
	case BuiltinCounter:
		tok.Type, tok.Text = PP_NUMBER, strconv.Itoa(p.counter)
		p.counter++
	}
	p.collector.replaceWithNewTokens([]Token{tok}, disables)
	p.push(NewFixedTokenSource([]TokenS{{Token: tok, Disables: disables}}, true, true))
}

func escapeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// newMacroTokenSource materializes the expansion of m. Every produced
// token carries disables.
func (p *Preprocessor) newMacroTokenSource(m *Macro, args []*Argument, disables Disables, call Token) *MacroTokenSource {
	src := &MacroTokenSource{Macro: m}
	src.autopop = true
	var produced []TokenS
	emitNew := func(toks ...Token) {
		for _, t := range toks {
			t.Loc = call.Loc
			produced = append(produced, TokenS{Token: t, Disables: disables})
			src.Mapping = append(src.Mapping, &New{Tokens: []Token{t}})
		}
	}

	body := m.Replacement
	for i := 0; i < len(body); i++ {
		if i+1 < len(body) && body[i+1].Type == PP_MACRO_PASTE {
			emitNew(p.paste(m, body[i:], args, call)...)
			i += pasteChainLen(body[i:]) - 1
			continue
		}
		tok := body[i]
		switch tok.Type {
		case PP_MACRO_ARG:
			a := args[tok.Index]
			src.Mapping = append(src.Mapping, &Sub{Indices: a.Indices, Actions: a.Actions})
			for _, t := range a.Expansion {
				produced = append(produced, t.WithDisables(disables))
			}
		case PP_MACRO_STRING:
			emitNew(stringify(args[tok.Index].Tokens, call))
		case PP_MACRO_PASTE:
			// Only reachable for a ## ending the body.
			p.errorf(call, "Paste at end of expansion")
			emitNew(Token{Type: PP_HASHHASH, Text: "##"})
		default:
			emitNew(tok)
		}
	}
	src.toks = produced
	src.eof = Token{Type: PP_EOF, Loc: call.Loc}
	return src
}

// pasteChainLen returns how many body tokens a paste chain starting at
// body[0] covers: operand (## operand)*.
func pasteChainLen(body []Token) int {
	n := 1
	for n+1 < len(body) && body[n].Type == PP_MACRO_PASTE {
		n += 2
	}
	if n < len(body) && body[n].Type == PP_MACRO_PASTE {
		n++ // trailing ##
	}
	return n
}

// paste concatenates the operands of the chain at body[0] and lexes the
// result. Operands that are parameters contribute their raw tokens. A
// comma pasted to an empty variadic argument disappears with it.
func (p *Preprocessor) paste(m *Macro, body []Token, args []*Argument, call Token) []Token {
	var sb strings.Builder
	n := pasteChainLen(body)
	trailing := body[n-1].Type == PP_MACRO_PASTE
	comma := false
	for i := 0; i < n; i += 2 {
		tok := body[i]
		switch tok.Type {
		case PP_MACRO_ARG:
			a := args[tok.Index]
			variadic := m.IsVariadic && tok.Index == len(m.Params)-1
			if comma && variadic && len(a.Tokens) == 0 {
				s := strings.TrimSuffix(sb.String(), ",")
				sb.Reset()
				sb.WriteString(s)
			} else {
				for _, t := range a.Tokens {
					sb.WriteString(t.Text)
				}
			}
			comma = false
		case PP_MACRO_STRING:
			sb.WriteString(stringify(args[tok.Index].Tokens, call).Text)
			comma = false
		default:
			sb.WriteString(tok.Text)
			comma = tok.Type == PP_PUNCTUATOR && tok.Text == ","
		}
	}
	toks, _ := Lex(sb.String(), call.Loc.File)
	if trailing {
		p.errorf(call, "Paste at end of expansion")
		toks = append(toks, Token{Type: PP_WHITESPACE, Text: " "}, Token{Type: PP_HASHHASH, Text: "##"})
	}
	return toks
}

// stringify implements the # operator over raw argument tokens. Runs of
// whitespace become one space; quotes and backslashes inside string and
// character literals are escaped.
func stringify(toks []TokenS, call Token) Token {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, t := range toks {
		switch {
		case t.IsWhite() || t.Type == PP_NEWLINE:
			sb.WriteByte(' ')
		case t.Type == PP_STRING || t.Type == PP_CHAR_CONST:
			sb.WriteString(escapeString(t.Text))
		default:
			sb.WriteString(t.Text)
		}
	}
	sb.WriteByte('"')
	return Token{Type: PP_STRING, Text: sb.String(), Loc: call.Loc}
}
