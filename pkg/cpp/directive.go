// directive.go implements preprocessing directives.
package cpp

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// directive handles a line starting with hash. Conditional directives
// are processed in inactive regions too; everything else is skipped
// there.
func (p *Preprocessor) directive(hash ptoken) (TokenS, bool) {
	active := p.states.Top().IsActive()
	line := []ptoken{hash}
	read := func() ptoken {
		pt := p.sourceToken()
		line = append(line, pt)
		return pt
	}
	name := read()
	for name.IsWhite() {
		name = read()
	}

	switch name.Type {
	case PP_NEWLINE, PP_EOF:
		// null directive
		return p.endDirective(name)
	case PP_IDENTIFIER:
	default:
		if active {
			p.syntaxf(name.Token, "Preprocessor directive not a word %s", name.Text)
		}
		return p.skipLine(false)
	}

	switch name.Text {
	case "if":
		return p.doIf(hash)
	case "ifdef", "ifndef":
		return p.doIfdef(name.Text == "ifdef")
	case "elif":
		return p.doElif(hash)
	case "else":
		return p.doElse(hash)
	case "endif":
		return p.doEndif(hash)
	}

	if !active {
		return p.skipLine(false)
	}

	switch name.Text {
	case "define":
		return p.doDefine(hash)
	case "undef":
		return p.doUndef()
	case "include", "import":
		if name.Text == "import" && p.warnings.Has(WarningImport) {
			p.warnf(name.Token, "#import is deprecated")
		}
		return p.doInclude(hash, false, name.Text == "import")
	case "include_next":
		if !p.features.Has(FeatureIncludeNext) {
			p.errorf(name.Token, "#include_next not enabled")
			return p.skipLine(false)
		}
		return p.doInclude(hash, true, false)
	case "pragma":
		return p.doPragma(&line, read)
	case "error", "warning":
		return p.doMessage(hash, name.Text)
	case "line":
		return p.skipLine(false)
	}
	p.errorf(name.Token, "Unknown preprocessor directive %s", name.Text)
	return p.skipLine(false)
}

// endDirective closes a directive line. The tokens of the line are
// deleted and the terminating newline is output.
func (p *Preprocessor) endDirective(end ptoken) (TokenS, bool) {
	if end.Type == PP_NEWLINE {
		p.collector.skipLast()
		return end.TokenS, true
	}
	// At the end of input there is no newline to keep.
	p.collector.deleteAll()
	return TokenS{}, false
}

// readLine reads raw tokens up to the end of the line and returns them
// without the terminator.
func (p *Preprocessor) readLine() ([]Token, ptoken) {
	var toks []Token
	for {
		pt := p.sourceToken()
		if pt.Type == PP_NEWLINE || pt.Type == PP_EOF {
			return toks, pt
		}
		toks = append(toks, pt.Token)
	}
}

// skipLine discards the rest of the line. With warnNonWhite set, and
// endif-label warnings enabled, stray tokens are reported.
func (p *Preprocessor) skipLine(warnNonWhite bool) (TokenS, bool) {
	toks, end := p.readLine()
	if warnNonWhite && p.warnings.Has(WarningEndifLabels) {
		for _, t := range toks {
			if !t.IsWhite() {
				p.warnf(t, "Unexpected nonwhite token")
				break
			}
		}
	}
	return p.endDirective(end)
}

func (p *Preprocessor) doDefine(hash ptoken) (TokenS, bool) {
	toks, end := p.readLine()
	i := 0
	for i < len(toks) && toks[i].IsWhite() {
		i++
	}
	if i == len(toks) {
		p.syntaxf(hash.Token, "Expected identifier")
		return p.endDirective(end)
	}
	m, err := ParseMacro(toks[i], toks[i+1:])
	if err != nil {
		var se semanticError
		if errors.As(err, &se) {
			p.errorf(toks[i], "%v", err)
		} else {
			p.syntaxf(toks[i], "%v", err)
		}
		return p.endDirective(end)
	}
	p.macros = p.macros.Define(m)
	p.debug(logrus.Fields{"macro": m.Name, "body": m.Text()}, "pp: define")
	return p.endDirective(end)
}

func (p *Preprocessor) doUndef() (TokenS, bool) {
	name := p.sourceTokenNonwhite()
	if name.Type != PP_IDENTIFIER {
		p.syntaxf(name.Token, "Expected identifier, not %s", name.Text)
		if name.Type == PP_NEWLINE || name.Type == PP_EOF {
			return p.endDirective(name)
		}
		return p.skipLine(false)
	}
	p.macros = p.macros.Undefine(name.Text)
	return p.skipLine(false)
}

// evalCondition reads and evaluates the expression of #if or #elif.
// Macros are expanded but not recorded.
func (p *Preprocessor) evalCondition(hash ptoken) (bool, ptoken) {
	old := p.collector.CollectOnly
	p.collector.CollectOnly = true
	defer func() { p.collector.CollectOnly = old }()

	var toks []Token
	for {
		pt := p.expandedToken()
		switch {
		case pt.Type == PP_NEWLINE || pt.Type == PP_EOF:
			v, err := EvalExpr(toks)
			if err != nil {
				p.errorf(hash.Token, "%v", err)
				return false, pt
			}
			return v != 0, pt
		case pt.Type == PP_IDENTIFIER && pt.Text == "defined":
			t, ok := p.definedOperand(pt.Token)
			if !ok {
				// Consume the rest of the line before giving up.
				for pt.Type != PP_NEWLINE && pt.Type != PP_EOF {
					pt = p.sourceToken()
				}
				return false, pt
			}
			toks = append(toks, t)
		case pt.Type == PP_IDENTIFIER:
			if p.warnings.Has(WarningUndef) {
				p.warnf(pt.Token, "Undefined token '%s' encountered in conditional", pt.Text)
			}
			toks = append(toks, Token{Type: PP_NUMBER, Text: "0", Loc: pt.Loc})
		default:
			toks = append(toks, pt.Token)
		}
	}
}

// definedOperand parses the operand of defined, NAME or (NAME), and
// returns 1 or 0 as a number token.
func (p *Preprocessor) definedOperand(def Token) (Token, bool) {
	t := p.sourceTokenNonwhite()
	paren := t.Type == PP_PUNCTUATOR && t.Text == "("
	if paren {
		t = p.sourceTokenNonwhite()
	}
	if t.Type != PP_IDENTIFIER {
		p.syntaxf(t.Token, "defined() needs identifier, not %s", t.Text)
		if t.Type == PP_NEWLINE || t.Type == PP_EOF {
			p.ungetToken(t)
		}
		return Token{}, false
	}
	value := "0"
	if p.macros.IsDefined(t.Text) {
		value = "1"
	}
	if paren {
		if c := p.sourceTokenNonwhite(); c.Type != PP_PUNCTUATOR || c.Text != ")" {
			p.syntaxf(c.Token, "Missing ) in defined(). Got %s", c.Text)
			if c.Type == PP_NEWLINE || c.Type == PP_EOF {
				p.ungetToken(c)
			}
			return Token{}, false
		}
	}
	return Token{Type: PP_NUMBER, Text: value, Loc: def.Loc}, true
}

func (p *Preprocessor) doIf(hash ptoken) (TokenS, bool) {
	p.states = p.states.Push()
	if !p.states.Top().ParentActive {
		return p.skipLine(false)
	}
	v, end := p.evalCondition(hash)
	top := p.states.Top()
	top.Active = v
	p.states = p.states.WithTop(top)
	return p.endDirective(end)
}

func (p *Preprocessor) doIfdef(ifdef bool) (TokenS, bool) {
	p.states = p.states.Push()
	if !p.states.Top().ParentActive {
		return p.skipLine(false)
	}
	name := p.sourceTokenNonwhite()
	if name.Type != PP_IDENTIFIER {
		p.syntaxf(name.Token, "Expected identifier, not %s", name.Text)
		if name.Type == PP_NEWLINE || name.Type == PP_EOF {
			return p.endDirective(name)
		}
		return p.skipLine(false)
	}
	top := p.states.Top()
	top.Active = p.macros.IsDefined(name.Text) == ifdef
	p.states = p.states.WithTop(top)
	return p.skipLine(true)
}

func (p *Preprocessor) doElif(hash ptoken) (TokenS, bool) {
	top := p.states.Top()
	switch {
	case p.states.Depth() == 1:
		p.errorf(hash.Token, "#elif without #if")
		return p.skipLine(false)
	case top.SawElse:
		p.errorf(hash.Token, "#elif after #else")
		return p.skipLine(false)
	case !top.ParentActive:
		return p.skipLine(false)
	case top.Active:
		// An earlier branch was taken; no later branch can be.
		top.ParentActive, top.Active = false, false
		p.states = p.states.WithTop(top)
		return p.skipLine(false)
	}
	v, end := p.evalCondition(hash)
	top.Active = v
	p.states = p.states.WithTop(top)
	return p.endDirective(end)
}

func (p *Preprocessor) doElse(hash ptoken) (TokenS, bool) {
	top := p.states.Top()
	switch {
	case p.states.Depth() == 1:
		p.errorf(hash.Token, "#else without #if")
	case top.SawElse:
		p.errorf(hash.Token, "#else after #else")
	default:
		top.SawElse = true
		top.Active = !top.Active
		p.states = p.states.WithTop(top)
	}
	return p.skipLine(true)
}

func (p *Preprocessor) doEndif(hash ptoken) (TokenS, bool) {
	st, ok := p.states.Pop()
	if !ok {
		p.errorf(hash.Token, "#endif without #if")
	}
	p.states = st
	return p.skipLine(true)
}

func (p *Preprocessor) doMessage(hash ptoken, kind string) (TokenS, bool) {
	toks, end := p.readLine()
	msg := "#" + kind + " " + strings.TrimSpace(TokensToString(toks))
	if kind == "error" {
		p.errorf(hash.Token, "%s", msg)
	} else {
		p.warnf(hash.Token, "%s", msg)
	}
	return p.endDirective(end)
}

// doPragma consumes #pragma once and passes any other pragma through to
// the output unchanged. line holds the tokens read so far, from the hash
// on, and grows as read is called.
func (p *Preprocessor) doPragma(line *[]ptoken, read func() ptoken) (TokenS, bool) {
	hash := (*line)[0]
	name := read()
	for name.IsWhite() {
		name = read()
	}
	if name.Type == PP_IDENTIFIER && name.Text == "once" && p.features.Has(FeaturePragmaOnce) {
		p.onceSeen = p.onceSeen.With(filepath.Clean(hash.Loc.File))
		return p.skipLine(false)
	}
	p.giveBack(*line)
	p.passLine = true
	return TokenS{}, false
}

// doInclude handles #include, #include_next and #import. The directive is
// recorded as a rewrite of its line into a newline followed by the whole
// included file, which is then read from a new source.
func (p *Preprocessor) doInclude(hash ptoken, next, once bool) (TokenS, bool) {
	old := p.collector.CollectOnly
	p.collector.CollectOnly = true
	name, kind, ok, end := p.readHeaderName()
	p.collector.CollectOnly = old

	var file []Token
	var src *LexerSource
	if ok {
		src = p.openInclude(hash.Token, name, kind, next)
		if src != nil {
			file = Plain(src.toks)
			if once {
				p.onceSeen = p.onceSeen.With(src.Path)
			}
		}
	}

	if end.Type == PP_NEWLINE {
		p.collector.replaceWithNewTokens(append([]Token{end.Token}, file...), end.Disables)
		p.collector.directInsert(&Skip{Token: end.TokenS})
	} else {
		p.collector.replaceWithNewTokens(file, Disables{})
	}
	if end.Type == PP_NEWLINE {
		// The file starts after the newline is output.
		p.include = src
		return end.TokenS, true
	}
	if src != nil {
		p.push(src)
	}
	return TokenS{}, false
}

// readHeaderName reads the operand of an include directive and the rest
// of its line.
func (p *Preprocessor) readHeaderName() (name string, kind IncludeKind, ok bool, end ptoken) {
	pt := p.expandedTokenNonwhite()
	switch {
	case pt.Type == PP_HEADER_NAME:
		name, kind, ok = pt.Text[1:len(pt.Text)-1], IncludeAngled, true
	case pt.Type == PP_STRING && strings.HasPrefix(pt.Text, `"`) && len(pt.Text) >= 2:
		name, kind, ok = pt.Text[1:len(pt.Text)-1], IncludeQuoted, true
	case pt.Type == PP_PUNCTUATOR && pt.Text == "<":
		var sb strings.Builder
		for {
			t := p.expandedToken()
			if t.Type == PP_NEWLINE || t.Type == PP_EOF {
				p.syntaxf(t.Token, "Unterminated header name")
				return "", kind, false, t
			}
			if t.Type == PP_PUNCTUATOR && t.Text == ">" {
				break
			}
			sb.WriteString(t.Text)
		}
		name, kind, ok = sb.String(), IncludeAngled, true
	case pt.Type == PP_NEWLINE || pt.Type == PP_EOF:
		p.syntaxf(pt.Token, "Expected string or header, not end of line")
		return "", kind, false, pt
	default:
		p.syntaxf(pt.Token, "Expected string or header, not %s", pt.Text)
	}
	for {
		end = p.expandedToken()
		if end.Type == PP_NEWLINE || end.Type == PP_EOF {
			return name, kind, ok, end
		}
	}
}

// openInclude resolves and loads an included file. It returns nil when
// nothing is to be pushed.
func (p *Preprocessor) openInclude(at Token, name string, kind IncludeKind, next bool) *LexerSource {
	path, err := p.resolver.Resolve(name, kind, at.Loc.File, next)
	if err != nil {
		p.errorf(at, "%v", err)
		return nil
	}
	if p.onceSeen.Has(path) {
		p.debug(logrus.Fields{"path": path}, "pp: include skipped by #pragma once")
		return nil
	}
	if p.includeDepth() >= MaxIncludeDepth {
		p.errorf(at, "#include nested too deeply")
		return nil
	}
	toks, lexErrs, err := p.resolver.Load(path)
	if err != nil {
		p.errorf(at, "%v", err)
		return nil
	}
	p.reportLexErrors(lexErrs)
	p.debug(logrus.Fields{"name": name, "path": path}, "pp: include")
	return NewLexerSource(path, toks, false)
}
