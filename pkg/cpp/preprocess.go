// preprocess.go implements the main preprocessor driver.
package cpp

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// PreprocessorOptions configures the preprocessor.
type PreprocessorOptions struct {
	Fs             afero.Fs // nil means the OS filesystem
	IncludePaths   []string // -I directories
	QuotePaths     []string // -iquote directories
	FrameworkPaths []string // -F directories
	Defines        []string // -D definitions
	Undefines      []string // -U undefinitions
	Features       Features
	Warnings       Warnings
	NoWarnings     bool // -w
	Listener       Listener
	Logger         logrus.FieldLogger
}

// ptoken is a token read from a source, with what ungetToken needs to
// undo the read.
type ptoken struct {
	TokenS
	added     bool
	root      bool
	synthetic bool
}

// Preprocessor is a pull-based C preprocessor that records every step it
// takes. It is not safe for concurrent use; separate instances are
// independent.
type Preprocessor struct {
	resolver   *IncludeResolver
	features   Features
	warnings   Warnings
	noWarnings bool
	listener   Listener
	log        logrus.FieldLogger

	// environment
	macros   MacroTable
	states   *StateStack
	counter  int
	onceSeen PathSet

	inputs    []Source
	sources   []Source
	pushback  []ptoken
	markers   []Token
	held      *TokenS      // output waiting for queued markers
	include   *LexerSource // pushed before the next read
	collector *ActionCollector
	passLine  bool
	err       error
	atEnd     bool
}

// NewPreprocessor creates a new preprocessor instance.
func NewPreprocessor(opts PreprocessorOptions) (*Preprocessor, error) {
	resolver := NewIncludeResolver(opts.Fs)
	resolver.SystemPaths = append(resolver.SystemPaths, opts.IncludePaths...)
	resolver.QuotePaths = append(resolver.QuotePaths, opts.QuotePaths...)
	resolver.FrameworkPaths = append(resolver.FrameworkPaths, opts.FrameworkPaths...)

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Preprocessor{
		resolver:   resolver,
		features:   opts.Features,
		warnings:   opts.Warnings,
		noWarnings: opts.NoWarnings,
		listener:   opts.Listener,
		log:        log,
	}
	p.setEnv(NewEnvironment())

	for _, d := range opts.Defines {
		m, err := ParseDefineArg(d)
		if err != nil {
			return nil, errors.Wrapf(err, "-D%s", d)
		}
		p.macros = p.macros.Define(m)
	}
	for _, u := range opts.Undefines {
		p.macros = p.macros.Undefine(u)
	}
	p.collector = NewActionCollector(p.Env)
	return p, nil
}

// Clone returns a preprocessor with the same configuration and include
// cache but fresh state. Diagnostics of the clone go to listener.
func (p *Preprocessor) Clone(listener Listener) *Preprocessor {
	c := &Preprocessor{
		resolver:   p.resolver,
		features:   p.features,
		warnings:   p.warnings,
		noWarnings: p.noWarnings,
		listener:   listener,
		log:        p.log,
	}
	c.setEnv(NewEnvironment())
	c.collector = NewActionCollector(c.Env)
	return c
}

// Resolver returns the include resolver.
func (p *Preprocessor) Resolver() *IncludeResolver { return p.resolver }

// Env snapshots the current environment.
func (p *Preprocessor) Env() Environment {
	return Environment{Macros: p.macros, States: p.states, Counter: p.counter, OnceSeen: p.onceSeen}
}

func (p *Preprocessor) setEnv(env Environment) {
	p.macros, p.states, p.counter, p.onceSeen = env.Macros, env.States, env.Counter, env.OnceSeen
}

// Macros returns the current macro table.
func (p *Preprocessor) Macros() MacroTable { return p.macros }

// AddMacro defines m.
func (p *Preprocessor) AddMacro(m *Macro) { p.macros = p.macros.Define(m) }

// AddInput queues the file at path as input.
func (p *Preprocessor) AddInput(path string) error {
	toks, lexErrs, err := p.resolver.Load(path)
	if err != nil {
		return err
	}
	p.reportLexErrors(lexErrs)
	p.inputs = append(p.inputs, NewLexerSource(path, toks, true))
	return nil
}

// AddInputString queues text as input named name.
func (p *Preprocessor) AddInputString(text, name string) {
	toks, lexErrs := Lex(text, name)
	p.reportLexErrors(lexErrs)
	p.inputs = append(p.inputs, NewLexerSource(name, toks, true))
}

// Install discards all pending input and state, sets the environment to
// env and makes rest the only input. The trace restarts empty.
func (p *Preprocessor) Install(env Environment, rest []TokenS) {
	p.Close()
	p.inputs, p.pushback, p.markers = nil, nil, nil
	p.held, p.include = nil, nil
	p.passLine, p.err, p.atEnd = false, nil, false
	p.setEnv(env)
	p.collector = NewActionCollector(p.Env)
	p.push(NewRestTokenSource(rest))
}

// Close closes every source still on the stack.
func (p *Preprocessor) Close() {
	for len(p.sources) > 0 {
		p.pop()
	}
}

// Trace returns the actions recorded so far.
func (p *Preprocessor) Trace() *ActionSequence { return p.collector.Sequence() }

// Original returns the input tokens read so far.
func (p *Preprocessor) Original() []TokenS { return p.collector.Original() }

// Token returns the next output token. The end of output is a PP_EOF
// token. Linemarkers, when enabled, are PP_LINEMARKER tokens and are not
// part of the trace.
func (p *Preprocessor) Token() (TokenS, error) {
	for {
		if p.err != nil {
			return TokenS{}, p.err
		}
		if len(p.markers) > 0 {
			m := p.markers[0]
			p.markers = p.markers[1:]
			return S(m), nil
		}
		if p.held != nil {
			tok := *p.held
			p.held = nil
			p.debug(logrus.Fields{"token": tok.String(), "line": tok.Loc.Line}, "pp: returning token")
			return tok, nil
		}
		if tok, ok := p.next(); ok {
			p.held = &tok
		}
	}
}

// All reads every remaining output token, dropping linemarkers and the
// final PP_EOF.
func (p *Preprocessor) All() ([]TokenS, error) {
	var out []TokenS
	for {
		tok, err := p.Token()
		if err != nil {
			return out, err
		}
		switch tok.Type {
		case PP_EOF:
			return out, nil
		case PP_LINEMARKER:
			continue
		}
		out = append(out, tok)
	}
}

// next performs one step of the control loop. ok is false when the step
// consumed input without producing output.
func (p *Preprocessor) next() (TokenS, bool) {
	if p.passLine {
		pt := p.sourceToken()
		if pt.Type == PP_EOF {
			p.passLine = false
			return TokenS{}, false
		}
		if pt.Type == PP_NEWLINE {
			p.passLine = false
		}
		p.collector.skipLast()
		return pt.TokenS, true
	}

	active := p.states.Top().IsActive()
	pt := p.sourceToken()
	switch pt.Type {
	case PP_EOF:
		p.checkUnterminated(pt.Token)
		return pt.TokenS, true
	case PP_HASH:
		return p.directive(pt)
	case PP_COMMENT, PP_LINE_COMMENT:
		keep := p.features.Has(FeatureKeepAllComments) || (active && p.features.Has(FeatureKeepComments))
		return p.comment(pt.TokenS, keep)
	case PP_WHITESPACE, PP_NEWLINE:
		p.collector.skipLast()
		return pt.TokenS, true
	}
	if !active {
		p.collector.deleteAll()
		return TokenS{}, false
	}
	if pt.Type == PP_IDENTIFIER {
		if m := p.macros.Lookup(pt.Text); m != nil && !pt.Disables.Contains(m.Name) && p.macro(pt, m) {
			return TokenS{}, false
		}
	}
	p.collector.skipLast()
	return pt.TokenS, true
}

func (p *Preprocessor) checkUnterminated(eof Token) {
	if p.atEnd || len(p.sources) > 0 || p.states.Depth() == 1 {
		return
	}
	p.atEnd = true
	p.errorf(eof, "Unterminated conditional at end of input")
}

// comment either keeps a comment or replaces it by whitespace holding
// the same number of newlines.
func (p *Preprocessor) comment(tok TokenS, keep bool) (TokenS, bool) {
	if keep {
		p.collector.skipLast()
		return tok, true
	}
	ws := Token{Type: PP_WHITESPACE, Text: commentWhitespace(tok.Text), Loc: tok.Loc}
	p.collector.replaceWithNewTokens([]Token{ws}, tok.Disables)
	out := TokenS{Token: ws, Disables: tok.Disables}
	p.collector.directInsert(&Skip{Token: out})
	return out, true
}

func commentWhitespace(text string) string {
	nl := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			nl++
		}
	}
	if nl == 0 {
		return " "
	}
	b := make([]byte, nl)
	for i := range b {
		b[i] = '\n'
	}
	return string(b)
}

func (p *Preprocessor) top() Source {
	if len(p.sources) == 0 {
		return nil
	}
	return p.sources[len(p.sources)-1]
}

func (p *Preprocessor) push(s Source) {
	p.sources = append(p.sources, s)
	p.debug(logrus.Fields{"source": s.String(), "depth": len(p.sources)}, "pp: push source")
	if ls, ok := s.(*LexerSource); ok && p.features.Has(FeatureLinemarkers) {
		flag := ""
		if !ls.Root() {
			flag = " 1"
		}
		p.markers = append(p.markers, lineMarker(1, ls.Path, flag))
	}
}

func (p *Preprocessor) pop() {
	s := p.top()
	s.Close()
	p.sources = p.sources[:len(p.sources)-1]
	p.debug(logrus.Fields{"source": s.String(), "depth": len(p.sources)}, "pp: pop source")

	ls, ok := s.(*LexerSource)
	if !ok || ls.Root() || !p.features.Has(FeatureLinemarkers) {
		return
	}
	for i := len(p.sources) - 1; i >= 0; i-- {
		if parent, ok := p.sources[i].(*LexerSource); ok {
			line := parent.eof.Loc.Line
			if rest := parent.remaining(); len(rest) > 0 {
				line = rest[0].Loc.Line
			}
			p.markers = append(p.markers, lineMarker(line, parent.Path, " 2"))
			return
		}
	}
}

func lineMarker(line int, path, flag string) Token {
	return Token{Type: PP_LINEMARKER, Text: fmt.Sprintf("# %d %q%s\n", line, path, flag)}
}

// includeDepth counts the files on the source stack.
func (p *Preprocessor) includeDepth() int {
	n := 0
	for _, s := range p.sources {
		if _, ok := s.(*LexerSource); ok {
			n++
		}
	}
	return n
}

// sourceToken reads the next raw token, honoring pushback. Exhausted
// autopop sources are popped; when the stack runs dry the next queued
// input is started.
func (p *Preprocessor) sourceToken() ptoken {
	if p.include != nil {
		p.push(p.include)
		p.include = nil
	}
	if n := len(p.pushback); n > 0 {
		pt := p.pushback[n-1]
		p.pushback = p.pushback[:n-1]
		pt.added = p.collector.getToken(pt.TokenS, pt.root, pt.synthetic)
		return pt
	}
	for {
		s := p.top()
		if s == nil {
			if len(p.inputs) == 0 {
				return ptoken{TokenS: S(Token{Type: PP_EOF})}
			}
			p.push(p.inputs[0])
			p.inputs = p.inputs[1:]
			continue
		}
		tok := s.Next()
		if tok.Type == PP_EOF && s.Autopop() {
			p.pop()
			continue
		}
		pt := ptoken{TokenS: tok, root: s.Root(), synthetic: s.Synthetic()}
		pt.added = p.collector.getToken(tok, pt.root, pt.synthetic)
		return pt
	}
}

// sourceTokenNonwhite reads raw tokens until one is not whitespace or a
// comment.
func (p *Preprocessor) sourceTokenNonwhite() ptoken {
	for {
		pt := p.sourceToken()
		if !pt.IsWhite() {
			return pt
		}
	}
}

// ungetToken pushes pt back so the next read returns it again.
func (p *Preprocessor) ungetToken(pt ptoken) {
	if pt.Type == PP_EOF || pt.Type == PP_LINEMARKER {
		return
	}
	p.collector.ungetToken(pt.added, pt.root)
	p.pushback = append(p.pushback, pt)
}

// expandedToken reads a token, expanding macro invocations first.
func (p *Preprocessor) expandedToken() ptoken {
	for {
		pt := p.sourceToken()
		if pt.Type == PP_IDENTIFIER {
			if m := p.macros.Lookup(pt.Text); m != nil && !pt.Disables.Contains(m.Name) && p.macro(pt, m) {
				continue
			}
		}
		return pt
	}
}

func (p *Preprocessor) expandedTokenNonwhite() ptoken {
	for {
		pt := p.expandedToken()
		if !pt.IsWhite() {
			return pt
		}
	}
}

func (p *Preprocessor) report(kind DiagnosticKind, loc SourceLoc, format string, args ...any) {
	if kind == DiagWarning {
		if p.noWarnings {
			return
		}
		if p.warnings.Has(WarningError) {
			kind = DiagSemantic
		}
	}
	d := &Diagnostic{Kind: kind, Loc: loc, Message: fmt.Sprintf(format, args...)}
	if p.listener == nil {
		if p.err == nil {
			p.err = d
		}
		return
	}
	if err := p.listener.Diagnose(d); err != nil && p.err == nil {
		p.err = err
	}
}

func (p *Preprocessor) errorf(tok Token, format string, args ...any) {
	p.report(DiagSemantic, tok.Loc, format, args...)
}

func (p *Preprocessor) syntaxf(tok Token, format string, args ...any) {
	p.report(DiagSyntax, tok.Loc, format, args...)
}

func (p *Preprocessor) warnf(tok Token, format string, args ...any) {
	p.report(DiagWarning, tok.Loc, format, args...)
}

func (p *Preprocessor) reportLexErrors(errs []LexError) {
	for _, e := range errs {
		p.report(DiagLexer, e.Loc, "%s", e.Msg)
	}
}

func (p *Preprocessor) debug(fields logrus.Fields, msg string) {
	if p.features.Has(FeatureDebug) {
		p.log.WithFields(fields).Debug(msg)
	}
}
