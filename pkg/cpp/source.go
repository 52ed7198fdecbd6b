package cpp

import "fmt"

// Source supplies tokens to the preprocessor. Sources are stacked; when
// an autopop source is exhausted it is removed and reading continues
// with the one below it. A source that is not autopop reports PP_EOF
// instead.
type Source interface {
	Next() TokenS
	// Autopop reports whether the source is popped when exhausted.
	Autopop() bool
	// Root reports whether the tokens are part of the preprocessor's
	// original input.
	Root() bool
	// Synthetic reports whether the tokens were made by expansion rather
	// than read from text.
	Synthetic() bool
	Close()
	fmt.Stringer
}

// tokenSource is a Source over a prepared slice.
type tokenSource struct {
	toks    []TokenS
	pos     int
	eof     Token
	autopop bool
	closed  bool
}

func (s *tokenSource) Next() TokenS {
	if s.closed || s.pos >= len(s.toks) {
		return S(s.eof)
	}
	s.pos++
	return s.toks[s.pos-1]
}

func (s *tokenSource) Autopop() bool   { return s.autopop }
func (s *tokenSource) Root() bool      { return false }
func (s *tokenSource) Synthetic() bool { return false }
func (s *tokenSource) Close()          { s.closed = true }

// remaining returns the tokens not yet read.
func (s *tokenSource) remaining() []TokenS { return s.toks[s.pos:] }

func eofAfter(toks []Token, file string) Token {
	loc := SourceLoc{File: file, Line: 1, Column: 1}
	if n := len(toks); n > 0 {
		loc = toks[n-1].Loc
	}
	return Token{Type: PP_EOF, Loc: loc}
}

// LexerSource reads the tokens of one file. The whole file is lexed
// when the source is made.
type LexerSource struct {
	tokenSource
	Path string
	root bool
}

// NewLexerSource wraps the lexed tokens of the file at path.
func NewLexerSource(path string, toks []Token, root bool) *LexerSource {
	ts := make([]TokenS, len(toks))
	for i, t := range toks {
		ts[i] = S(t)
	}
	return &LexerSource{
		tokenSource: tokenSource{toks: ts, eof: eofAfter(toks, path), autopop: true},
		Path:        path,
		root:        root,
	}
}

func (s *LexerSource) Root() bool { return s.root }

func (s *LexerSource) String() string { return "file " + s.Path }

// FixedTokenSource replays a fixed list of tokens.
type FixedTokenSource struct {
	tokenSource
	synthetic bool
}

// NewFixedTokenSource returns a source over toks. Argument pre-expansion
// uses a non-autopop source so that the end of the argument reads as
// PP_EOF.
func NewFixedTokenSource(toks []TokenS, autopop, synthetic bool) *FixedTokenSource {
	var eof Token
	if n := len(toks); n > 0 {
		eof = Token{Type: PP_EOF, Loc: toks[n-1].Loc}
	}
	return &FixedTokenSource{
		tokenSource: tokenSource{toks: toks, eof: eof, autopop: autopop},
		synthetic:   synthetic,
	}
}

func (s *FixedTokenSource) Synthetic() bool { return s.synthetic }

func (s *FixedTokenSource) String() string { return fmt.Sprintf("fixed tokens %q", SText(s.toks)) }

// MacroTokenSource holds the materialized expansion of one macro call.
type MacroTokenSource struct {
	tokenSource
	Macro   *Macro
	Mapping []MapSeg
}

func (s *MacroTokenSource) Synthetic() bool { return true }

func (s *MacroTokenSource) String() string { return "expansion of " + s.Macro.Name }

// RestTokenSource feeds a pending token stream back into a preprocessor
// during replay.
type RestTokenSource struct {
	tokenSource
}

// NewRestTokenSource returns a non-autopop source over rest.
func NewRestTokenSource(rest []TokenS) *RestTokenSource {
	var eof Token
	if n := len(rest); n > 0 {
		eof = Token{Type: PP_EOF, Loc: rest[n-1].Loc}
	}
	return &RestTokenSource{tokenSource{toks: rest, eof: eof}}
}

func (s *RestTokenSource) String() string { return "replay" }
