// Package cpp implements an invertible C preprocessor.
//
// The preprocessor records every expansion decision it makes in an
// ActionSequence so that edits made to its output can be lifted back to
// the source that produced them (see Backward).
package cpp

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a preprocessing token.
type TokenType int

const (
	PP_EOF TokenType = iota
	PP_IDENTIFIER
	PP_NUMBER
	PP_CHAR_CONST
	PP_STRING
	PP_PUNCTUATOR
	PP_HASH         // # at line start (directive marker)
	PP_HASHHASH     // ## (token pasting)
	PP_NEWLINE      // significant for directive boundaries
	PP_WHITESPACE   // spaces, tabs and backslash-newline splices
	PP_COMMENT      // /* ... */
	PP_LINE_COMMENT // // ...
	PP_HEADER_NAME  // <file> after #include
	PP_MACRO_ARG    // parameter reference in a macro body
	PP_MACRO_STRING // #param in a macro body
	PP_MACRO_PASTE  // ## in a macro body
	PP_LINEMARKER   // synthesized # line "file" marker
)

var tokenTypeNames = [...]string{
	PP_EOF:          "EOF",
	PP_IDENTIFIER:   "IDENTIFIER",
	PP_NUMBER:       "NUMBER",
	PP_CHAR_CONST:   "CHAR_CONST",
	PP_STRING:       "STRING",
	PP_PUNCTUATOR:   "PUNCTUATOR",
	PP_HASH:         "HASH",
	PP_HASHHASH:     "HASHHASH",
	PP_NEWLINE:      "NEWLINE",
	PP_WHITESPACE:   "WHITESPACE",
	PP_COMMENT:      "COMMENT",
	PP_LINE_COMMENT: "LINE_COMMENT",
	PP_HEADER_NAME:  "HEADER_NAME",
	PP_MACRO_ARG:    "M_ARG",
	PP_MACRO_STRING: "M_STRING",
	PP_MACRO_PASTE:  "M_PASTE",
	PP_LINEMARKER:   "P_LINE",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return "UNKNOWN"
}

// SourceLoc represents a position in the source file.
type SourceLoc struct {
	File   string
	Line   int
	Column int
}

func (l SourceLoc) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Token represents a preprocessing token. Text is the exact source
// spelling, so concatenating the texts of a lexed file reproduces it.
type Token struct {
	Type  TokenType
	Text  string
	Loc   SourceLoc
	Index int // parameter index for PP_MACRO_ARG and PP_MACRO_STRING
}

// Equal reports whether two tokens have the same type and spelling.
// Locations are ignored.
func (t Token) Equal(o Token) bool {
	return t.Type == o.Type && t.Text == o.Text
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Text)
}

// IsWhite reports whether the token is whitespace or a comment.
func (t Token) IsWhite() bool {
	switch t.Type {
	case PP_WHITESPACE, PP_COMMENT, PP_LINE_COMMENT:
		return true
	}
	return false
}

// LexError is a malformed-input report produced while lexing.
type LexError struct {
	Loc SourceLoc
	Msg string
}

// Lexer tokenizes C source code into preprocessing tokens. No input byte
// is dropped: comments, splices and carriage returns all end up in some
// token's Text.
type Lexer struct {
	input    string
	pos      int
	line     int
	column   int
	filename string
	atBOL    bool // at beginning of line (for # detection)

	// directive tracks the position inside a directive line so that
	// <...> after #include lexes as a header name.
	directive  int
	wantHeader bool

	Errors []LexError
}

const (
	dirNone = iota
	dirAfterHash
	dirBody
)

// NewLexer creates a new preprocessor lexer.
func NewLexer(input, filename string) *Lexer {
	return &Lexer{
		input:    input,
		line:     1,
		column:   1,
		filename: filename,
		atBOL:    true,
	}
}

// NextToken returns the next preprocessing token.
func (l *Lexer) NextToken() Token {
	if l.pos >= len(l.input) {
		return Token{Type: PP_EOF, Loc: l.loc()}
	}

	c := l.peek()

	if c == '\n' || (c == '\r' && l.peekAt(1) == '\n') {
		tok := l.take(PP_NEWLINE, 1+btoi(c == '\r'))
		l.atBOL = true
		l.directive = dirNone
		l.wantHeader = false
		return tok
	}

	// A splice is kept as its own whitespace token.
	if c == '\\' && (l.peekAt(1) == '\n' || (l.peekAt(1) == '\r' && l.peekAt(2) == '\n')) {
		return l.take(PP_WHITESPACE, 2+btoi(l.peekAt(1) == '\r'))
	}

	if l.isWhitespace(c) {
		return l.scanWhitespace()
	}

	if c == '/' && l.peekAt(1) == '/' {
		return l.scanLineComment()
	}
	if c == '/' && l.peekAt(1) == '*' {
		return l.scanBlockComment()
	}

	tok := l.scanSignificant(c)
	l.atBOL = false
	l.trackDirective(tok)
	return tok
}

func (l *Lexer) scanSignificant(c byte) Token {
	switch {
	case c == '#' && l.peekAt(1) == '#':
		return l.take(PP_HASHHASH, 2)
	case c == '#' && l.atBOL:
		return l.take(PP_HASH, 1)
	case c == '<' && l.wantHeader:
		if end := strings.IndexAny(l.input[l.pos:], ">\n"); end > 0 && l.input[l.pos+end] == '>' {
			return l.take(PP_HEADER_NAME, end+1)
		}
		return l.scanPunctuator()
	case c == '"':
		return l.scanQuoted('"', PP_STRING)
	case c == '\'':
		return l.scanQuoted('\'', PP_CHAR_CONST)
	case (c == 'L' || c == 'u' || c == 'U') && (l.peekAt(1) == '"' || l.peekAt(1) == '\''):
		return l.scanPrefixed(1)
	case c == 'u' && l.peekAt(1) == '8' && l.peekAt(2) == '"':
		return l.scanPrefixed(2)
	case l.isDigit(c) || (c == '.' && l.isDigit(l.peekAt(1))):
		return l.scanNumber()
	case l.isIdentStart(c):
		return l.scanIdentifier()
	}
	return l.scanPunctuator()
}

func (l *Lexer) trackDirective(tok Token) {
	l.wantHeader = false
	switch l.directive {
	case dirNone:
		if tok.Type == PP_HASH {
			l.directive = dirAfterHash
		}
	case dirAfterHash:
		l.directive = dirBody
		if tok.Type == PP_IDENTIFIER {
			switch tok.Text {
			case "include", "include_next", "import":
				l.wantHeader = true
			}
		}
	}
}

// AllTokens returns all tokens from the input, ending with PP_EOF.
func (l *Lexer) AllTokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == PP_EOF {
			break
		}
	}
	return tokens
}

func (l *Lexer) errorf(loc SourceLoc, format string, args ...any) {
	l.Errors = append(l.Errors, LexError{Loc: loc, Msg: fmt.Sprintf(format, args...)})
}

func (l *Lexer) loc() SourceLoc {
	return SourceLoc{File: l.filename, Line: l.line, Column: l.column}
}

func (l *Lexer) peek() byte {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

// take consumes n bytes as a single token of type t.
func (l *Lexer) take(t TokenType, n int) Token {
	loc := l.loc()
	start := l.pos
	for i := 0; i < n; i++ {
		l.advance()
	}
	return Token{Type: t, Text: l.input[start:l.pos], Loc: loc}
}

func (l *Lexer) isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v'
}

func (l *Lexer) isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *Lexer) isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
}

func (l *Lexer) isIdentContinue(c byte) bool {
	return l.isIdentStart(c) || l.isDigit(c)
}

func (l *Lexer) scanWhitespace() Token {
	loc := l.loc()
	start := l.pos
	for l.pos < len(l.input) && l.isWhitespace(l.peek()) {
		if l.peek() == '\r' && l.peekAt(1) == '\n' {
			break
		}
		l.advance()
	}
	return Token{Type: PP_WHITESPACE, Text: l.input[start:l.pos], Loc: loc}
}

func (l *Lexer) scanLineComment() Token {
	loc := l.loc()
	start := l.pos
	for l.pos < len(l.input) && l.peek() != '\n' {
		if l.peek() == '\r' && l.peekAt(1) == '\n' {
			break
		}
		l.advance()
	}
	return Token{Type: PP_LINE_COMMENT, Text: l.input[start:l.pos], Loc: loc}
}

func (l *Lexer) scanBlockComment() Token {
	loc := l.loc()
	start := l.pos
	l.advance()
	l.advance()
	for {
		if l.pos >= len(l.input) {
			l.errorf(loc, "Unterminated comment")
			break
		}
		if l.peek() == '*' && l.peekAt(1) == '/' {
			l.advance()
			l.advance()
			break
		}
		l.advance()
	}
	return Token{Type: PP_COMMENT, Text: l.input[start:l.pos], Loc: loc}
}

// scanQuoted scans a string or character literal. An unescaped newline
// terminates it with an error.
func (l *Lexer) scanQuoted(quote byte, t TokenType) Token {
	loc := l.loc()
	start := l.pos
	l.advance()
	for {
		if l.pos >= len(l.input) || l.peek() == '\n' {
			l.errorf(loc, "Unterminated %s literal", strings.ToLower(t.String()))
			break
		}
		if l.peek() == quote {
			l.advance()
			break
		}
		if l.peek() == '\\' && l.pos+1 < len(l.input) {
			l.advance()
		}
		l.advance()
	}
	return Token{Type: t, Text: l.input[start:l.pos], Loc: loc}
}

// scanPrefixed scans an encoding-prefixed literal such as L"x" or u8"x".
func (l *Lexer) scanPrefixed(prefix int) Token {
	loc := l.loc()
	start := l.pos
	for i := 0; i < prefix; i++ {
		l.advance()
	}
	t := PP_STRING
	quote := l.peek()
	if quote == '\'' {
		t = PP_CHAR_CONST
	}
	lit := l.scanQuoted(quote, t)
	return Token{Type: lit.Type, Text: l.input[start:l.pos], Loc: loc}
}

func (l *Lexer) scanNumber() Token {
	// pp-number: digit | . digit | pp-number (digit | identifier-nondigit | . | [eEpP] sign)
	loc := l.loc()
	start := l.pos
	for l.pos < len(l.input) {
		c := l.peek()
		if !l.isIdentContinue(c) && c != '.' {
			break
		}
		if (c == 'e' || c == 'E' || c == 'p' || c == 'P') && (l.peekAt(1) == '+' || l.peekAt(1) == '-') {
			l.advance()
		}
		l.advance()
	}
	return Token{Type: PP_NUMBER, Text: l.input[start:l.pos], Loc: loc}
}

func (l *Lexer) scanIdentifier() Token {
	loc := l.loc()
	start := l.pos
	for l.pos < len(l.input) && l.isIdentContinue(l.peek()) {
		l.advance()
	}
	return Token{Type: PP_IDENTIFIER, Text: l.input[start:l.pos], Loc: loc}
}

var punctuators = [][]string{
	{"<<=", ">>=", "..."},
	{"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=",
		"&&", "||", "*=", "/=", "%=", "+=", "-=", "&=", "^=", "|="},
}

func (l *Lexer) scanPunctuator() Token {
	rest := l.input[l.pos:]
	for _, group := range punctuators {
		for _, p := range group {
			if strings.HasPrefix(rest, p) {
				return l.take(PP_PUNCTUATOR, len(p))
			}
		}
	}
	return l.take(PP_PUNCTUATOR, 1)
}

// Lex tokenizes input and returns its tokens without the trailing
// PP_EOF, together with any lexer errors.
func Lex(input, filename string) ([]Token, []LexError) {
	l := NewLexer(input, filename)
	toks := l.AllTokens()
	return toks[:len(toks)-1], l.Errors
}

// TokensToString converts a slice of tokens back to source text.
func TokensToString(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Text)
	}
	return sb.String()
}

// IsIdentifier checks if a string is a valid C identifier.
func IsIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	r := rune(s[0])
	if !unicode.IsLetter(r) && r != '_' {
		return false
	}
	for _, r := range s[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
