package cpp

import (
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/pkg/errors"
)

// MacroKind distinguishes object-like, function-like and built-in macros.
type MacroKind int

const (
	MacroObject MacroKind = iota
	MacroFunction
	MacroBuiltin
)

// Builtin identifies the predefined macros whose value is computed at the
// point of use.
type Builtin int

const (
	BuiltinNone Builtin = iota
	BuiltinLine
	BuiltinFile
	BuiltinCounter
)

// Macro is a macro definition. Replacement holds the body with parameter
// references encoded as PP_MACRO_ARG, PP_MACRO_STRING and PP_MACRO_PASTE
// tokens. Runs of whitespace in the body are a single " " token.
type Macro struct {
	Name        string
	Kind        MacroKind
	Params      []string
	IsVariadic  bool
	Replacement []Token
	Builtin     Builtin
	Loc         SourceLoc
}

// IsFunctionLike reports whether the macro takes arguments.
func (m *Macro) IsFunctionLike() bool { return m.Kind == MacroFunction }

// Equal compares two definitions, ignoring where they were made.
func (m *Macro) Equal(o *Macro) bool {
	if m == o {
		return true
	}
	if m == nil || o == nil {
		return false
	}
	if m.Name != o.Name || m.Kind != o.Kind || m.IsVariadic != o.IsVariadic ||
		m.Builtin != o.Builtin || len(m.Params) != len(o.Params) ||
		len(m.Replacement) != len(o.Replacement) {
		return false
	}
	for i := range m.Params {
		if m.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range m.Replacement {
		a, b := m.Replacement[i], o.Replacement[i]
		if !a.Equal(b) || a.Index != b.Index {
			return false
		}
	}
	return true
}

// Text renders the body back in source form.
func (m *Macro) Text() string {
	var sb strings.Builder
	for _, tok := range m.Replacement {
		switch tok.Type {
		case PP_MACRO_ARG:
			sb.WriteString(m.Params[tok.Index])
		case PP_MACRO_STRING:
			sb.WriteString("#" + m.Params[tok.Index])
		case PP_MACRO_PASTE:
			sb.WriteString(" ## ")
		default:
			sb.WriteString(tok.Text)
		}
	}
	return sb.String()
}

// MacroTable maps names to definitions. It is a persistent value: Define
// and Undefine return a new table and leave the receiver untouched, so
// environment snapshots can share it freely.
type MacroTable struct {
	m *immutable.SortedMap[string, *Macro]
}

var builtinMacros = []*Macro{
	{Name: "__LINE__", Kind: MacroBuiltin, Builtin: BuiltinLine},
	{Name: "__FILE__", Kind: MacroBuiltin, Builtin: BuiltinFile},
	{Name: "__COUNTER__", Kind: MacroBuiltin, Builtin: BuiltinCounter},
}

// NewMacroTable returns a table holding the predefined macros.
func NewMacroTable() MacroTable {
	t := MacroTable{m: immutable.NewSortedMap[string, *Macro](nil)}
	for _, b := range builtinMacros {
		t = t.Define(b)
	}
	return t
}

// Lookup returns the definition of name, or nil.
func (t MacroTable) Lookup(name string) *Macro {
	if t.m == nil {
		return nil
	}
	m, _ := t.m.Get(name)
	return m
}

// IsDefined reports whether name has a definition.
func (t MacroTable) IsDefined(name string) bool {
	return t.Lookup(name) != nil
}

// Define returns a table with m added, replacing any previous definition.
func (t MacroTable) Define(m *Macro) MacroTable {
	if t.m == nil {
		t.m = immutable.NewSortedMap[string, *Macro](nil)
	}
	return MacroTable{m: t.m.Set(m.Name, m)}
}

// Undefine returns a table without name.
func (t MacroTable) Undefine(name string) MacroTable {
	if t.m == nil {
		return t
	}
	return MacroTable{m: t.m.Delete(name)}
}

// Len returns the number of definitions, built-ins included.
func (t MacroTable) Len() int {
	if t.m == nil {
		return 0
	}
	return t.m.Len()
}

// Names returns the defined names in sorted order.
func (t MacroTable) Names() []string {
	var names []string
	if t.m == nil {
		return names
	}
	itr := t.m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		names = append(names, k)
	}
	return names
}

// Equal compares two tables definition by definition.
func (t MacroTable) Equal(o MacroTable) bool {
	if t.m == o.m {
		return true
	}
	if t.Len() != o.Len() {
		return false
	}
	if t.m == nil || o.m == nil {
		return true
	}
	itr := t.m.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		ov, ok := o.m.Get(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// semanticError is a #define error on a well-formed line.
type semanticError string

func (e semanticError) Error() string { return string(e) }

// ParseMacro builds a definition from the tokens of a #define line.
// name is the macro name token and rest holds every token after it up to,
// not including, the newline.
func ParseMacro(name Token, rest []Token) (*Macro, error) {
	if name.Type != PP_IDENTIFIER {
		return nil, errors.Errorf("Expected identifier, not %s", name.Text)
	}
	if name.Text == "defined" {
		return nil, semanticError("Cannot redefine name 'defined'")
	}
	m := &Macro{Name: name.Text, Kind: MacroObject, Loc: name.Loc}

	i := 0
	if len(rest) > 0 && rest[0].Type == PP_PUNCTUATOR && rest[0].Text == "(" {
		m.Kind = MacroFunction
		n, err := m.parseParams(rest[1:])
		if err != nil {
			return nil, err
		}
		i = n + 1
	}

	body, err := m.parseBody(rest[i:])
	if err != nil {
		return nil, err
	}
	m.Replacement = body
	return m, nil
}

// parseParams reads a parameter list up to and including ')', returning
// the number of tokens consumed.
func (m *Macro) parseParams(toks []Token) (int, error) {
	m.Params = []string{}
	i := 0
	next := func() (Token, bool) {
		for i < len(toks) && toks[i].IsWhite() {
			i++
		}
		if i >= len(toks) {
			return Token{}, false
		}
		i++
		return toks[i-1], true
	}

	tok, ok := next()
	if ok && tok.Text == ")" {
		return i, nil
	}
	for {
		if !ok {
			return 0, errors.New("Missing ) in macro parameter list")
		}
		if m.IsVariadic {
			return 0, semanticError("ellipsis must be on last argument")
		}
		switch {
		case tok.Type == PP_PUNCTUATOR && tok.Text == "...":
			m.Params = append(m.Params, "__VA_ARGS__")
			m.IsVariadic = true
		case tok.Type == PP_IDENTIFIER:
			for _, p := range m.Params {
				if p == tok.Text {
					return 0, errors.Errorf("Duplicate macro parameter %s", tok.Text)
				}
			}
			m.Params = append(m.Params, tok.Text)
			// GNU named variadic: name...
			if i < len(toks) && toks[i].Text == "..." {
				i++
				m.IsVariadic = true
			}
		default:
			return 0, errors.Errorf("Expected identifier, not %s", tok.Text)
		}

		tok, ok = next()
		if !ok {
			return 0, errors.New("Missing ) in macro parameter list")
		}
		if tok.Text == ")" {
			return i, nil
		}
		if tok.Text != "," {
			return 0, errors.Errorf("Bad token in macro parameters: %s", tok.Text)
		}
		tok, ok = next()
	}
}

func (m *Macro) paramIndex(name string) int {
	if m.Kind != MacroFunction {
		return -1
	}
	for i, p := range m.Params {
		if p == name {
			return i
		}
	}
	return -1
}

func (m *Macro) parseBody(toks []Token) ([]Token, error) {
	var body []Token
	space := false
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok.IsWhite() {
			space = len(body) > 0
			continue
		}
		// Whitespace next to ## is dropped.
		if space && tok.Type != PP_HASHHASH && body[len(body)-1].Type != PP_MACRO_PASTE {
			body = append(body, Token{Type: PP_WHITESPACE, Text: " ", Loc: tok.Loc})
		}
		space = false

		switch {
		case tok.Type == PP_HASHHASH:
			if len(body) == 0 {
				return nil, errors.New("'##' cannot appear at either end of a macro expansion")
			}
			body = append(body, Token{Type: PP_MACRO_PASTE, Text: "##", Loc: tok.Loc})
		case tok.Type == PP_PUNCTUATOR && tok.Text == "#" && m.Kind == MacroFunction:
			j := i + 1
			for j < len(toks) && toks[j].IsWhite() {
				j++
			}
			if j >= len(toks) || toks[j].Type != PP_IDENTIFIER || m.paramIndex(toks[j].Text) < 0 {
				return nil, errors.New("'#' is not followed by a macro parameter")
			}
			body = append(body, Token{Type: PP_MACRO_STRING, Text: toks[j].Text, Loc: tok.Loc, Index: m.paramIndex(toks[j].Text)})
			i = j
		case tok.Type == PP_IDENTIFIER && m.paramIndex(tok.Text) >= 0:
			body = append(body, Token{Type: PP_MACRO_ARG, Text: tok.Text, Loc: tok.Loc, Index: m.paramIndex(tok.Text)})
		default:
			body = append(body, tok)
		}
	}
	return body, nil
}

// ParseDefineArg parses a command-line definition of the form name,
// name=value or name(params)=body. A bare name is defined as 1.
func ParseDefineArg(arg string) (*Macro, error) {
	def := arg
	if eq := strings.IndexByte(arg, '='); eq >= 0 {
		def = arg[:eq] + " " + arg[eq+1:]
	} else {
		def = arg + " 1"
	}
	toks, _ := Lex(def, "<command-line>")
	if len(toks) == 0 {
		return nil, errors.Errorf("empty macro definition %q", arg)
	}
	return ParseMacro(toks[0], toks[1:])
}
