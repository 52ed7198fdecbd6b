package cpp

import (
	"sort"
	"strings"
)

// Disables is the multiset of macro names that may not expand a token.
// Values are immutable; every operation returns a new set.
type Disables struct {
	names []string // sorted, duplicates allowed
}

// NewDisables returns a multiset holding names.
func NewDisables(names ...string) Disables {
	if len(names) == 0 {
		return Disables{}
	}
	s := append([]string(nil), names...)
	sort.Strings(s)
	return Disables{names: s}
}

// Len returns the number of elements, counting duplicates.
func (d Disables) Len() int { return len(d.names) }

// Names returns the elements in sorted order.
func (d Disables) Names() []string { return append([]string(nil), d.names...) }

// Contains reports whether name occurs at least once.
func (d Disables) Contains(name string) bool {
	i := sort.SearchStrings(d.names, name)
	return i < len(d.names) && d.names[i] == name
}

// Add returns d with one more occurrence of name.
func (d Disables) Add(name string) Disables {
	return d.Union(Disables{names: []string{name}})
}

// Union returns the multiset sum of d and o.
func (d Disables) Union(o Disables) Disables {
	if len(o.names) == 0 {
		return d
	}
	if len(d.names) == 0 {
		return o
	}
	out := make([]string, 0, len(d.names)+len(o.names))
	i, j := 0, 0
	for i < len(d.names) && j < len(o.names) {
		if d.names[i] <= o.names[j] {
			out = append(out, d.names[i])
			i++
		} else {
			out = append(out, o.names[j])
			j++
		}
	}
	out = append(out, d.names[i:]...)
	out = append(out, o.names[j:]...)
	return Disables{names: out}
}

// Minus removes one occurrence of each element of o. Elements of o
// missing from d are ignored.
func (d Disables) Minus(o Disables) Disables {
	if len(o.names) == 0 || len(d.names) == 0 {
		return d
	}
	out := make([]string, 0, len(d.names))
	j := 0
	for _, n := range d.names {
		for j < len(o.names) && o.names[j] < n {
			j++
		}
		if j < len(o.names) && o.names[j] == n {
			j++
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return Disables{}
	}
	return Disables{names: out}
}

// Equal reports multiset equality.
func (d Disables) Equal(o Disables) bool {
	if len(d.names) != len(o.names) {
		return false
	}
	for i := range d.names {
		if d.names[i] != o.names[i] {
			return false
		}
	}
	return true
}

func (d Disables) String() string {
	return "{" + strings.Join(d.names, ",") + "}"
}

// TokenS is a token together with its disables.
type TokenS struct {
	Token
	Disables Disables
}

// S wraps tok with an empty disables set.
func S(tok Token) TokenS {
	return TokenS{Token: tok}
}

// Equal compares type, text and disables.
func (t TokenS) Equal(o TokenS) bool {
	return t.Token.Equal(o.Token) && t.Disables.Equal(o.Disables)
}

// WithDisables returns t with d added to its disables.
func (t TokenS) WithDisables(d Disables) TokenS {
	t.Disables = t.Disables.Union(d)
	return t
}

// WithoutDisables returns t with one occurrence of each element of d removed.
func (t TokenS) WithoutDisables(d Disables) TokenS {
	t.Disables = t.Disables.Minus(d)
	return t
}

func (t TokenS) String() string {
	if t.Disables.Len() == 0 {
		return t.Token.String()
	}
	return t.Token.String() + t.Disables.String()
}

// SText concatenates the spellings of toks.
func SText(toks []TokenS) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Plain strips the disables from toks.
func Plain(toks []TokenS) []Token {
	out := make([]Token, len(toks))
	for i, t := range toks {
		out[i] = t.Token
	}
	return out
}

// TokenList is a persistent singly linked list of TokenS. The nil
// *TokenList is the empty list. Lists share tails, so prepending and
// dropping never copy the remainder.
type TokenList struct {
	head TokenS
	tail *TokenList
	n    int
}

// ListOf builds a list holding toks in order.
func ListOf(toks []TokenS) *TokenList {
	return (*TokenList)(nil).Prepend(toks)
}

// Len returns the number of tokens in the list.
func (l *TokenList) Len() int {
	if l == nil {
		return 0
	}
	return l.n
}

// Head returns the first token. It panics on the empty list.
func (l *TokenList) Head() TokenS { return l.head }

// Tail returns the list without its first token.
func (l *TokenList) Tail() *TokenList {
	if l == nil {
		return nil
	}
	return l.tail
}

// Cons returns t followed by l.
func (l *TokenList) Cons(t TokenS) *TokenList {
	return &TokenList{head: t, tail: l, n: l.Len() + 1}
}

// Prepend returns toks followed by l.
func (l *TokenList) Prepend(toks []TokenS) *TokenList {
	for i := len(toks) - 1; i >= 0; i-- {
		l = l.Cons(toks[i])
	}
	return l
}

// Drop returns l without its first n tokens.
func (l *TokenList) Drop(n int) *TokenList {
	for ; n > 0 && l != nil; n-- {
		l = l.tail
	}
	return l
}

// Slice copies the list into a slice.
func (l *TokenList) Slice() []TokenS {
	out := make([]TokenS, 0, l.Len())
	for ; l != nil; l = l.tail {
		out = append(out, l.head)
	}
	return out
}

// Equal compares two lists element by element.
func (l *TokenList) Equal(o *TokenList) bool {
	if l.Len() != o.Len() {
		return false
	}
	for l != o {
		if !l.head.Equal(o.head) {
			return false
		}
		l, o = l.tail, o.tail
	}
	return true
}
