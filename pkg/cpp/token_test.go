package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisables(t *testing.T) {
	d := NewDisables("b", "a", "b")
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []string{"a", "b", "b"}, d.Names())
	assert.True(t, d.Contains("a"))
	assert.False(t, d.Contains("c"))
	assert.Equal(t, "{a,b,b}", d.String())

	assert.True(t, d.Minus(NewDisables("b")).Equal(NewDisables("a", "b")))
	assert.True(t, d.Minus(NewDisables("b", "b", "z")).Equal(NewDisables("a")))
	assert.True(t, d.Minus(d).Equal(Disables{}))
	assert.True(t, Disables{}.Minus(d).Equal(Disables{}))

	u := NewDisables("a").Union(NewDisables("c", "a"))
	assert.Equal(t, []string{"a", "a", "c"}, u.Names())
	assert.True(t, u.Equal(NewDisables("a", "c").Add("a")))
	assert.False(t, u.Equal(NewDisables("a", "c")))
}

func TestDisablesAreValues(t *testing.T) {
	d := NewDisables("x")
	_ = d.Add("y")
	_ = d.Union(NewDisables("z"))
	assert.Equal(t, []string{"x"}, d.Names())

	names := d.Names()
	names[0] = "changed"
	assert.True(t, d.Contains("x"))
}

func TestTokenSEquality(t *testing.T) {
	x := Token{Type: PP_IDENTIFIER, Text: "x", Loc: SourceLoc{Line: 1}}
	other := Token{Type: PP_IDENTIFIER, Text: "x", Loc: SourceLoc{Line: 9}}

	assert.True(t, S(x).Equal(S(other)), "locations are ignored")
	assert.False(t, S(x).Equal(S(x).WithDisables(NewDisables("m"))))
	assert.True(t, S(x).WithDisables(NewDisables("m")).WithoutDisables(NewDisables("m")).Equal(S(x)))
	assert.False(t, S(x).Equal(S(Token{Type: PP_NUMBER, Text: "x"})))
	assert.Equal(t, `IDENTIFIER("x"){m}`, S(x).WithDisables(NewDisables("m")).String())
}

func tokS(texts ...string) []TokenS {
	out := make([]TokenS, len(texts))
	for i, s := range texts {
		out[i] = S(Token{Type: PP_IDENTIFIER, Text: s})
	}
	return out
}

func TestTokenList(t *testing.T) {
	var empty *TokenList
	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Tail())
	assert.Empty(t, empty.Slice())

	l := ListOf(tokS("a", "b", "c"))
	require.Equal(t, 3, l.Len())
	assert.Equal(t, "a", l.Head().Text)
	assert.Equal(t, "abc", SText(l.Slice()))
	assert.Equal(t, "bc", SText(l.Tail().Slice()))
	assert.Equal(t, "c", SText(l.Drop(2).Slice()))
	assert.Nil(t, l.Drop(5))

	m := l.Drop(1).Prepend(tokS("x", "y"))
	assert.Equal(t, "xybc", SText(m.Slice()))
	assert.Same(t, l.Drop(1), m.Drop(2), "prepending shares the tail")
	assert.Equal(t, "abc", SText(l.Slice()))

	assert.True(t, l.Equal(ListOf(tokS("a", "b", "c"))))
	assert.False(t, l.Equal(ListOf(tokS("a", "b", "d"))))
	assert.False(t, l.Equal(l.Tail()))
	assert.True(t, empty.Equal(ListOf(nil)))
}

func TestPlain(t *testing.T) {
	toks := tokS("a", "b")
	toks[1] = toks[1].WithDisables(NewDisables("m"))
	plain := Plain(toks)
	require.Len(t, plain, 2)
	assert.Equal(t, "b", plain[1].Text)
}
