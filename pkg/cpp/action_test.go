package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrite(t *testing.T) {
	x := NewDisables("X")
	seq := &ActionSequence{Actions: []Action{
		&Skip{Token: tokS("a")[0]},
		&Replace{Original: tokS("X"), Mapping: []MapSeg{&New{Tokens: Plain(tokS("b", "c"))}}, Disables: x},
		&Skip{Token: tokS("b")[0].WithDisables(x)},
		&Replace{Original: []TokenS{tokS("c")[0].WithDisables(x)}},
	}}
	out, err := seq.Rewrite(tokS("a", "X"))
	require.NoError(t, err)
	assert.Equal(t, "ab", SText(out))
	assert.True(t, out[1].Disables.Contains("X"))
	assert.Equal(t, 2, seq.NumProduced())
	assert.Equal(t, "ab", SText(seq.Produced()))

	_, err = seq.Rewrite(tokS("b", "X"))
	assert.Error(t, err)

	_, err = seq.Rewrite(tokS("a", "X", "d"))
	assert.EqualError(t, err, "1 tokens left unconsumed")
}

func TestReplaceProcessed(t *testing.T) {
	f := NewDisables("f")
	arg := &ActionSequence{Actions: []Action{&Skip{Token: tokS("p")[0]}}}
	r := &Replace{
		Original: tokS("f", "(", "p", ")"),
		Mapping:  []MapSeg{&New{Tokens: Plain(tokS("["))}, &Sub{Indices: []int{2}, Actions: arg}, &New{Tokens: Plain(tokS("]"))}},
		Disables: f,
	}
	got := r.Processed()
	assert.Equal(t, "[p]", SText(got))
	for _, tok := range got {
		assert.True(t, tok.Disables.Contains("f"))
	}
	assert.Equal(t, 1, segLen(r.Mapping[1]))
	assert.Empty(t, (&Replace{Original: tokS("a")}).Processed())
}
