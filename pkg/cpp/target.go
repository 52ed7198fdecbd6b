package cpp

import (
	"strings"
)

// Target is the post-condition a forward replay has to reach during
// backward propagation. A target is a chain of tokens the replay must
// still output, ending either at the end of input or at an anchor: a
// state of the original run from which the rest is already known to
// replay correctly.
type Target interface {
	// WhenSkip returns the target left after tok is output, or nil if
	// tok is not acceptable here.
	WhenSkip(tok Token) Target
	// Matches reports whether a replay standing at env with rest still
	// pending has reached the target.
	Matches(env Environment, rest *TokenList) bool
	String() string
}

// Terminal is reached once all input is consumed.
type Terminal struct{}

func (Terminal) WhenSkip(Token) Target { return nil }

func (Terminal) Matches(_ Environment, rest *TokenList) bool { return rest.Len() == 0 }

func (Terminal) String() string { return "[]" }

// AfterSkip requires Token to be output before Next applies.
type AfterSkip struct {
	Token Token
	Next  Target
}

// SkipAll returns a target that outputs toks in order and then continues
// with next.
func SkipAll(toks []TokenS, next Target) Target {
	for i := len(toks) - 1; i >= 0; i-- {
		next = &AfterSkip{Token: toks[i].Token, Next: next}
	}
	return next
}

func (t *AfterSkip) WhenSkip(tok Token) Target {
	if t.Token.Equal(tok) {
		return t.Next
	}
	return nil
}

func (*AfterSkip) Matches(Environment, *TokenList) bool { return false }

func (t *AfterSkip) String() string {
	var texts []string
	var cur Target = t
	for {
		s, ok := cur.(*AfterSkip)
		if !ok {
			break
		}
		texts = append(texts, s.Token.Text)
		cur = s.Next
	}
	return "Skip " + strings.Join(texts, "|") + "\n" + cur.String()
}

// EnvAndRest is an anchor: reaching Env with Rest pending means the
// replay has rejoined the original run. Otherwise Fallback applies.
type EnvAndRest struct {
	Env      Environment
	Rest     *TokenList
	Fallback Target
}

func (t *EnvAndRest) WhenSkip(tok Token) Target { return t.Fallback.WhenSkip(tok) }

func (t *EnvAndRest) Matches(env Environment, rest *TokenList) bool {
	if rest.Equal(t.Rest) && env.Equal(t.Env) {
		return true
	}
	return t.Fallback.Matches(env, rest)
}

func (t *EnvAndRest) String() string {
	return "Env at " + SText(t.Rest.Slice()) + "\n" + t.Fallback.String()
}
