package cpp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Action is one recorded preprocessing step: a Skip or a Replace.
//
// The steps form a rewrite system over the pending token stream. A Skip
// emits the token at the front of the stream. A Replace removes its
// Original tokens from the front and puts its processed tokens back in
// their place, where they are rescanned.
type Action interface {
	isAction()
}

// Skip emits Token unchanged.
type Skip struct {
	Token TokenS
}

// Replace rewrites Original into the tokens described by Mapping, each of
// which gains Disables.
type Replace struct {
	Original []TokenS
	Mapping  []MapSeg
	Disables Disables

	processed []TokenS
}

func (*Skip) isAction()    {}
func (*Replace) isAction() {}

// MapSeg is one segment of a Replace mapping: New or Sub.
type MapSeg interface {
	isMapSeg()
}

// New contributes tokens that did not come from the replaced span.
type New struct {
	Tokens []Token
}

// Sub contributes the expansion of a macro argument. Indices locate the
// argument's tokens in the Replace's Original; Actions is the trace of the
// argument's own expansion.
type Sub struct {
	Indices []int
	Actions *ActionSequence
}

func (*New) isMapSeg() {}
func (*Sub) isMapSeg() {}

// Processed returns the tokens the Replace puts back on the stream.
func (r *Replace) Processed() []TokenS {
	if r.processed != nil || len(r.Mapping) == 0 {
		return r.processed
	}
	var out []TokenS
	for _, seg := range r.Mapping {
		switch seg := seg.(type) {
		case *New:
			for _, tok := range seg.Tokens {
				out = append(out, TokenS{Token: tok, Disables: r.Disables})
			}
		case *Sub:
			for _, tok := range seg.Actions.Produced() {
				out = append(out, tok.WithDisables(r.Disables))
			}
		default:
			panic(fmt.Sprintf("cpp: unknown mapping segment %T", seg))
		}
	}
	if out == nil {
		out = []TokenS{}
	}
	r.processed = out
	return out
}

// segLen returns the number of processed tokens seg contributes.
func segLen(seg MapSeg) int {
	switch seg := seg.(type) {
	case *New:
		return len(seg.Tokens)
	case *Sub:
		return seg.Actions.NumProduced()
	}
	panic(fmt.Sprintf("cpp: unknown mapping segment %T", seg))
}

// ActionSequence is a recorded trace. Envs[i] is the environment in
// force before Actions[i]; the last entry is the environment after the
// final action, so len(Envs) == len(Actions)+1.
type ActionSequence struct {
	Actions []Action
	Envs    []Environment
}

// Len returns the number of actions.
func (s *ActionSequence) Len() int { return len(s.Actions) }

// Produced returns the tokens emitted by the Skip actions, in order.
func (s *ActionSequence) Produced() []TokenS {
	out := []TokenS{}
	for _, a := range s.Actions {
		if sk, ok := a.(*Skip); ok {
			out = append(out, sk.Token)
		}
	}
	return out
}

// NumProduced counts the Skip actions.
func (s *ActionSequence) NumProduced() int {
	n := 0
	for _, a := range s.Actions {
		if _, ok := a.(*Skip); ok {
			n++
		}
	}
	return n
}

// Rewrite runs the actions as a rewrite system over input and returns
// the emitted tokens. It fails if an action does not match the stream or
// if input is not fully consumed.
func (s *ActionSequence) Rewrite(input []TokenS) ([]TokenS, error) {
	cur := ListOf(input)
	out := []TokenS{}
	for i, a := range s.Actions {
		next, emitted, err := step(cur, a)
		if err != nil {
			return nil, errors.Wrapf(err, "action %d", i)
		}
		if emitted != nil {
			out = append(out, *emitted)
		}
		cur = next
	}
	if cur.Len() != 0 {
		return nil, errors.Errorf("%d tokens left unconsumed", cur.Len())
	}
	return out, nil
}

// step applies a single action to the pending stream.
func step(cur *TokenList, a Action) (*TokenList, *TokenS, error) {
	switch a := a.(type) {
	case *Skip:
		if cur.Len() == 0 || !cur.Head().Equal(a.Token) {
			return nil, nil, errors.Errorf("skip of %v does not match stream", a.Token)
		}
		t := cur.Head()
		return cur.Tail(), &t, nil
	case *Replace:
		l := cur
		for _, o := range a.Original {
			if l.Len() == 0 || !l.Head().Equal(o) {
				return nil, nil, errors.Errorf("replace of %q does not match stream", SText(a.Original))
			}
			l = l.Tail()
		}
		return l.Prepend(a.Processed()), nil, nil
	}
	panic(fmt.Sprintf("cpp: unknown action %T", a))
}
