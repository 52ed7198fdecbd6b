package cpp

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNotInvertible is returned when an edit of the output has no
// counterpart in the input.
var ErrNotInvertible = errors.New("edit is not invertible")

// Changes is a change vector: entry i is what token i of a stream
// becomes. An empty entry deletes the token.
type Changes [][]TokenS

// IdentityChanges returns the change vector that keeps toks as they are.
func IdentityChanges(toks []TokenS) Changes {
	c := make(Changes, len(toks))
	for i, t := range toks {
		c[i] = []TokenS{t}
	}
	return c
}

// Flatten concatenates the entries.
func (c Changes) Flatten() []TokenS {
	var out []TokenS
	for _, e := range c {
		out = append(out, e...)
	}
	return out
}

// strip removes one occurrence of each name in d from every token.
func (c Changes) strip(d Disables) Changes {
	if d.Len() == 0 {
		return c
	}
	out := make(Changes, len(c))
	for i, e := range c {
		out[i] = make([]TokenS, len(e))
		for j, t := range e {
			out[i][j] = t.WithoutDisables(d)
		}
	}
	return out
}

func tokensEqual(a, b []TokenS) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// makeReplaceChanges returns a change vector over n tokens that turns
// the first into to and deletes the rest.
func makeReplaceChanges(n int, to []TokenS) (Changes, bool) {
	if n == 0 {
		return Changes{}, len(to) == 0
	}
	c := make(Changes, n)
	c[0] = to
	for i := 1; i < n; i++ {
		c[i] = []TokenS{}
	}
	return c, true
}

type change struct {
	toks    []TokenS
	changed bool
}

// Backward lifts changes of a preprocessor's output to changes of its
// input.
//
// The trace is walked from the last action to the first while the
// changes over the pending stream are rebuilt. A Skip passes its
// change through. A Replace is inverted by one of three strategies:
// preserve-root keeps the macro call and pushes the changes into its
// arguments, cancel-root replaces the call by its output with the
// arguments inverted, and cancel-all replaces the call by its changed
// output. Every candidate is checked by replaying the preprocessor from
// the state before the action.
type Backward struct {
	// AllowRootCancel lets cancel-root and cancel-all remove top-level
	// macro calls. They are always tried inside arguments.
	AllowRootCancel bool

	replay replay
}

// NewBackward returns a Backward whose replays run on clones of pp.
func NewBackward(pp *Preprocessor) *Backward {
	return &Backward{replay: replay{base: pp}}
}

// Run lifts changes, one entry per token of seq's output, to a change
// vector over the input of seq. It returns ErrNotInvertible when no
// candidate replays correctly.
func (b *Backward) Run(seq *ActionSequence, changes Changes) (Changes, error) {
	if len(changes) != seq.NumProduced() {
		return nil, errors.Errorf("change vector has %d entries for %d output tokens", len(changes), seq.NumProduced())
	}
	res, failed := b.run(seq, changes, 0)
	if failed >= 0 {
		return nil, errors.Wrapf(ErrNotInvertible, "action %d", failed)
	}
	return res, nil
}

func (b *Backward) debug(fields logrus.Fields, msg string) {
	b.replay.base.debug(fields, msg)
}

// run inverts seq at the given nesting depth. Depth 0 is the top level;
// deeper levels are macro arguments. On failure it returns the index of
// the action that could not be inverted.
func (b *Backward) run(seq *ActionSequence, out Changes, depth int) (Changes, int) {
	var (
		right     []change // reversed: the last entry is the front of the stream
		rightToks *TokenList
		dirty     int
		target    Target = Terminal{}
		k                = len(out)
	)
	firstSkip := len(seq.Actions)
	for i, a := range seq.Actions {
		if _, ok := a.(*Skip); ok {
			firstSkip = i
			break
		}
	}
	// modeAt is how a replay from before action i reads its tokens.
	modeAt := func(i int) replayMode {
		switch {
		case depth == 0:
			return topLevel
		case firstSkip < i:
			return argumentResumed
		}
		return argumentStart
	}
	for i := len(seq.Actions) - 1; i >= 0; i-- {
		env := seq.Envs[i]
		switch a := seq.Actions[i].(type) {
		case *Skip:
			k--
			c := out[k]
			changed := len(c) != 1 || !c[0].Equal(a.Token)
			toks := rightToks.Prepend(c)
			next := SkipAll(c, target)
			if (changed || dirty > 0) && !b.replay.run(env, toks, modeAt(i), next) {
				b.debug(logrus.Fields{"action": i, "depth": depth}, "backward: skip rejected")
				return nil, i
			}
			right = append(right, change{toks: c, changed: changed})
			if changed {
				dirty++
			}
			rightToks = toks
			target = &EnvAndRest{Env: env, Rest: toks, Fallback: next}

		case *Replace:
			n := len(a.Processed())
			procs := make(Changes, n)
			flat, edited := 0, false
			for j := 0; j < n; j++ {
				e := right[len(right)-1-j]
				procs[j] = e.toks
				flat += len(e.toks)
				if e.changed {
					dirty--
					edited = true
				}
			}
			right = right[:len(right)-n]
			rest := rightToks.Drop(flat)

			orig, toks, ok := b.replace(a, i, env, procs, rest, edited || dirty > 0, depth, modeAt(i), target)
			if !ok {
				return nil, i
			}
			for j := len(orig) - 1; j >= 0; j-- {
				changed := len(orig[j]) != 1 || !orig[j][0].Equal(a.Original[j])
				right = append(right, change{toks: orig[j], changed: changed})
				if changed {
					dirty++
				}
			}
			rightToks = toks
			target = &EnvAndRest{Env: env, Rest: toks, Fallback: target}

		default:
			panic(fmt.Sprintf("cpp: unknown action %T", a))
		}
	}
	if k != 0 {
		panic(fmt.Sprintf("cpp: %d output changes left after backward", k))
	}

	res := make(Changes, len(right))
	for i, e := range right {
		res[len(right)-1-i] = e.toks
	}
	return res, -1
}

type strategy struct {
	name string
	fn   func(a *Replace, procs Changes, depth int) (Changes, bool)
}

// replace tries the strategies for a in order and returns the first
// candidate that replays to target, with the pending stream it leaves.
// Unless edited is set, a candidate that leaves the input unchanged is
// accepted without a replay.
func (b *Backward) replace(a *Replace, i int, env Environment, procs Changes, rest *TokenList, edited bool, depth int, mode replayMode, target Target) (Changes, *TokenList, bool) {
	strategies := []strategy{{"preserve-root", b.preserveRoot}}
	if depth > 0 || b.AllowRootCancel {
		strategies = append(strategies, strategy{"cancel-root", b.cancelRoot}, strategy{"cancel-all", b.cancelAll})
	}
	for _, s := range strategies {
		fields := logrus.Fields{"action": i, "depth": depth, "strategy": s.name}
		orig, ok := s.fn(a, procs, depth)
		if !ok {
			b.debug(fields, "backward: strategy not applicable")
			continue
		}
		flat := orig.Flatten()
		toks := rest.Prepend(flat)
		if (edited || !tokensEqual(flat, a.Original)) && !b.replay.run(env, toks, mode, target) {
			b.debug(fields, "backward: replay rejected candidate")
			continue
		}
		b.debug(fields, "backward: strategy accepted")
		return orig, toks, true
	}
	return nil, nil, false
}

// preserveRoot keeps the call. Its own tokens must be unchanged and the
// changes of each argument are lifted through the argument's trace to
// the argument's position in the call.
func (b *Backward) preserveRoot(a *Replace, procs Changes, depth int) (Changes, bool) {
	orig := make(Changes, len(a.Original))
	written := make([]bool, len(a.Original))
	pos := 0
	for _, seg := range a.Mapping {
		n := segLen(seg)
		segChanges := procs[pos : pos+n]
		pos += n
		switch seg := seg.(type) {
		case *New:
			for j, t := range seg.Tokens {
				c := segChanges[j]
				if len(c) != 1 || !c[0].Equal(TokenS{Token: t, Disables: a.Disables}) {
					return nil, false
				}
			}
		case *Sub:
			sub, failed := b.run(seg.Actions, segChanges.strip(a.Disables), depth+1)
			if failed >= 0 {
				return nil, false
			}
			for j, idx := range seg.Indices {
				if written[idx] && !tokensEqual(orig[idx], sub[j]) {
					return nil, false
				}
				orig[idx], written[idx] = sub[j], true
			}
		default:
			panic(fmt.Sprintf("cpp: unknown mapping segment %T", seg))
		}
	}
	for j := range orig {
		if !written[j] {
			orig[j] = []TokenS{a.Original[j]}
		}
	}
	return orig, true
}

// cancelRoot drops the call in favor of its changed output, keeping the
// unexpanded form of every argument that can be lifted.
func (b *Backward) cancelRoot(a *Replace, procs Changes, depth int) (Changes, bool) {
	var toks []TokenS
	pos := 0
	for _, seg := range a.Mapping {
		n := segLen(seg)
		segChanges := procs[pos : pos+n].strip(a.Disables)
		pos += n
		if sub, ok := seg.(*Sub); ok {
			if lifted, failed := b.run(sub.Actions, segChanges, depth+1); failed < 0 {
				toks = append(toks, lifted.Flatten()...)
				continue
			}
		}
		toks = append(toks, segChanges.Flatten()...)
	}
	return makeReplaceChanges(len(a.Original), toks)
}

// cancelAll drops the call in favor of its changed output.
func (b *Backward) cancelAll(a *Replace, procs Changes, _ int) (Changes, bool) {
	return makeReplaceChanges(len(a.Original), procs.strip(a.Disables).Flatten())
}
