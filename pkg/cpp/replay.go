package cpp

import (
	"github.com/sirupsen/logrus"
)

// replay runs clones of a preprocessor forward from recorded states to
// check that a candidate input still produces the expected output.
type replay struct {
	base *Preprocessor
}

// replayMode selects how a replay reads its tokens.
type replayMode int

const (
	topLevel replayMode = iota
	// argumentStart expands a macro argument from its first token.
	argumentStart
	// argumentResumed expands the rest of an argument that has already
	// output tokens, so leading whitespace is interior.
	argumentResumed
)

// run installs env and rest on a fresh clone and pulls tokens until the
// replay reaches target, strays from it, or reports an error.
func (r replay) run(env Environment, rest *TokenList, mode replayMode, target Target) bool {
	pp := r.base.Clone(ListenerFunc(func(d *Diagnostic) error {
		if d.IsWarning() {
			return nil
		}
		return d
	}))
	defer pp.Close()
	pp.Install(env, rest.Slice())

	cur := rest
	done := 0
	// advance checks the actions in [done, n) against the target.
	advance := func(n int) (matched, ok bool) {
		seq := pp.collector.Sequence()
		for ; done < n; done++ {
			next, emitted, err := step(cur, seq.Actions[done])
			if err != nil {
				return false, false
			}
			cur = next
			if emitted != nil {
				if target = target.WhenSkip(emitted.Token); target == nil {
					return false, false
				}
			}
			if target.Matches(seq.Envs[done+1], cur) {
				return true, true
			}
		}
		return false, true
	}

	if mode != topLevel {
		x := &argExpansion{p: pp, started: mode == argumentResumed}
		for !x.done {
			x.step()
			if pp.err != nil {
				r.base.debug(logrus.Fields{"error": pp.err}, "replay: error")
				return false
			}
			if matched, ok := advance(pp.collector.settled()); !ok || matched {
				return matched
			}
		}
	} else {
		for {
			tok, out := pp.next()
			if pp.err != nil {
				r.base.debug(logrus.Fields{"error": pp.err}, "replay: error")
				return false
			}
			if matched, ok := advance(pp.collector.numActions()); !ok || matched {
				return matched
			}
			if out && tok.Type == PP_EOF {
				break
			}
		}
	}
	if matched, ok := advance(pp.collector.numActions()); !ok || matched {
		return matched
	}
	return target.Matches(pp.Env(), cur)
}
