package cpp

import "fmt"

// ActionCollector records the actions taken by a preprocessor run.
//
// Tokens read from sources accumulate in a pending span. Each emitting
// operation turns the pending span into actions: skipLast replaces all
// but the last pending token with nothing and skips the last one,
// deleteAll replaces the whole span with nothing, and the replace
// operations rewrite the span into new tokens or a macro mapping.
type ActionCollector struct {
	actions  []Action
	envs     []Environment
	current  []TokenS
	original []TokenS
	snapshot func() Environment

	// CollectOnly suppresses emission while #if expressions and #include
	// operands are read. Tokens from synthetic sources are not collected
	// in this mode, so the directive's Replace holds input tokens only.
	CollectOnly bool

	// hold is the index of a delete that may still be reverted, or -1.
	hold int
}

// NewActionCollector starts a trace whose first environment is
// snapshot().
func NewActionCollector(snapshot func() Environment) *ActionCollector {
	return &ActionCollector{
		envs:     []Environment{snapshot()},
		snapshot: snapshot,
		hold:     -1,
	}
}

// nested returns a collector for an argument pre-expansion.
func (c *ActionCollector) nested() *ActionCollector {
	n := NewActionCollector(c.snapshot)
	n.CollectOnly = c.CollectOnly
	return n
}

// getToken adds tok to the pending span and reports whether it did.
func (c *ActionCollector) getToken(tok TokenS, root, synthetic bool) bool {
	if tok.Type == PP_EOF || tok.Type == PP_LINEMARKER {
		return false
	}
	if root {
		c.original = append(c.original, tok)
	}
	if c.CollectOnly && synthetic {
		return false
	}
	c.current = append(c.current, tok)
	return true
}

// ungetToken undoes a getToken.
func (c *ActionCollector) ungetToken(added, root bool) {
	if added {
		c.current = c.current[:len(c.current)-1]
	}
	if root {
		c.original = c.original[:len(c.original)-1]
	}
}

// numToken returns the size of the pending span.
func (c *ActionCollector) numToken() int { return len(c.current) }

func (c *ActionCollector) emit(a Action) int {
	c.actions = append(c.actions, a)
	c.envs = append(c.envs, c.snapshot())
	return len(c.actions) - 1
}

func (c *ActionCollector) take() []TokenS {
	span := c.current
	c.current = nil
	return span
}

// skipLast deletes every pending token but the last, which is skipped.
func (c *ActionCollector) skipLast() {
	if c.CollectOnly || len(c.current) == 0 {
		return
	}
	span := c.take()
	last := span[len(span)-1]
	if len(span) > 1 {
		c.emit(&Replace{Original: span[:len(span)-1]})
	}
	c.emit(&Skip{Token: last})
}

// deleteAll replaces the pending span with nothing and returns the index
// of the Replace, or -1 if nothing was emitted.
func (c *ActionCollector) deleteAll() int {
	if c.CollectOnly || len(c.current) == 0 {
		return -1
	}
	return c.emit(&Replace{Original: c.take()})
}

// revert turns the single-token delete at idx back into a Skip.
func (c *ActionCollector) revert(idx int, tok TokenS) {
	if idx < 0 {
		return
	}
	r, ok := c.actions[idx].(*Replace)
	if !ok || len(r.Original) != 1 || !r.Original[0].Equal(tok) {
		panic(fmt.Sprintf("cpp: revert of action %d does not match %v", idx, tok))
	}
	c.actions[idx] = &Skip{Token: tok}
}

// replaceWithNewTokens rewrites the pending span into toks.
func (c *ActionCollector) replaceWithNewTokens(toks []Token, d Disables) {
	if c.CollectOnly {
		return
	}
	c.emit(&Replace{Original: c.take(), Mapping: []MapSeg{&New{Tokens: toks}}, Disables: d})
}

// replaceWithMapping rewrites the pending span into a macro expansion.
func (c *ActionCollector) replaceWithMapping(mapping []MapSeg, d Disables) {
	if c.CollectOnly {
		return
	}
	c.emit(&Replace{Original: c.take(), Mapping: mapping, Disables: d})
}

// directInsert appends a without touching the pending span.
func (c *ActionCollector) directInsert(a Action) {
	if c.CollectOnly {
		return
	}
	c.emit(a)
}

// settled returns how many actions are final. A delete that may still be
// reverted and everything after it are not.
func (c *ActionCollector) settled() int {
	if c.hold >= 0 {
		return c.hold
	}
	return len(c.actions)
}

// Sequence returns the recorded trace.
func (c *ActionCollector) Sequence() *ActionSequence {
	return &ActionSequence{Actions: c.actions, Envs: c.envs}
}

// Original returns the root input tokens read so far.
func (c *ActionCollector) Original() []TokenS { return c.original }

func (c *ActionCollector) numActions() int { return len(c.actions) }
