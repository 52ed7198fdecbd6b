package preproc

import (
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raymyers/invcpp/pkg/cpp"
)

// Lift turns an edited version of res.Output into the matching edit of
// the input and returns the new input text. It fails with
// cpp.ErrNotInvertible when no input produces the edited output. The
// edited text must not contain linemarkers.
func Lift(res *Result, edited string) (string, error) {
	changes, err := ComputeChanges(res.Produced, edited)
	if err != nil {
		return "", err
	}
	b := cpp.NewBackward(res.pp)
	b.AllowRootCancel = res.allowRootCancel
	lifted, err := b.Run(res.Trace, changes)
	if err != nil {
		return "", err
	}
	return cpp.SText(lifted.Flatten()), nil
}

// ComputeChanges diffs the tokens of edited against produced and returns
// the change vector that turns one into the other. A replaced run of
// tokens becomes the change of its first token, the others being
// deleted. Pure insertions extend the token before them, or the first
// token at the start. Inserted tokens take the disables of the token
// they are attached to.
func ComputeChanges(produced []cpp.TokenS, edited string) (cpp.Changes, error) {
	toks, lexErrs := cpp.Lex(edited, "<edited>")
	if len(lexErrs) > 0 {
		return nil, errors.Errorf("edited output: %s: %s", lexErrs[0].Loc, lexErrs[0].Msg)
	}

	runes := newTokenRunes()
	before := make([]rune, len(produced))
	for i, t := range produced {
		before[i] = runes.of(t.Token)
	}
	after := make([]rune, len(toks))
	for i, t := range toks {
		after[i] = runes.of(t)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(before, after, false)

	c := &changeBuilder{produced: produced, changes: make(cpp.Changes, len(produced))}
	j := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if err := c.flush(); err != nil {
				return nil, err
			}
			for k := 0; k < n; k++ {
				c.changes[c.pos] = []cpp.TokenS{produced[c.pos]}
				c.pos++
			}
			j += n
		case diffmatchpatch.DiffDelete:
			c.deleted += n
		case diffmatchpatch.DiffInsert:
			c.inserted = append(c.inserted, toks[j:j+n]...)
			j += n
		}
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	if c.prefix != nil {
		c.changes[0] = append(c.prefix, c.changes[0]...)
	}
	return c.changes, nil
}

type changeBuilder struct {
	produced []cpp.TokenS
	changes  cpp.Changes
	pos      int

	// the pending edit region
	deleted  int
	inserted []cpp.Token
	prefix   []cpp.TokenS
}

func (c *changeBuilder) flush() error {
	defer func() { c.deleted, c.inserted = 0, nil }()
	switch {
	case c.deleted > 0:
		at := c.pos
		for k := 0; k < c.deleted; k++ {
			c.changes[c.pos] = []cpp.TokenS{}
			c.pos++
		}
		c.changes[at] = c.attach(at)
	case len(c.inserted) == 0:
	case c.pos > 0:
		c.changes[c.pos-1] = append(c.changes[c.pos-1], c.attach(c.pos-1)...)
	case len(c.produced) > 0:
		c.prefix = append(c.prefix, c.attach(0)...)
	default:
		return errors.New("edited output: cannot insert into empty output")
	}
	return nil
}

func (c *changeBuilder) attach(at int) []cpp.TokenS {
	out := make([]cpp.TokenS, len(c.inserted))
	for i, t := range c.inserted {
		out[i] = cpp.TokenS{Token: t, Disables: c.produced[at].Disables}
	}
	return out
}

// tokenRunes numbers distinct tokens so that token streams can be diffed
// as rune strings.
type tokenRunes map[string]rune

func newTokenRunes() tokenRunes { return tokenRunes{} }

func (m tokenRunes) of(t cpp.Token) rune {
	key := t.Type.String() + "\x00" + t.Text
	if r, ok := m[key]; ok {
		return r
	}
	r := rune(len(m) + 1)
	if r >= 0xD800 {
		r += 0x800 // skip surrogates
	}
	m[key] = r
	return r
}

// Patch returns a unified-style patch from before to after.
func Patch(before, after string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(before, after))
}
