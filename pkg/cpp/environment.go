package cpp

import (
	"github.com/benbjohnson/immutable"
)

// PathSet is a persistent set of canonical file paths.
type PathSet struct {
	m *immutable.SortedMap[string, struct{}]
}

// Has reports whether path is in the set.
func (s PathSet) Has(path string) bool {
	if s.m == nil {
		return false
	}
	_, ok := s.m.Get(path)
	return ok
}

// With returns the set with path added.
func (s PathSet) With(path string) PathSet {
	if s.Has(path) {
		return s
	}
	m := s.m
	if m == nil {
		m = immutable.NewSortedMap[string, struct{}](nil)
	}
	return PathSet{m: m.Set(path, struct{}{})}
}

// Len returns the number of paths.
func (s PathSet) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Paths lists the set in sorted order.
func (s PathSet) Paths() []string {
	var out []string
	if s.m == nil {
		return out
	}
	itr := s.m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		out = append(out, k)
	}
	return out
}

// Equal compares two sets.
func (s PathSet) Equal(o PathSet) bool {
	if s.m == o.m {
		return true
	}
	if s.Len() != o.Len() {
		return false
	}
	for _, p := range s.Paths() {
		if !o.Has(p) {
			return false
		}
	}
	return true
}

// Environment is the part of the preprocessor state that decides how the
// remaining input is processed. All fields are persistent values, so a
// snapshot costs a struct copy.
type Environment struct {
	Macros   MacroTable
	States   *StateStack
	Counter  int
	OnceSeen PathSet
}

// NewEnvironment returns the initial environment: the predefined macros
// and a single active frame.
func NewEnvironment() Environment {
	return Environment{
		Macros: NewMacroTable(),
		States: NewStateStack(),
	}
}

// Equal compares two environments structurally.
func (e Environment) Equal(o Environment) bool {
	return e.Counter == o.Counter &&
		e.States.Equal(o.States) &&
		e.Macros.Equal(o.Macros) &&
		e.OnceSeen.Equal(o.OnceSeen)
}
