package container

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// compiledSelector holds one "container:kind:path" selector, each part a glob.
// The path glob has no separators, so * crosses directory boundaries.
type compiledSelector struct {
	pattern   string
	container glob.Glob
	kind      glob.Glob
	path      glob.Glob
}

// Matcher reports whether an entry is claimed by any of a set of selectors.
type Matcher struct {
	selectors []compiledSelector
}

func CompileSelectors(selectors []string) (*Matcher, error) {
	m := &Matcher{}
	for _, s := range selectors {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: selector %q is not container:kind:path", apperrors.ErrInvalidInput, s)
		}
		cs := compiledSelector{pattern: s}
		for i, dst := range []*glob.Glob{&cs.container, &cs.kind, &cs.path} {
			g, err := glob.Compile(parts[i])
			if err != nil {
				return nil, fmt.Errorf("%w: selector %q: %v", apperrors.ErrInvalidInput, s, err)
			}
			*dst = g
		}
		m.selectors = append(m.selectors, cs)
	}
	return m, nil
}

// Match reports whether e is selected. It returns the first matching pattern.
func (m *Matcher) Match(e Entry) (string, bool) {
	for _, s := range m.selectors {
		if s.container.Match(e.Container()) && s.kind.Match(KindFile) && s.path.Match(e.Path()) {
			return s.pattern, true
		}
	}
	return "", false
}
