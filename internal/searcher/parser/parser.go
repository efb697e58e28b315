package parser

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// typeKeyed lists the indexes keyed by internal type names.
var typeKeyed = map[string]bool{
	indexer.TypeDeclarations:        true,
	indexer.ConstructorDeclarations: true,
	indexer.TypeReferences:          true,
	indexer.ConstructorReferences:   true,
	indexer.SubTypeNames:            true,
}

// Target is one (index, symbol) key to look up.
type Target struct {
	Index  string `json:"index"`
	Symbol string `json:"symbol"`
}

// Term is one query word. An empty Index means every index.
type Term struct {
	Index  string
	Symbol string
}

// Targets expands t into the keys it looks up.
func (t Term) Targets() []Target {
	if t.Index != "" {
		return []Target{{Index: t.Index, Symbol: normalize(t.Index, t.Symbol)}}
	}
	targets := make([]Target, 0, len(indexer.IndexNames))
	for _, name := range indexer.IndexNames {
		targets = append(targets, Target{Index: name, Symbol: normalize(name, t.Symbol)})
	}
	return targets
}

func (t Term) String() string {
	if t.Index == "" {
		return t.Symbol
	}
	return t.Index + ":" + t.Symbol
}

type QueryPlan struct {
	Terms        []Term
	Type         QueryType
	ExcludeTerms []Term
	RawQuery     string
}

// Parse reads whitespace-separated [index:]symbol terms. Terms are
// intersected unless OR appears; NOT excludes the following term.
func Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:        make([]Term, 0),
		ExcludeTerms: make([]Term, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	words := strings.Fields(query)
	excludeNext := false
	for _, word := range words {
		switch word {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		term, err := parseTerm(word)
		if err != nil {
			return nil, err
		}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, term)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, term)
		}
	}
	if len(plan.Terms) == 0 {
		return nil, fmt.Errorf("%w: query %q has no terms", apperrors.ErrInvalidQuery, query)
	}
	return plan, nil
}

func parseTerm(word string) (Term, error) {
	prefix, symbol, ok := strings.Cut(word, ":")
	if !ok {
		return Term{Symbol: word}, nil
	}
	for _, name := range indexer.IndexNames {
		if strings.EqualFold(prefix, name) {
			if symbol == "" {
				return Term{}, fmt.Errorf("%w: term %q has no symbol", apperrors.ErrInvalidQuery, word)
			}
			return Term{Index: name, Symbol: symbol}, nil
		}
	}
	if isLetters(prefix) {
		return Term{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownIndex, prefix)
	}
	return Term{Symbol: word}, nil
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func normalize(index, symbol string) string {
	if typeKeyed[index] {
		return strings.ReplaceAll(symbol, ".", "/")
	}
	return symbol
}
