package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/tracing"
)

// Source answers a single (index, symbol) lookup with one sorted value list
// per storage source. *indexer.Engine satisfies it.
type Source interface {
	Lookup(index, symbol string) ([][]string, error)
}

// IndexHits lists the values recorded under one key.
type IndexHits struct {
	Index  string   `json:"index"`
	Symbol string   `json:"symbol"`
	Values []string `json:"values"`
	Total  int      `json:"total"`
}

type LookupResult struct {
	Query     string      `json:"query"`
	Type      string      `json:"type"`
	TotalHits int         `json:"total_hits"`
	Values    []string    `json:"values"`
	Hits      []IndexHits `json:"hits"`
}

type Executor struct {
	source Source
	logger *slog.Logger
}

func New(source Source) *Executor {
	return &Executor{
		source: source,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute looks up every key of plan. Each term's values are the union over
// its keys; terms are then intersected or unioned per plan.Type and the
// excluded terms' values removed.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*LookupResult, error) {
	start := time.Now()
	result := &LookupResult{
		Query:  plan.RawQuery,
		Type:   plan.Type.String(),
		Values: []string{},
		Hits:   []IndexHits{},
	}

	termValues := make([]map[string]struct{}, 0, len(plan.Terms))
	for _, term := range plan.Terms {
		values, hits, err := e.lookupTerm(ctx, term, limit)
		if err != nil {
			return nil, err
		}
		result.Hits = append(result.Hits, hits...)
		termValues = append(termValues, values)
	}
	exclude := make(map[string]struct{})
	for _, term := range plan.ExcludeTerms {
		values, _, err := e.lookupTerm(ctx, term, limit)
		if err != nil {
			return nil, err
		}
		for v := range values {
			exclude[v] = struct{}{}
		}
	}

	var candidates map[string]struct{}
	switch plan.Type {
	case parser.QueryAND:
		candidates = intersect(termValues)
	case parser.QueryOR:
		candidates = union(termValues)
	}
	for v := range exclude {
		delete(candidates, v)
	}

	values := make([]string, 0, len(candidates))
	for v := range candidates {
		values = append(values, v)
	}
	sort.Strings(values)
	result.TotalHits = len(values)
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	result.Values = values

	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", len(plan.Terms),
		"candidates", result.TotalHits,
		"results", len(result.Values),
		"duration", time.Since(start),
	)
	return result, nil
}

// lookupTerm returns every value of term and the per-key hits, each truncated
// to limit.
func (e *Executor) lookupTerm(ctx context.Context, term parser.Term, limit int) (map[string]struct{}, []IndexHits, error) {
	values := make(map[string]struct{})
	hits := make([]IndexHits, 0)
	_, span := tracing.StartChildSpan(ctx, "term")
	span.SetAttr("term", term.String())
	defer span.End()
	for _, target := range term.Targets() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		sources, err := e.source.Lookup(target.Index, target.Symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("looking up %s: %w", term, err)
		}
		all, total := merger.Merge(sources, 0)
		if total == 0 {
			continue
		}
		for _, v := range all {
			values[v] = struct{}{}
		}
		shown := all
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		hits = append(hits, IndexHits{
			Index:  target.Index,
			Symbol: target.Symbol,
			Values: shown,
			Total:  total,
		})
	}
	span.SetAttr("values", len(values))
	return values, hits, nil
}

func intersect(sets []map[string]struct{}) map[string]struct{} {
	if len(sets) == 0 {
		return make(map[string]struct{})
	}
	shortest := 0
	for i, s := range sets {
		if len(s) < len(sets[shortest]) {
			shortest = i
		}
	}
	candidates := make(map[string]struct{}, len(sets[shortest]))
	for v := range sets[shortest] {
		candidates[v] = struct{}{}
	}
	for i, s := range sets {
		if i == shortest {
			continue
		}
		for v := range candidates {
			if _, ok := s[v]; !ok {
				delete(candidates, v)
			}
		}
	}
	return candidates
}

func union(sets []map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{})
	for _, s := range sets {
		for v := range s {
			result[v] = struct{}{}
		}
	}
	return result
}
