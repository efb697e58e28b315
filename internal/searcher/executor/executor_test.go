package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/parser"
)

// fakeSource maps "index|symbol" to per-source value lists.
type fakeSource map[string][][]string

func (f fakeSource) Lookup(index, symbol string) ([][]string, error) {
	return f[index+"|"+symbol], nil
}

func run(t *testing.T, src Source, query string, limit int) *LookupResult {
	t.Helper()
	plan, err := parser.Parse(query)
	require.NoError(t, err)
	result, err := New(src).Execute(context.Background(), plan, limit)
	require.NoError(t, err)
	return result
}

func TestExecuteMergesSources(t *testing.T) {
	src := fakeSource{
		indexer.TypeReferences + "|a/B": {{"x!/1", "x!/3"}, {"x!/2", "x!/3"}},
	}
	result := run(t, src, "typeReferences:a.B", 2)
	assert.Equal(t, 3, result.TotalHits)
	assert.Equal(t, []string{"x!/1", "x!/2"}, result.Values)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, IndexHits{Index: indexer.TypeReferences, Symbol: "a/B", Values: []string{"x!/1", "x!/2"}, Total: 3}, result.Hits[0])
}

func TestExecuteUnprefixedSearchesEveryIndex(t *testing.T) {
	src := fakeSource{
		indexer.TypeDeclarations + "|a/B": {{"x!/a/B.class"}},
		indexer.TypeReferences + "|a/B":   {{"x!/a/C.class"}},
		indexer.Strings + "|a.B":          {{"x!/a/D.class"}},
	}
	result := run(t, src, "a.B", 0)
	assert.Equal(t, []string{"x!/a/B.class", "x!/a/C.class", "x!/a/D.class"}, result.Values)
	assert.Len(t, result.Hits, 3)
}

func TestExecuteOperators(t *testing.T) {
	src := fakeSource{
		indexer.TypeReferences + "|a/B":   {{"1", "2", "3"}},
		indexer.MethodReferences + "|run": {{"2", "3", "4"}},
		indexer.Strings + "|skip":         {{"3"}},
	}
	and := run(t, src, "typeReferences:a/B methodReferences:run", 0)
	assert.Equal(t, "AND", and.Type)
	assert.Equal(t, []string{"2", "3"}, and.Values)

	or := run(t, src, "typeReferences:a/B OR methodReferences:run", 0)
	assert.Equal(t, []string{"1", "2", "3", "4"}, or.Values)

	not := run(t, src, "typeReferences:a/B methodReferences:run NOT strings:skip", 0)
	assert.Equal(t, []string{"2"}, not.Values)
	assert.Equal(t, 1, not.TotalHits)
}

func TestExecuteNoHits(t *testing.T) {
	result := run(t, fakeSource{}, "nothing", 10)
	assert.Zero(t, result.TotalHits)
	assert.Empty(t, result.Values)
	assert.Empty(t, result.Hits)
}

func TestExecuteCancelled(t *testing.T) {
	plan, err := parser.Parse("a/B")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(fakeSource{}).Execute(ctx, plan, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
