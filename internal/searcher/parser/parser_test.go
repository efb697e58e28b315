package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

func TestParseIndexPrefix(t *testing.T) {
	plan, err := Parse("typeReferences:java.util.List")
	require.NoError(t, err)
	require.Len(t, plan.Terms, 1)
	assert.Equal(t, []Target{{Index: indexer.TypeReferences, Symbol: "java/util/List"}}, plan.Terms[0].Targets())

	plan, err = Parse("methoddeclarations:run")
	require.NoError(t, err)
	assert.Equal(t, Term{Index: indexer.MethodDeclarations, Symbol: "run"}, plan.Terms[0])
}

func TestParseUnprefixedTermTargetsEveryIndex(t *testing.T) {
	plan, err := Parse("a.b.C")
	require.NoError(t, err)
	targets := plan.Terms[0].Targets()
	require.Len(t, targets, len(indexer.IndexNames))
	for _, target := range targets {
		switch target.Index {
		case indexer.TypeDeclarations, indexer.TypeReferences, indexer.SubTypeNames,
			indexer.ConstructorDeclarations, indexer.ConstructorReferences:
			assert.Equal(t, "a/b/C", target.Symbol, target.Index)
		default:
			assert.Equal(t, "a.b.C", target.Symbol, target.Index)
		}
	}
}

func TestParseOperators(t *testing.T) {
	plan, err := Parse("typeReferences:a/B OR strings:hi NOT subTypeNames:a/B")
	require.NoError(t, err)
	assert.Equal(t, QueryOR, plan.Type)
	assert.Len(t, plan.Terms, 2)
	assert.Equal(t, []Term{{Index: indexer.SubTypeNames, Symbol: "a/B"}}, plan.ExcludeTerms)
}

func TestParseErrors(t *testing.T) {
	for _, q := range []string{"", "   ", "NOT a/B", "strings:"} {
		_, err := Parse(q)
		assert.ErrorIs(t, err, apperrors.ErrInvalidQuery, q)
	}
	_, err := Parse("packages:com/acme")
	assert.ErrorIs(t, err, apperrors.ErrUnknownIndex)
}

func TestParseKeepsColonSymbols(t *testing.T) {
	plan, err := Parse("strings:http://example.com")
	require.NoError(t, err)
	assert.Equal(t, Term{Index: indexer.Strings, Symbol: "http://example.com"}, plan.Terms[0])

	plan, err = Parse("x1:y")
	require.NoError(t, err)
	assert.Equal(t, Term{Symbol: "x1:y"}, plan.Terms[0])
}
