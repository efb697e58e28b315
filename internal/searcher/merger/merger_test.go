package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDeduplicates(t *testing.T) {
	merged, total := Merge([][]string{
		{"a", "c", "e"},
		{"b", "c"},
		{},
		{"a", "f"},
	}, 0)
	assert.Equal(t, []string{"a", "b", "c", "e", "f"}, merged)
	assert.Equal(t, 5, total)
}

func TestMergeLimit(t *testing.T) {
	merged, total := Merge([][]string{{"x", "y", "z"}, {"w", "y"}}, 2)
	assert.Equal(t, []string{"w", "x"}, merged)
	assert.Equal(t, 4, total)
}

func TestMergeEmpty(t *testing.T) {
	merged, total := Merge(nil, 10)
	assert.Empty(t, merged)
	assert.NotNil(t, merged)
	assert.Zero(t, total)
}
