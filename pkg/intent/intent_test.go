package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_ExactMatch(t *testing.T) {
	table := NewTable()

	resp, ok := table.Lookup("Return Policy")
	require.True(t, ok)
	assert.Contains(t, resp.Text, "Returns are accepted")
	assert.LessOrEqual(t, len(resp.Suggest), 3)
}

func TestLookup_SubstringMatch(t *testing.T) {
	table := NewTable()

	resp, ok := table.Lookup("hey, what's your shipping policy for Mumbai?")
	require.True(t, ok)
	assert.Contains(t, resp.Text, "We ship across India")
}

func TestLookup_Miss(t *testing.T) {
	table := NewTable()

	_, ok := table.Lookup("do you sell gift cards?")
	assert.False(t, ok)

	_, ok = table.Lookup("")
	assert.False(t, ok)
}

func TestLookup_SuggestionsFitButtonLimit(t *testing.T) {
	table := NewTable()
	for _, phrase := range table.order {
		resp, ok := table.Lookup(phrase)
		require.True(t, ok)
		assert.LessOrEqual(t, len(resp.Suggest), 3, "phrase %q", phrase)
	}
}
