package fuzzy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qaorchestrator/haio/worker/internal/fuzzy"
)

func TestClosestExactMatch(t *testing.T) {
	got, ok := fuzzy.Closest("cat", []string{"dog", "cat", "bird"})
	assert.True(t, ok)
	assert.Equal(t, "cat", got)
}

func TestClosestFuzzyMatch(t *testing.T) {
	got, ok := fuzzy.Closest("catt", []string{"dog", "cat", "bird"})
	assert.True(t, ok)
	assert.Equal(t, "cat", got)
}

func TestClosestFallsBackToFirstOption(t *testing.T) {
	got, ok := fuzzy.Closest("completely unrelated text", []string{"yes", "no"})
	assert.False(t, ok)
	assert.Equal(t, "yes", got)
}

func TestClosestEmptyOptions(t *testing.T) {
	got, ok := fuzzy.Closest("anything", nil)
	assert.False(t, ok)
	assert.Equal(t, "", got)
}

func TestClosestCaseInsensitive(t *testing.T) {
	got, ok := fuzzy.Closest("CAT", []string{"cat", "dog"})
	assert.True(t, ok)
	assert.Equal(t, "cat", got)
}

func TestClosestUnicodeNormalized(t *testing.T) {
	// decomposed spells "cafe" + combining acute accent (U+0301);
	// precomposed spells the same word with a single precomposed
	// e-acute (U+00E9). They are byte-distinct but must compare equal
	// once NFC-normalized.
	decomposed := "café"
	precomposed := "café"
	got, ok := fuzzy.Closest(decomposed, []string{precomposed, "tea"})
	assert.True(t, ok)
	assert.Equal(t, precomposed, got)
}
