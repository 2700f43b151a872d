package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()

	assert.Equal(t, 0.62, rules.SimilarityFloor)
	assert.Equal(t, 5, rules.MaxJudgeCandidates)
	assert.Equal(t, 1.4, rules.MaterialMarkup)
	assert.NotEmpty(t, rules.Synonyms)
	assert.Contains(t, rules.SingularKeywords, "ascensor")
}

func TestFallbackPrice(t *testing.T) {
	rules := DefaultRules()

	assert.Equal(t, 25.0, rules.FallbackPrice("m²"))
	assert.Equal(t, 35.0, rules.FallbackPrice("h"))
	assert.Equal(t, rules.DefaultFallbackPrice, rules.FallbackPrice("pza"))
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRulesOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
similarity_floor: 0.70
fallback_prices:
  "m²": 30.5
synonyms:
  - from: "picado"
    to: "demolición de revestimiento"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, 0.70, rules.SimilarityFloor)
	assert.Equal(t, 30.5, rules.FallbackPrice("m²"))
	// Unknown unit falls back to default since override replaced the table
	assert.Equal(t, rules.DefaultFallbackPrice, rules.FallbackPrice("h"))
	// Unset numeric fields keep defaults
	assert.Equal(t, 1.4, rules.MaterialMarkup)
	require.Len(t, rules.Synonyms, 1)
	assert.Equal(t, "picado", rules.Synonyms[0].From)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}
