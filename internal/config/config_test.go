package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "testdata/does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 0.5, cfg.RAG.VectorWeight)
	assert.Equal(t, 0.5, cfg.RAG.LexicalWeight)
	assert.Equal(t, 0.85, cfg.RAG.CitationThreshold)
	assert.Equal(t, 5.0, cfg.RAG.EmbedRatePerSec)
}

func TestLoadEnvOverridesRetrievalKnobs(t *testing.T) {
	t.Setenv("CONFIG_FILE", "testdata/does-not-exist.toml")
	t.Setenv("RAG_TOP_K", "25")
	t.Setenv("RAG_VECTOR_WEIGHT", "0.7")
	t.Setenv("RAG_LEXICAL_WEIGHT", "0.3")
	t.Setenv("RAG_CITATION_THRESHOLD", "0.9")
	t.Setenv("RAG_EMBED_RATE_PER_SEC", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.RAG.TopK)
	assert.Equal(t, 0.7, cfg.RAG.VectorWeight)
	assert.Equal(t, 0.3, cfg.RAG.LexicalWeight)
	assert.Equal(t, 0.9, cfg.RAG.CitationThreshold)
	assert.Equal(t, 2.5, cfg.RAG.EmbedRatePerSec)
}

func TestLoadEnvBadValueFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "testdata/does-not-exist.toml")
	t.Setenv("RAG_VECTOR_WEIGHT", "not-a-number")
	t.Setenv("RAG_TOP_K", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.RAG.VectorWeight, "unparsable value keeps the default")
	assert.Equal(t, 10, cfg.RAG.TopK, "empty value keeps the default")
}
