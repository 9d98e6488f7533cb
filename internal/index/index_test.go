package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "text-embedding-3-small"

func entry(chunkID, docID uint, content string, vec []float32) Entry {
	return Entry{
		ChunkID:        chunkID,
		DocumentID:     docID,
		Content:        content,
		Vector:         vec,
		EmbeddingModel: testModel,
		DocCreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestIndexAndLexicalSearch(t *testing.T) {
	x := NewIndexer()
	require.NoError(t, x.Index(1, []Entry{
		entry(1, 10, "Revenue grew 12% in Q3.", []float32{1, 0}),
		entry(2, 10, "Costs fell across all regions.", []float32{0, 1}),
	}))

	hits := x.SearchLexical(1, "revenue growth Q3", 5)

	require.NotEmpty(t, hits)
	assert.Equal(t, uint(1), hits[0].ChunkID)
	assert.Equal(t, uint(10), hits[0].DocumentID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	x := NewIndexer()
	require.NoError(t, x.Index(1, []Entry{
		entry(1, 10, "a", []float32{1, 0, 0}),
		entry(2, 10, "b", []float32{0.7, 0.7, 0}),
		entry(3, 10, "c", []float32{0, 0, 1}),
	}))

	hits := x.SearchVector(1, []float32{1, 0, 0}, testModel, 2)

	require.Len(t, hits, 2)
	assert.Equal(t, uint(1), hits[0].ChunkID)
	assert.Equal(t, uint(2), hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestVectorSearchExcludesMismatchedModel(t *testing.T) {
	x := NewIndexer()
	stale := entry(1, 10, "a", []float32{1, 0})
	stale.EmbeddingModel = "text-embedding-old"
	require.NoError(t, x.Index(1, []Entry{
		stale,
		entry(2, 10, "b", []float32{0.9, 0.1}),
	}))

	hits := x.SearchVector(1, []float32{1, 0}, testModel, 5)

	require.Len(t, hits, 1)
	assert.Equal(t, uint(2), hits[0].ChunkID)
}

func TestTenantIsolation(t *testing.T) {
	x := NewIndexer()
	require.NoError(t, x.Index(1, []Entry{entry(1, 10, "quarterly revenue report", []float32{1, 0})}))
	require.NoError(t, x.Index(2, []Entry{entry(2, 20, "unrelated tenant data", []float32{0, 1})}))

	assert.NotEmpty(t, x.SearchLexical(1, "revenue", 5))
	assert.Empty(t, x.SearchLexical(2, "revenue", 5))
	assert.Empty(t, x.SearchVector(2, []float32{1, 0}, testModel, 5))
	assert.Empty(t, x.SearchLexical(3, "revenue", 5))
}

func TestRemoveDocumentClearsBothViews(t *testing.T) {
	x := NewIndexer()
	require.NoError(t, x.Index(1, []Entry{
		entry(1, 10, "zebra migration patterns", []float32{1, 0}),
		entry(2, 10, "zebra habitats", []float32{0.9, 0.1}),
		entry(3, 11, "other document", []float32{0, 1}),
	}))

	require.NoError(t, x.RemoveDocument(1, 10))

	assert.Empty(t, x.SearchLexical(1, "zebra", 5))
	for _, h := range x.SearchVector(1, []float32{1, 0}, testModel, 5) {
		assert.NotEqual(t, uint(10), h.DocumentID)
	}
	assert.Equal(t, 1, x.ChunkCount(1))

	// Removing again converges to a no-op.
	require.NoError(t, x.RemoveDocument(1, 10))
}

func TestLexicalSearchDeterministicTieBreak(t *testing.T) {
	x := NewIndexer()
	require.NoError(t, x.Index(1, []Entry{
		entry(2, 10, "same words here", []float32{1}),
		entry(1, 10, "same words here", []float32{1}),
	}))

	first := x.SearchLexical(1, "same words", 5)
	second := x.SearchLexical(1, "same words", 5)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, uint(1), first[0].ChunkID)
}

func TestIndexIdempotentPerChunk(t *testing.T) {
	x := NewIndexer()
	e := entry(1, 10, "hello world", []float32{1, 0})
	require.NoError(t, x.Index(1, []Entry{e}))
	require.NoError(t, x.Index(1, []Entry{e}))

	assert.Equal(t, 1, x.ChunkCount(1))
	assert.Len(t, x.SearchLexical(1, "hello", 5), 1)
}
