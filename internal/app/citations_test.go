package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/model"
)

func TestExtractCitationsMarkers(t *testing.T) {
	chunks := []model.Chunk{
		{ID: 11, DocumentID: 1, Content: "Revenue grew 12% in Q3 compared to Q2."},
		{ID: 12, DocumentID: 2, Content: "Operating costs fell by 3% over the same period."},
	}

	clean, citations := extractCitations("Revenue grew 12% in Q3. [S1] Costs fell by 3%. [S2]", chunks)

	assert.Equal(t, "Revenue grew 12% in Q3. Costs fell by 3%.", clean)
	require.Len(t, citations, 2)

	first := citations[0]
	assert.Equal(t, uint(11), first.ChunkID)
	assert.Equal(t, uint(1), first.DocumentID)
	assert.Equal(t, "Revenue grew 12% in Q3.", string([]rune(clean)[first.SpanStart:first.SpanEnd]))
	assert.GreaterOrEqual(t, first.Confidence, 0.9)

	second := citations[1]
	assert.Equal(t, uint(12), second.ChunkID)
	assert.Equal(t, "Costs fell by 3%.", string([]rune(clean)[second.SpanStart:second.SpanEnd]))
}

func TestExtractCitationsFallbackOverlap(t *testing.T) {
	chunks := []model.Chunk{
		{ID: 21, DocumentID: 3, Content: "The warranty period is 24 months from the purchase date."},
	}

	// No marker, but the sentence clearly comes from the chunk.
	clean, citations := extractCitations("The warranty lasts 24 months for buyers.", chunks)

	assert.Equal(t, "The warranty lasts 24 months for buyers.", clean)
	require.Len(t, citations, 1)
	assert.Equal(t, uint(21), citations[0].ChunkID)
	assert.Less(t, citations[0].Confidence, 0.9, "fallback citations score below marker citations")
}

func TestExtractCitationsNoAttribution(t *testing.T) {
	chunks := []model.Chunk{
		{ID: 31, DocumentID: 4, Content: "Quarterly revenue figures for the APAC region."},
	}

	clean, citations := extractCitations("Bananas are yellow and curved.", chunks)

	assert.Equal(t, "Bananas are yellow and curved.", clean)
	assert.Empty(t, citations, "unrelated sentences stay uncited")
}

func TestExtractCitationsIgnoresUnknownMarker(t *testing.T) {
	chunks := []model.Chunk{
		{ID: 41, DocumentID: 5, Content: "Some context."},
	}

	clean, citations := extractCitations("Hallucinated claim. [S7]", chunks)

	assert.Equal(t, "Hallucinated claim.", clean)
	assert.Empty(t, citations)
}

func TestAggregateConfidence(t *testing.T) {
	assert.Equal(t, 0.0, aggregateConfidence(nil))

	citations := []model.Citation{
		{SpanStart: 0, SpanEnd: 30, Confidence: 1.0},
		{SpanStart: 31, SpanEnd: 41, Confidence: 0.4},
	}
	got := aggregateConfidence(citations)
	assert.InDelta(t, (1.0*30+0.4*10)/40, got, 1e-9)
}

func TestPackContextBudget(t *testing.T) {
	chunks := []model.Chunk{
		{ID: 1, Content: "aaaaa"},
		{ID: 2, Content: "bbbbb"},
		{ID: 3, Content: "ccccc"},
	}

	packed := packContext(chunks, 11)
	require.Len(t, packed, 2)
	assert.Equal(t, uint(1), packed[0].ID)
	assert.Equal(t, uint(2), packed[1].ID)
}

func TestPackContextTruncatesOversizedFirstChunk(t *testing.T) {
	chunks := []model.Chunk{{ID: 1, Content: "aaaaaaaaaa"}}

	packed := packContext(chunks, 4)
	require.Len(t, packed, 1)
	assert.Equal(t, "aaaa", packed[0].Content)
}
