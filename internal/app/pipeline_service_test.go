package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/apperr"
	"documind/internal/config"
	"documind/internal/index"
	"documind/internal/model"
)

type fakePipelineDocs struct {
	doc         *model.Document
	statusTrail []string
	// updateErr injects a one-shot failure for a specific status write.
	updateErr map[string]error
}

func (f *fakePipelineDocs) GetByIDAndTenantID(id, tenantID uint) (*model.Document, error) {
	if f.doc == nil || f.doc.ID != id || f.doc.TenantID != tenantID {
		return nil, nil
	}
	copied := *f.doc
	return &copied, nil
}

func (f *fakePipelineDocs) ClaimForProcessing(id uint, token string, staleAfter time.Duration) (bool, error) {
	if !f.doc.Processable() && !f.doc.Stalled(staleAfter) {
		return false, nil
	}
	f.doc.Status = model.DocStatusExtracting
	f.doc.ProcessingToken = token
	f.doc.FailedStage = ""
	f.doc.ErrorMsg = ""
	f.doc.UpdatedAt = time.Now()
	f.statusTrail = append(f.statusTrail, model.DocStatusExtracting)
	return true, nil
}

func (f *fakePipelineDocs) UpdateStatus(id uint, status string) error {
	if err, ok := f.updateErr[status]; ok {
		delete(f.updateErr, status)
		return err
	}
	f.doc.Status = status
	f.doc.UpdatedAt = time.Now()
	f.statusTrail = append(f.statusTrail, status)
	return nil
}

func (f *fakePipelineDocs) MarkIndexed(id uint, contentHash string) error {
	f.doc.Status = model.DocStatusIndexed
	f.doc.ContentHash = contentHash
	f.doc.UpdatedAt = time.Now()
	f.statusTrail = append(f.statusTrail, model.DocStatusIndexed)
	return nil
}

func (f *fakePipelineDocs) MarkFailed(id uint, stage, message string) error {
	f.doc.Status = model.DocStatusFailed
	f.doc.FailedStage = stage
	f.doc.ErrorMsg = message
	f.doc.UpdatedAt = time.Now()
	f.statusTrail = append(f.statusTrail, model.DocStatusFailed)
	return nil
}

type fakePipelineChunks struct {
	nextID     uint
	active     []model.Chunk
	superseded []model.Chunk
	batches    int
}

func (f *fakePipelineChunks) CreateBatch(chunks []model.Chunk) error {
	f.batches++
	for i := range chunks {
		f.nextID++
		chunks[i].ID = f.nextID
		f.active = append(f.active, chunks[i])
	}
	return nil
}

func (f *fakePipelineChunks) SupersedeByDocumentID(documentID uint) error {
	var remaining []model.Chunk
	for _, c := range f.active {
		if c.DocumentID == documentID {
			c.Superseded = true
			f.superseded = append(f.superseded, c)
			continue
		}
		remaining = append(remaining, c)
	}
	f.active = remaining
	return nil
}

type fakePipelineEmbedder struct {
	err   error
	calls int
}

func (f *fakePipelineEmbedder) Model() string { return "fake-embed" }

func (f *fakePipelineEmbedder) EmbedAll(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

type fakeEvictions struct {
	docIDs []uint
}

func (f *fakeEvictions) EvictByDocument(_ context.Context, _, documentID uint) error {
	f.docIDs = append(f.docIDs, documentID)
	return nil
}

type denyLock struct{}

func (denyLock) Acquire(context.Context, uint, string) (bool, error) { return false, nil }
func (denyLock) Release(context.Context, uint, string) error         { return nil }

func pipelineFixture(content string, mimeType string) (*fakePipelineDocs, *fakePipelineChunks, *fakePipelineEmbedder, *index.Indexer, *fakeEvictions, *PipelineService) {
	docs := &fakePipelineDocs{doc: &model.Document{
		ID:         1,
		TenantID:   1,
		Filename:   "report.txt",
		MimeType:   mimeType,
		RawContent: []byte(content),
		Status:     model.DocStatusUploaded,
		UpdatedAt:  time.Now(),
	}}
	chunks := &fakePipelineChunks{}
	embedder := &fakePipelineEmbedder{}
	indexer := index.NewIndexer()
	evictions := &fakeEvictions{}
	svc := NewPipelineService(docs, chunks, embedder, indexer, nil, evictions, config.RAGConfig{
		ChunkSize:    40,
		ChunkOverlap: 8,
	}, 10*time.Minute)
	return docs, chunks, embedder, indexer, evictions, svc
}

func TestPipelineProcessHappyPath(t *testing.T) {
	text := "Revenue grew 12% in Q3.\n\nOperating costs fell by 3% over the same period.\n\nHeadcount stayed flat."
	docs, chunks, _, indexer, _, svc := pipelineFixture(text, "text/plain")

	err := svc.Process(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, model.DocStatusIndexed, docs.doc.Status)
	assert.NotEmpty(t, docs.doc.ContentHash)
	assert.Equal(t, []string{
		model.DocStatusExtracting,
		model.DocStatusChunking,
		model.DocStatusEmbedding,
		model.DocStatusIndexed,
	}, docs.statusTrail)

	require.NotEmpty(t, chunks.active)
	for i, c := range chunks.active {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "fake-embed", c.EmbeddingModel)
		assert.NotEmpty(t, c.Embedding)
		assert.Equal(t, c.Content, string([]rune(text)[c.SpanStart:c.SpanEnd]))
	}

	assert.Equal(t, len(chunks.active), indexer.ChunkCount(1))
	hits := indexer.SearchLexical(1, "revenue", 5)
	require.NotEmpty(t, hits)
	assert.Equal(t, uint(1), hits[0].DocumentID)
}

func TestPipelineClaimConflict(t *testing.T) {
	docs, _, _, _, _, svc := pipelineFixture("some text", "text/plain")
	docs.doc.Status = model.DocStatusExtracting

	err := svc.Process(context.Background(), 1, 1)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestPipelineStatusWriteFailureMarksFailed(t *testing.T) {
	docs, _, _, _, _, svc := pipelineFixture("enough text to chunk and embed", "text/plain")
	docs.updateErr = map[string]error{
		model.DocStatusChunking: apperr.New(apperr.KindInternal, "database gone away"),
	}

	err := svc.Process(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docs.doc.Status,
		"a failed status write must not strand the document in-flight")
	assert.Equal(t, model.DocStatusChunking, docs.doc.FailedStage)

	// The document is claimable again right away.
	require.NoError(t, svc.Process(context.Background(), 1, 1))
	assert.Equal(t, model.DocStatusIndexed, docs.doc.Status)
}

func TestPipelineStalledRunTakenOver(t *testing.T) {
	docs, _, _, _, _, svc := pipelineFixture("text left behind by a crashed run", "text/plain")
	docs.doc.Status = model.DocStatusEmbedding
	docs.doc.UpdatedAt = time.Now().Add(-time.Hour)

	err := svc.Process(context.Background(), 1, 1)
	require.NoError(t, err, "an abandoned in-flight run is reclaimable after the stale threshold")
	assert.Equal(t, model.DocStatusIndexed, docs.doc.Status)
}

func TestPipelineLockDenied(t *testing.T) {
	docs, chunks, embedder, indexer, evictions, _ := pipelineFixture("some text", "text/plain")
	svc := NewPipelineService(docs, chunks, embedder, indexer, denyLock{}, evictions, config.RAGConfig{}, 10*time.Minute)

	err := svc.Process(context.Background(), 1, 1)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, model.DocStatusUploaded, docs.doc.Status, "lock denial happens before the claim")
}

func TestPipelineUnsupportedMimeFailsAtExtract(t *testing.T) {
	docs, _, _, _, _, svc := pipelineFixture("\x89PNG", "image/png")

	err := svc.Process(context.Background(), 1, 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, model.DocStatusFailed, docs.doc.Status)
	assert.Equal(t, model.DocStatusExtracting, docs.doc.FailedStage)
	assert.NotEmpty(t, docs.doc.ErrorMsg)
}

func TestPipelineEmbeddingFailureMarksStage(t *testing.T) {
	docs, _, embedder, _, _, svc := pipelineFixture("enough text to chunk and embed", "text/plain")
	embedder.err = apperr.New(apperr.KindTransientProvider, "provider unavailable")

	err := svc.Process(context.Background(), 1, 1)
	assert.Equal(t, apperr.KindTransientProvider, apperr.KindOf(err))
	assert.Equal(t, model.DocStatusFailed, docs.doc.Status)
	assert.Equal(t, model.DocStatusEmbedding, docs.doc.FailedStage)
}

func TestPipelineReprocessSupersedesAndEvicts(t *testing.T) {
	docs, chunks, _, indexer, evictions, svc := pipelineFixture("first version of the document body", "text/plain")

	require.NoError(t, svc.Process(context.Background(), 1, 1))
	firstCount := len(chunks.active)
	require.NotZero(t, firstCount)

	docs.doc.RawContent = []byte("second version of the document body, now with different wording")
	require.NoError(t, svc.Process(context.Background(), 1, 1))

	assert.NotEmpty(t, chunks.superseded, "previous generation is retired, not deleted")
	for _, c := range chunks.active {
		assert.False(t, c.Superseded)
	}
	assert.Equal(t, len(chunks.active), indexer.ChunkCount(1), "index holds only the new generation")
	assert.Equal(t, []uint{1, 1}, evictions.docIDs, "each run drops cached answers for the document")
}

func TestPipelineUnchangedContentShortCircuits(t *testing.T) {
	docs, chunks, embedder, _, _, svc := pipelineFixture("stable content that never changes", "text/plain")

	require.NoError(t, svc.Process(context.Background(), 1, 1))
	require.Equal(t, 1, chunks.batches)

	require.NoError(t, svc.Process(context.Background(), 1, 1))
	assert.Equal(t, 1, chunks.batches, "unchanged content is not re-chunked")
	assert.Equal(t, 1, embedder.calls, "unchanged content is not re-embedded")
	assert.Equal(t, model.DocStatusIndexed, docs.doc.Status)
}

func TestPipelineDocumentNotFound(t *testing.T) {
	_, _, _, _, _, svc := pipelineFixture("text", "text/plain")

	err := svc.Process(context.Background(), 2, 99)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPipelineCancelledRunMarksFailed(t *testing.T) {
	docs, _, _, _, _, svc := pipelineFixture("text that would normally process fine", "text/plain")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Process(ctx, 1, 1)
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docs.doc.Status)
	assert.NotEmpty(t, docs.doc.FailedStage)
}
