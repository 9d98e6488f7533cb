package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/google/uuid"

	"documind/internal/apperr"
	"documind/internal/chunker"
	"documind/internal/config"
	"documind/internal/index"
	"documind/internal/model"
)

// Store interfaces are declared on the consumer side so tests can run the
// pipeline against in-memory fakes.

type pipelineDocStore interface {
	GetByIDAndTenantID(id, tenantID uint) (*model.Document, error)
	ClaimForProcessing(id uint, token string, staleAfter time.Duration) (bool, error)
	UpdateStatus(id uint, status string) error
	MarkIndexed(id uint, contentHash string) error
	MarkFailed(id uint, stage, message string) error
}

type pipelineChunkStore interface {
	CreateBatch(chunks []model.Chunk) error
	SupersedeByDocumentID(documentID uint) error
}

type chunkEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type docLocker interface {
	Acquire(ctx context.Context, documentID uint, token string) (bool, error)
	Release(ctx context.Context, documentID uint, token string) error
}

type answerEvictor interface {
	EvictByDocument(ctx context.Context, tenantID, documentID uint) error
}

// PipelineService runs the extract -> chunk -> embed -> index pipeline for
// one document. Runs for distinct documents proceed in parallel; runs for
// the same document are serialized by the Redis lock plus a status-guarded
// claim in the database.
type PipelineService struct {
	docStore   pipelineDocStore
	chunkStore pipelineChunkStore
	embedder   chunkEmbedder
	indexer    *index.Indexer
	lock       docLocker     // optional
	cache      answerEvictor // optional
	ragCfg     config.RAGConfig
	// staleAfter is how long an in-flight run may sit without progress
	// before another run may take the document over. Matches the Redis
	// lock TTL so a crashed holder is reclaimable once its lock expires.
	staleAfter time.Duration
}

func NewPipelineService(
	docStore pipelineDocStore,
	chunkStore pipelineChunkStore,
	embedder chunkEmbedder,
	indexer *index.Indexer,
	lock docLocker,
	cache answerEvictor,
	ragCfg config.RAGConfig,
	staleAfter time.Duration,
) *PipelineService {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PipelineService{
		docStore:   docStore,
		chunkStore: chunkStore,
		embedder:   embedder,
		indexer:    indexer,
		lock:       lock,
		cache:      cache,
		ragCfg:     ragCfg,
		staleAfter: staleAfter,
	}
}

// Process runs the full pipeline. It is safe to call again after a failed
// or cancelled run: re-processing supersedes the previous chunk generation
// and evicts cached answers that cited this document.
func (s *PipelineService) Process(ctx context.Context, tenantID, documentID uint) error {
	doc, err := s.docStore.GetByIDAndTenantID(documentID, tenantID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperr.Newf(apperr.KindNotFound, "document %d not found", documentID)
	}

	token := uuid.NewString()
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx, documentID, token)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Newf(apperr.KindConflict, "document %d is already being processed", documentID)
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), documentID, token); err != nil {
				log.Printf("release doc lock %d failed: %v", documentID, err)
			}
		}()
	}

	claimed, err := s.docStore.ClaimForProcessing(documentID, token, s.staleAfter)
	if err != nil {
		return err
	}
	if !claimed {
		return apperr.Newf(apperr.KindConflict, "document %d is already being processed", documentID)
	}

	if err := s.run(ctx, doc); err != nil {
		return err
	}
	return nil
}

func (s *PipelineService) run(ctx context.Context, doc *model.Document) error {
	// Extract.
	text, err := extractText(doc)
	if err != nil {
		return s.fail(doc, model.DocStatusExtracting, err)
	}
	sum := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(sum[:])

	// Unchanged content that is still fully indexed needs no re-run.
	if doc.ContentHash == contentHash && s.indexer.ChunkCount(doc.TenantID) > 0 && doc.Status == model.DocStatusIndexed {
		if err := s.docStore.MarkIndexed(doc.ID, contentHash); err != nil {
			return s.fail(doc, model.DocStatusExtracting, err)
		}
		return nil
	}

	if err := s.stageCheck(ctx, doc, model.DocStatusExtracting); err != nil {
		return err
	}

	// Chunk. Status-write failures are routed through fail as well: a
	// document must never strand at an in-flight status, or the claim
	// gate would refuse every re-submission.
	if err := s.docStore.UpdateStatus(doc.ID, model.DocStatusChunking); err != nil {
		return s.fail(doc, model.DocStatusChunking, err)
	}
	pieces := chunker.Split(text, chunker.Params{
		Size:    s.ragCfg.ChunkSize,
		Overlap: s.ragCfg.ChunkOverlap,
	})
	if len(pieces) == 0 {
		return s.fail(doc, model.DocStatusChunking,
			apperr.New(apperr.KindValidation, "document contains no extractable text"))
	}
	if err := s.stageCheck(ctx, doc, model.DocStatusChunking); err != nil {
		return err
	}

	// Embed.
	if err := s.docStore.UpdateStatus(doc.ID, model.DocStatusEmbedding); err != nil {
		return s.fail(doc, model.DocStatusEmbedding, err)
	}
	texts := make([]string, len(pieces))
	for i := range pieces {
		texts[i] = pieces[i].Text
	}
	vectors, err := s.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return s.fail(doc, model.DocStatusEmbedding, err)
	}
	if err := s.stageCheck(ctx, doc, model.DocStatusEmbedding); err != nil {
		return err
	}

	// Index: retire the old generation in both views and in the database,
	// write the new generation, then flip the document to indexed.
	if err := s.retireOldGeneration(doc); err != nil {
		return s.fail(doc, model.DocStatusEmbedding, err)
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, p := range pieces {
		chunkSum := sha256.Sum256([]byte(p.Text))
		chunks[i] = model.Chunk{
			DocumentID:     doc.ID,
			TenantID:       doc.TenantID,
			Ordinal:        i,
			Content:        p.Text,
			ContentHash:    hex.EncodeToString(chunkSum[:]),
			SpanStart:      p.Start,
			SpanEnd:        p.End,
			ForceSplit:     p.ForceSplit,
			EmbeddingModel: s.embedder.Model(),
		}
		chunks[i].SetEmbedding(vectors[i])
	}
	if err := s.chunkStore.CreateBatch(chunks); err != nil {
		return s.fail(doc, model.DocStatusEmbedding, err)
	}

	entries := make([]index.Entry, len(chunks))
	for i := range chunks {
		entries[i] = index.Entry{
			ChunkID:        chunks[i].ID,
			DocumentID:     doc.ID,
			Ordinal:        chunks[i].Ordinal,
			Content:        chunks[i].Content,
			Vector:         vectors[i],
			EmbeddingModel: chunks[i].EmbeddingModel,
			DocCreatedAt:   doc.CreatedAt,
		}
	}
	if err := s.indexer.Index(doc.TenantID, entries); err != nil {
		return s.fail(doc, model.DocStatusEmbedding, err)
	}

	if err := s.docStore.MarkIndexed(doc.ID, contentHash); err != nil {
		return s.fail(doc, model.DocStatusEmbedding, err)
	}

	if s.cache != nil {
		if err := s.cache.EvictByDocument(ctx, doc.TenantID, doc.ID); err != nil {
			log.Printf("evict cached answers for document %d failed: %v", doc.ID, err)
		}
	}
	return nil
}

// retireOldGeneration removes the document's previous chunks from both
// index views and flags the rows superseded. Removal is retried because an
// index_consistency error means the views diverged mid-flight.
func (s *PipelineService) retireOldGeneration(doc *model.Document) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		lastErr = s.indexer.RemoveDocument(doc.TenantID, doc.ID)
		if lastErr == nil {
			break
		}
		if !apperr.Retryable(lastErr) {
			return lastErr
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return s.chunkStore.SupersedeByDocumentID(doc.ID)
}

// stageCheck aborts between stages when the run was cancelled, leaving the
// document failed at the stage it reached so a re-submission can restart.
func (s *PipelineService) stageCheck(ctx context.Context, doc *model.Document, stage string) error {
	if err := ctx.Err(); err != nil {
		return s.fail(doc, stage, apperr.Wrap(apperr.KindInternal, "processing cancelled", err))
	}
	return nil
}

func (s *PipelineService) fail(doc *model.Document, stage string, cause error) error {
	if err := s.docStore.MarkFailed(doc.ID, stage, cause.Error()); err != nil {
		log.Printf("mark document %d failed errored: %v", doc.ID, err)
	}
	return cause
}
