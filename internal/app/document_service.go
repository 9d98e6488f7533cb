package app

import (
	"context"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"documind/internal/apperr"
	"documind/internal/index"
	"documind/internal/model"
	"documind/internal/platform/rabbitmq"
)

const maxUploadBytes = 20 << 20

type documentStore interface {
	Create(doc *model.Document) error
	GetByIDAndTenantID(id, tenantID uint) (*model.Document, error)
	ListByTenantID(tenantID uint) ([]model.Document, error)
	DeleteByIDAndTenantID(id, tenantID uint) error
}

type chunkDeleter interface {
	DeleteByDocumentID(documentID uint) error
}

type jobPublisher interface {
	Publish(ctx context.Context, job rabbitmq.PipelineJob) error
}

// DocumentService owns the document lifecycle around the pipeline: upload,
// listing, retrieval and cascade delete.
type DocumentService struct {
	docStore   documentStore
	chunkStore chunkDeleter
	indexer    *index.Indexer
	publisher  jobPublisher  // optional, nil means no async processing
	cache      answerEvictor // optional
	// staleAfter mirrors the pipeline's takeover threshold so re-submission
	// is allowed as soon as an abandoned run becomes reclaimable.
	staleAfter time.Duration
}

func NewDocumentService(
	store documentStore,
	chunkStore chunkDeleter,
	indexer *index.Indexer,
	publisher jobPublisher,
	cache answerEvictor,
	staleAfter time.Duration,
) *DocumentService {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &DocumentService{
		docStore:   store,
		chunkStore: chunkStore,
		indexer:    indexer,
		publisher:  publisher,
		cache:      cache,
		staleAfter: staleAfter,
	}
}

type UploadInput struct {
	TenantID uint
	UserID   uint
	Filename string
	MimeType string
	Content  []byte
}

// Upload stores the document and enqueues a pipeline job for it. The
// document is visible immediately with status "uploaded" but only enters
// retrieval once the pipeline marks it indexed.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return nil, apperr.New(apperr.KindValidation, "filename is required")
	}
	if len(input.Content) == 0 {
		return nil, apperr.New(apperr.KindValidation, "document content is empty")
	}
	if len(input.Content) > maxUploadBytes {
		return nil, apperr.Newf(apperr.KindValidation, "document exceeds %d bytes", maxUploadBytes)
	}

	mimeType := strings.TrimSpace(input.MimeType)
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !supportedMimeType(mimeType) {
		return nil, apperr.Newf(apperr.KindValidation, "unsupported mime type %q", mimeType)
	}

	doc := &model.Document{
		TenantID:   input.TenantID,
		UploadedBy: input.UserID,
		Filename:   filename,
		MimeType:   mimeType,
		SizeBytes:  int64(len(input.Content)),
		RawContent: input.Content,
		Status:     model.DocStatusUploaded,
	}
	if err := s.docStore.Create(doc); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		job := rabbitmq.PipelineJob{
			TenantID:   doc.TenantID,
			DocumentID: doc.ID,
		}
		if err := s.publisher.Publish(ctx, job); err != nil {
			// The upload stands; processing can be re-requested explicitly.
			log.Printf("publish pipeline job for document %d failed: %v", doc.ID, err)
		}
	}
	return doc, nil
}

// RequestProcessing enqueues a pipeline run for an existing document,
// used for retries after failure and for re-processing.
func (s *DocumentService) RequestProcessing(ctx context.Context, tenantID, documentID uint) error {
	doc, err := s.docStore.GetByIDAndTenantID(documentID, tenantID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperr.Newf(apperr.KindNotFound, "document %d not found", documentID)
	}
	if !doc.Processable() && !doc.Stalled(s.staleAfter) {
		return apperr.Newf(apperr.KindConflict, "document %d is being processed", documentID)
	}
	if s.publisher == nil {
		return apperr.New(apperr.KindInternal, "processing queue is not configured")
	}
	return s.publisher.Publish(ctx, rabbitmq.PipelineJob{
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
	})
}

func (s *DocumentService) Get(tenantID, documentID uint) (*model.Document, error) {
	doc, err := s.docStore.GetByIDAndTenantID(documentID, tenantID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "document %d not found", documentID)
	}
	return doc, nil
}

func (s *DocumentService) List(tenantID uint) ([]model.Document, error) {
	return s.docStore.ListByTenantID(tenantID)
}

// Delete removes the document, its chunks and its entries in both index
// views, and drops cached answers that may cite it.
func (s *DocumentService) Delete(ctx context.Context, tenantID, documentID uint) error {
	doc, err := s.docStore.GetByIDAndTenantID(documentID, tenantID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperr.Newf(apperr.KindNotFound, "document %d not found", documentID)
	}

	if err := s.indexer.RemoveDocument(tenantID, documentID); err != nil {
		return err
	}
	if err := s.chunkStore.DeleteByDocumentID(documentID); err != nil {
		return err
	}
	if err := s.docStore.DeleteByIDAndTenantID(documentID, tenantID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.EvictByDocument(ctx, tenantID, documentID); err != nil {
			log.Printf("evict cached answers for document %d failed: %v", documentID, err)
		}
	}
	return nil
}

func supportedMimeType(mimeType string) bool {
	switch {
	case mimeType == "application/pdf",
		mimeType == "application/json",
		strings.HasPrefix(mimeType, "text/"):
		return true
	}
	return false
}
