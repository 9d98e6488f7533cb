package repository

import (
	"fmt"

	"gorm.io/gorm"

	"documind/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.Create(&chunks).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

// ListActiveByDocumentID returns the current (non-superseded) chunk
// generation of a document, in ordinal order.
func (r *ChunkRepository) ListActiveByDocumentID(documentID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.
		Where("document_id = ? AND superseded = ?", documentID, false).
		Order("ordinal ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// ListByIDsAndTenantID hydrates chunks for answer context, tenant-scoped.
func (r *ChunkRepository) ListByIDsAndTenantID(ids []uint, tenantID uint) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	err := r.db.
		Where("id IN ? AND tenant_id = ?", ids, tenantID).
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list chunks by ids failed: %w", err)
	}
	return chunks, nil
}

// SupersedeByDocumentID retires the previous chunk generation. Chunks are
// never mutated in place; old rows stay for audit, flagged superseded.
func (r *ChunkRepository) SupersedeByDocumentID(documentID uint) error {
	err := r.db.Model(&model.Chunk{}).
		Where("document_id = ? AND superseded = ?", documentID, false).
		Update("superseded", true).Error
	if err != nil {
		return fmt.Errorf("supersede chunks failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CountByTenantID(tenantID uint) (int64, error) {
	var n int64
	err := r.db.Model(&model.Chunk{}).
		Where("tenant_id = ? AND superseded = ?", tenantID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return n, nil
}
