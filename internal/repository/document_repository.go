package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"documind/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByIDAndTenantID(id, tenantID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByTenantID lists documents without raw content, newest first.
func (r *DocumentRepository) ListByTenantID(tenantID uint) ([]model.Document, error) {
	var list []model.Document
	err := r.db.
		Omit("raw_content").
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// ListByStatus is used at bootstrap to warm the in-memory indices.
func (r *DocumentRepository) ListByStatus(status string) ([]model.Document, error) {
	var list []model.Document
	err := r.db.
		Omit("raw_content").
		Where("status = ?", status).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list documents by status failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) DeleteByIDAndTenantID(id, tenantID uint) error {
	if err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

// UpdateStatus advances the lifecycle status of a document.
func (r *DocumentRepository) UpdateStatus(id uint, status string) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return fmt.Errorf("update document status failed: %w", err)
	}
	return nil
}

// ClaimForProcessing stamps the processing token and moves the document into
// the extracting stage. A document is claimable when its status allows a new
// run, or when it sits at an in-flight status untouched for longer than
// staleAfter: that run crashed without marking the document failed, and the
// row would otherwise refuse every re-submission forever. Returns false when
// a live run holds the document.
func (r *DocumentRepository) ClaimForProcessing(id uint, token string, staleAfter time.Duration) (bool, error) {
	cutoff := time.Now().Add(-staleAfter)
	res := r.db.Model(&model.Document{}).
		Where("id = ?", id).
		Where("status IN ? OR (status IN ? AND updated_at < ?)",
			[]string{model.DocStatusUploaded, model.DocStatusIndexed, model.DocStatusFailed},
			[]string{model.DocStatusExtracting, model.DocStatusChunking, model.DocStatusEmbedding},
			cutoff,
		).
		Updates(map[string]any{
			"status":           model.DocStatusExtracting,
			"processing_token": token,
			"failed_stage":     "",
			"error_msg":        "",
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim document failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *DocumentRepository) MarkIndexed(id uint, contentHash string) error {
	now := time.Now()
	err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]any{
		"status":       model.DocStatusIndexed,
		"content_hash": contentHash,
		"indexed_at":   &now,
	}).Error
	if err != nil {
		return fmt.Errorf("mark document indexed failed: %w", err)
	}
	return nil
}

// MarkFailed records the failing stage so a later run can resume or restart.
func (r *DocumentRepository) MarkFailed(id uint, stage, message string) error {
	err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]any{
		"status":       model.DocStatusFailed,
		"failed_stage": stage,
		"error_msg":    message,
	}).Error
	if err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}
