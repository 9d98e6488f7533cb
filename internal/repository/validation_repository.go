package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"documind/internal/model"
)

type ValidationRepository struct {
	db *gorm.DB
}

func NewValidationRepository(db *gorm.DB) *ValidationRepository {
	return &ValidationRepository{db: db}
}

func (r *ValidationRepository) Create(task *model.ValidationTask) error {
	if err := r.db.Create(task).Error; err != nil {
		return fmt.Errorf("create validation task failed: %w", err)
	}
	return nil
}

func (r *ValidationRepository) GetByIDAndTenantID(id, tenantID uint) (*model.ValidationTask, error) {
	var task model.ValidationTask
	if err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get validation task failed: %w", err)
	}
	return &task, nil
}

// ListByTenantID lists tasks, optionally filtered by status, highest
// priority first.
func (r *ValidationRepository) ListByTenantID(tenantID uint, status string) ([]model.ValidationTask, error) {
	q := r.db.Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tasks []model.ValidationTask
	if err := q.Order("priority DESC, created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list validation tasks failed: %w", err)
	}
	return tasks, nil
}

// Save persists a full task update after a state transition.
func (r *ValidationRepository) Save(task *model.ValidationTask) error {
	if err := r.db.Save(task).Error; err != nil {
		return fmt.Errorf("save validation task failed: %w", err)
	}
	return nil
}
