package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"documind/internal/model"
)

type AnswerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// CreateWithCitations persists the answer and its citations in one
// transaction, so a stored answer never lacks its citation rows.
func (r *AnswerRepository) CreateWithCitations(answer *model.Answer, citations []model.Citation) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(answer).Error; err != nil {
			return fmt.Errorf("create answer failed: %w", err)
		}
		for i := range citations {
			citations[i].AnswerID = answer.ID
		}
		if len(citations) > 0 {
			if err := tx.Create(&citations).Error; err != nil {
				return fmt.Errorf("create citations failed: %w", err)
			}
		}
		answer.Citations = citations
		return nil
	})
}

func (r *AnswerRepository) GetByIDAndTenantID(id, tenantID uint) (*model.Answer, error) {
	var answer model.Answer
	err := r.db.
		Preload("Citations").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&answer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get answer failed: %w", err)
	}
	return &answer, nil
}

// Stats aggregates answer metrics for one tenant.
type AnswerStats struct {
	TotalAnswers   int64   `json:"total_answers"`
	TotalCitations int64   `json:"total_citations"`
	AvgConfidence  float64 `json:"avg_confidence_score"`
}

func (r *AnswerRepository) StatsByTenantID(tenantID uint) (*AnswerStats, error) {
	var stats AnswerStats
	err := r.db.Model(&model.Answer{}).
		Where("tenant_id = ?", tenantID).
		Count(&stats.TotalAnswers).Error
	if err != nil {
		return nil, fmt.Errorf("count answers failed: %w", err)
	}
	if stats.TotalAnswers > 0 {
		err = r.db.Model(&model.Answer{}).
			Where("tenant_id = ?", tenantID).
			Select("AVG(confidence_score)").
			Scan(&stats.AvgConfidence).Error
		if err != nil {
			return nil, fmt.Errorf("average confidence failed: %w", err)
		}
	}
	err = r.db.Model(&model.Citation{}).
		Joins("JOIN answers ON answers.id = citations.answer_id").
		Where("answers.tenant_id = ?", tenantID).
		Count(&stats.TotalCitations).Error
	if err != nil {
		return nil, fmt.Errorf("count citations failed: %w", err)
	}
	return &stats, nil
}
