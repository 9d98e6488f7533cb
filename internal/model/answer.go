package model

import (
	"encoding/json"
	"time"
)

// Answer records one generated answer. Immutable after creation.
type Answer struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	TenantID   uint   `gorm:"not null;index" json:"tenant_id"`
	UserID     uint   `gorm:"not null;index" json:"user_id"`
	Question   string `gorm:"type:text;not null" json:"question"`
	AnswerText string `gorm:"type:text;not null" json:"answer"`
	ModelUsed  string `gorm:"size:64;not null" json:"model_used"`

	// ContextChunkIDs is the JSON-encoded list of chunk ids handed to the
	// generation model as context, in rank order.
	ContextChunkIDs string `gorm:"type:text" json:"-"`

	ConfidenceScore  float64 `json:"confidence_score"`
	RequiresReview   bool    `gorm:"not null;default:false;index" json:"requires_review"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at"`

	Citations []Citation `gorm:"foreignKey:AnswerID" json:"citations,omitempty"`
}

func (a *Answer) ChunkIDs() []uint {
	if a.ContextChunkIDs == "" {
		return nil
	}
	var ids []uint
	_ = json.Unmarshal([]byte(a.ContextChunkIDs), &ids)
	return ids
}

func (a *Answer) SetChunkIDs(ids []uint) {
	b, _ := json.Marshal(ids)
	a.ContextChunkIDs = string(b)
}
