package model

import "time"

// ValidationTask statuses. Completed and rejected are terminal.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusRejected   = "rejected"
)

// Result classifications for a submitted review.
const (
	ResultCorrect          = "correct"
	ResultIncorrect        = "incorrect"
	ResultPartiallyCorrect = "partially_correct"
)

// ValidationTask is one unit of human review over one AI-extracted field of
// one document.
type ValidationTask struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	DocumentID uint `gorm:"not null;index" json:"document_id"`
	// AnswerID is set when the task was opened for a low-confidence answer
	// rather than an extracted field.
	AnswerID uint `gorm:"index" json:"answer_id,omitempty"`

	FieldName      string `gorm:"size:128;not null" json:"field_name"`
	ExtractedValue string `gorm:"type:text" json:"extracted_value"`

	Status   string `gorm:"size:16;not null;index;default:pending" json:"status"`
	Priority int    `gorm:"not null;default:1" json:"priority"` // higher = more urgent
	Assignee uint   `gorm:"index" json:"assignee,omitempty"`

	// Result fields, populated on submission.
	Classification   string  `gorm:"size:32" json:"classification,omitempty"`
	ResultConfidence float64 `json:"result_confidence,omitempty"`
	CorrectedValue   string  `gorm:"type:text" json:"corrected_value,omitempty"`
	Notes            string  `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t *ValidationTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusRejected
}

// CanTransition reports whether moving to the given status is legal:
// pending -> in_progress -> completed | rejected.
func (t *ValidationTask) CanTransition(to string) bool {
	switch t.Status {
	case TaskStatusPending:
		return to == TaskStatusInProgress
	case TaskStatusInProgress:
		return to == TaskStatusCompleted || to == TaskStatusRejected
	}
	return false
}
