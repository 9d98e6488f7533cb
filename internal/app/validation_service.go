package app

import (
	"strings"
	"time"

	"documind/internal/apperr"
	"documind/internal/model"
)

type taskStore interface {
	Create(task *model.ValidationTask) error
	GetByIDAndTenantID(id, tenantID uint) (*model.ValidationTask, error)
	ListByTenantID(tenantID uint, status string) ([]model.ValidationTask, error)
	Save(task *model.ValidationTask) error
}

// ValidationService drives review tasks through their state machine:
// pending -> in_progress -> completed | rejected. Terminal tasks never
// move again.
type ValidationService struct {
	tasks taskStore
}

func NewValidationService(tasks taskStore) *ValidationService {
	return &ValidationService{tasks: tasks}
}

type CreateTaskInput struct {
	TenantID       uint
	DocumentID     uint
	AnswerID       uint
	FieldName      string
	ExtractedValue string
	Priority       int
}

func (s *ValidationService) Create(input CreateTaskInput) (*model.ValidationTask, error) {
	fieldName := strings.TrimSpace(input.FieldName)
	if fieldName == "" {
		return nil, apperr.New(apperr.KindValidation, "field_name is required")
	}
	if input.DocumentID == 0 {
		return nil, apperr.New(apperr.KindValidation, "document_id is required")
	}
	priority := input.Priority
	if priority < 1 {
		priority = 1
	}
	task := &model.ValidationTask{
		TenantID:       input.TenantID,
		DocumentID:     input.DocumentID,
		AnswerID:       input.AnswerID,
		FieldName:      fieldName,
		ExtractedValue: input.ExtractedValue,
		Status:         model.TaskStatusPending,
		Priority:       priority,
	}
	if err := s.tasks.Create(task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *ValidationService) Get(tenantID, taskID uint) (*model.ValidationTask, error) {
	return s.get(tenantID, taskID)
}

func (s *ValidationService) List(tenantID uint, status string) ([]model.ValidationTask, error) {
	switch status {
	case "", model.TaskStatusPending, model.TaskStatusInProgress, model.TaskStatusCompleted, model.TaskStatusRejected:
	default:
		return nil, apperr.Newf(apperr.KindValidation, "unknown status %q", status)
	}
	return s.tasks.ListByTenantID(tenantID, status)
}

// Assign moves a pending task to in_progress for the given reviewer.
func (s *ValidationService) Assign(tenantID, taskID, assignee uint) (*model.ValidationTask, error) {
	if assignee == 0 {
		return nil, apperr.New(apperr.KindValidation, "assignee is required")
	}
	task, err := s.get(tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(task, model.TaskStatusInProgress); err != nil {
		return nil, err
	}
	now := time.Now()
	task.Assignee = assignee
	task.StartedAt = &now
	if err := s.tasks.Save(task); err != nil {
		return nil, err
	}
	return task, nil
}

type SubmitResultInput struct {
	Classification   string
	ResultConfidence float64
	CorrectedValue   string
	Notes            string
}

// SubmitResult completes an in_progress task with the reviewer's verdict.
func (s *ValidationService) SubmitResult(tenantID, taskID uint, input SubmitResultInput) (*model.ValidationTask, error) {
	switch input.Classification {
	case model.ResultCorrect, model.ResultIncorrect, model.ResultPartiallyCorrect:
	default:
		return nil, apperr.Newf(apperr.KindValidation, "unknown classification %q", input.Classification)
	}
	if input.ResultConfidence < 0 || input.ResultConfidence > 1 {
		return nil, apperr.New(apperr.KindValidation, "result confidence must be between 0 and 1")
	}
	if input.Classification != model.ResultCorrect && strings.TrimSpace(input.CorrectedValue) == "" {
		return nil, apperr.New(apperr.KindValidation, "corrected value is required when the result is not correct")
	}

	task, err := s.get(tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(task, model.TaskStatusCompleted); err != nil {
		return nil, err
	}
	now := time.Now()
	task.Classification = input.Classification
	task.ResultConfidence = input.ResultConfidence
	task.CorrectedValue = input.CorrectedValue
	task.Notes = input.Notes
	task.CompletedAt = &now
	if err := s.tasks.Save(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Reject closes an in_progress task without a verdict, for example when
// the underlying document turned out to be unreadable.
func (s *ValidationService) Reject(tenantID, taskID uint, notes string) (*model.ValidationTask, error) {
	task, err := s.get(tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(task, model.TaskStatusRejected); err != nil {
		return nil, err
	}
	now := time.Now()
	task.Notes = notes
	task.CompletedAt = &now
	if err := s.tasks.Save(task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *ValidationService) get(tenantID, taskID uint) (*model.ValidationTask, error) {
	task, err := s.tasks.GetByIDAndTenantID(taskID, tenantID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "validation task %d not found", taskID)
	}
	return task, nil
}

func (s *ValidationService) transition(task *model.ValidationTask, to string) error {
	if !task.CanTransition(to) {
		return apperr.Newf(apperr.KindValidation,
			"cannot move task %d from %s to %s", task.ID, task.Status, to)
	}
	task.Status = to
	return nil
}
