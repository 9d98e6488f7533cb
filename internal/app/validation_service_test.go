package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/apperr"
	"documind/internal/model"
)

type fakeTaskStore struct {
	nextID uint
	tasks  map[uint]*model.ValidationTask
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{nextID: 1, tasks: make(map[uint]*model.ValidationTask)}
}

func (f *fakeTaskStore) Create(task *model.ValidationTask) error {
	task.ID = f.nextID
	f.nextID++
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) GetByIDAndTenantID(id, tenantID uint) (*model.ValidationTask, error) {
	task, ok := f.tasks[id]
	if !ok || task.TenantID != tenantID {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) ListByTenantID(tenantID uint, status string) ([]model.ValidationTask, error) {
	var out []model.ValidationTask
	for _, task := range f.tasks {
		if task.TenantID != tenantID {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, *task)
	}
	return out, nil
}

func (f *fakeTaskStore) Save(task *model.ValidationTask) error {
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func newTaskFixture(t *testing.T, svc *ValidationService) *model.ValidationTask {
	t.Helper()
	task, err := svc.Create(CreateTaskInput{
		TenantID:       1,
		DocumentID:     10,
		FieldName:      "invoice_total",
		ExtractedValue: "1042.50",
		Priority:       2,
	})
	require.NoError(t, err)
	return task
}

func TestValidationLifecycleHappyPath(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	task := newTaskFixture(t, svc)
	assert.Equal(t, model.TaskStatusPending, task.Status)

	task, err := svc.Assign(1, task.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, task.Status)
	assert.Equal(t, uint(7), task.Assignee)
	assert.NotNil(t, task.StartedAt)

	task, err = svc.SubmitResult(1, task.ID, SubmitResultInput{
		Classification:   model.ResultPartiallyCorrect,
		ResultConfidence: 0.8,
		CorrectedValue:   "1042.55",
		Notes:            "last digit misread",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, task.Status)
	assert.Equal(t, "1042.55", task.CorrectedValue)
	assert.NotNil(t, task.CompletedAt)
}

func TestValidationRejectFromInProgress(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	task := newTaskFixture(t, svc)

	_, err := svc.Assign(1, task.ID, 7)
	require.NoError(t, err)

	task, err = svc.Reject(1, task.ID, "document is illegible")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRejected, task.Status)
	assert.Equal(t, "document is illegible", task.Notes)
}

func TestValidationIllegalTransitions(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	task := newTaskFixture(t, svc)

	// Pending cannot complete or reject directly.
	_, err := svc.SubmitResult(1, task.ID, SubmitResultInput{
		Classification:   model.ResultCorrect,
		ResultConfidence: 1,
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Reject(1, task.ID, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidationTerminalTasksAreImmutable(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	task := newTaskFixture(t, svc)

	_, err := svc.Assign(1, task.ID, 7)
	require.NoError(t, err)
	_, err = svc.SubmitResult(1, task.ID, SubmitResultInput{
		Classification:   model.ResultCorrect,
		ResultConfidence: 1,
	})
	require.NoError(t, err)

	_, err = svc.Assign(1, task.ID, 8)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Reject(1, task.ID, "too late")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidationSubmitRequiresCorrectionWhenWrong(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	task := newTaskFixture(t, svc)
	_, err := svc.Assign(1, task.ID, 7)
	require.NoError(t, err)

	_, err = svc.SubmitResult(1, task.ID, SubmitResultInput{
		Classification:   model.ResultIncorrect,
		ResultConfidence: 0.9,
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidationTenantScoping(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	task := newTaskFixture(t, svc)

	_, err := svc.Get(2, task.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Assign(2, task.ID, 7)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestValidationListRejectsUnknownStatus(t *testing.T) {
	svc := NewValidationService(newFakeTaskStore())
	_, err := svc.List(1, "bogus")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
