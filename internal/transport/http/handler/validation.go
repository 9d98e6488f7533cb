package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"documind/internal/app"
	"documind/internal/transport/http/response"
)

type ValidationHandler struct {
	validationService *app.ValidationService
}

type CreateTaskRequest struct {
	DocumentID     uint   `json:"document_id" binding:"required"`
	AnswerID       uint   `json:"answer_id"`
	FieldName      string `json:"field_name" binding:"required,max=128"`
	ExtractedValue string `json:"extracted_value"`
	Priority       int    `json:"priority" binding:"min=0,max=3"`
}

type AssignTaskRequest struct {
	Assignee uint `json:"assignee" binding:"required"`
}

type SubmitResultRequest struct {
	Classification   string  `json:"classification" binding:"required"`
	ResultConfidence float64 `json:"result_confidence" binding:"min=0,max=1"`
	CorrectedValue   string  `json:"corrected_value"`
	Notes            string  `json:"notes"`
}

type RejectTaskRequest struct {
	Notes string `json:"notes"`
}

func NewValidationHandler(validationService *app.ValidationService) *ValidationHandler {
	return &ValidationHandler{validationService: validationService}
}

func (h *ValidationHandler) Create(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	task, err := h.validationService.Create(app.CreateTaskInput{
		TenantID:       tenantID,
		DocumentID:     req.DocumentID,
		AnswerID:       req.AnswerID,
		FieldName:      req.FieldName,
		ExtractedValue: req.ExtractedValue,
		Priority:       req.Priority,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, task)
}

func (h *ValidationHandler) List(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	tasks, err := h.validationService.List(tenantID, c.Query("status"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"tasks": tasks})
}

func (h *ValidationHandler) Get(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	taskID, err := parseUintParam(c, "id")
	if err != nil || taskID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid task id")
		return
	}

	task, err := h.validationService.Get(tenantID, taskID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, task)
}

func (h *ValidationHandler) Assign(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	taskID, err := parseUintParam(c, "id")
	if err != nil || taskID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid task id")
		return
	}

	var req AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	task, err := h.validationService.Assign(tenantID, taskID, req.Assignee)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, task)
}

func (h *ValidationHandler) SubmitResult(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	taskID, err := parseUintParam(c, "id")
	if err != nil || taskID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid task id")
		return
	}

	var req SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	task, err := h.validationService.SubmitResult(tenantID, taskID, app.SubmitResultInput{
		Classification:   req.Classification,
		ResultConfidence: req.ResultConfidence,
		CorrectedValue:   req.CorrectedValue,
		Notes:            req.Notes,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, task)
}

func (h *ValidationHandler) Reject(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	taskID, err := parseUintParam(c, "id")
	if err != nil || taskID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid task id")
		return
	}

	var req RejectTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	task, err := h.validationService.Reject(tenantID, taskID, req.Notes)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, task)
}
