package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"documind/internal/ai"
	"documind/internal/app"
	"documind/internal/transport/http/response"
)

type RAGHandler struct {
	ragService *app.RAGService
}

type AskRequest struct {
	Question    string        `json:"question" binding:"required"`
	History     []ChatMessage `json:"conversation_history" binding:"max=20"`
	TopK        int           `json:"top_k" binding:"min=0,max=50"`
	DocumentIDs []uint        `json:"document_ids"`
	MimeType    string        `json:"mime_type"`
	// UploadedAfter keeps only documents created at or after this instant.
	UploadedAfter *time.Time `json:"uploaded_after"`
}

type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// SearchRequest binds from query string: GET /rag/search?q=...&top_k=...
type SearchRequest struct {
	Query         string     `form:"q" binding:"required"`
	TopK          int        `form:"top_k" binding:"min=0,max=50"`
	DocumentIDs   []uint     `form:"document_id"`
	MimeType      string     `form:"mime_type"`
	UploadedAfter *time.Time `form:"uploaded_after" time_format:"2006-01-02T15:04:05Z07:00"`
}

func NewRAGHandler(ragService *app.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

func (h *RAGHandler) Ask(c *gin.Context) {
	userID, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	history := make([]ai.ChatMessage, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}

	answer, err := h.ragService.Ask(c.Request.Context(), app.AskInput{
		TenantID: tenantID,
		UserID:   userID,
		Question: req.Question,
		History:  history,
		TopK:     req.TopK,
		Filters: app.SearchFilters{
			DocumentIDs:   req.DocumentIDs,
			MimeType:      req.MimeType,
			UploadedAfter: req.UploadedAfter,
		},
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, answer)
}

func (h *RAGHandler) Search(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid query parameters")
		return
	}

	results, err := h.ragService.Search(c.Request.Context(), tenantID, req.Query, req.TopK, app.SearchFilters{
		DocumentIDs:   req.DocumentIDs,
		MimeType:      req.MimeType,
		UploadedAfter: req.UploadedAfter,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"results": results})
}

func (h *RAGHandler) GetAnswer(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	answerID, err := parseUintParam(c, "id")
	if err != nil || answerID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid answer id")
		return
	}

	answer, err := h.ragService.GetAnswer(tenantID, answerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, answer)
}

func (h *RAGHandler) Stats(c *gin.Context) {
	_, tenantID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	stats, err := h.ragService.Stats(tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stats failed")
		return
	}
	response.OK(c, stats)
}
