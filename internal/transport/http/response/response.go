package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"documind/internal/apperr"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeNotFound           = 40400
	CodeConflict           = 40900
	CodeInternalServer     = 50000
	CodeProviderDown       = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// FromError maps the error taxonomy onto HTTP statuses and API codes.
func FromError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case apperr.KindNotFound:
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case apperr.KindConflict:
		Error(c, http.StatusConflict, CodeConflict, err.Error())
	case apperr.KindTransientProvider:
		Error(c, http.StatusServiceUnavailable, CodeProviderDown, "answer provider temporarily unavailable")
	case apperr.KindPermanentProvider:
		Error(c, http.StatusBadGateway, CodeProviderDown, "answer provider rejected the request")
	default:
		Error(c, http.StatusInternalServerError, CodeInternalServer, "internal error")
	}
}
