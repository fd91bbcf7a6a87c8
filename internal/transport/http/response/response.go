package response

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/apperr"
)

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeUnsupportedFormat    = 40001
	CodeEmptyContent         = 40002
	CodeParseError           = 40003
	CodeNoDocumentBound      = 40004
	CodeInvalidConfiguration = 40005
	CodeDocumentTooLarge     = 41300
	CodeUnauthorized         = 40100
	CodeSessionNotFound      = 40401
	CodeSessionBusy          = 40901
	CodeInternalServer       = 50000
	CodeNetworkError         = 50201
	CodeSummarizationFailed  = 50202
	CodeAnswerFailed         = 50203
	CodeTimeout              = 50400
)

type APIResponse struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
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

// FromError writes the envelope for a service error. Retryable tells the
// client whether sending the same request again can succeed.
func FromError(c *gin.Context, err error) {
	status, code := classify(err)
	message := err.Error()
	if code == CodeInternalServer {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		message = "internal server error"
	}
	c.JSON(status, APIResponse{
		Code:      code,
		Message:   message,
		Retryable: apperr.ClassOf(err) == apperr.ClassRetry,
	})
}

func classify(err error) (int, int) {
	switch {
	case errors.Is(err, apperr.ErrSessionNotFound):
		return http.StatusNotFound, CodeSessionNotFound
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, apperr.ErrSessionBusy):
		return http.StatusConflict, CodeSessionBusy
	case errors.Is(err, apperr.ErrNetwork):
		return http.StatusBadGateway, CodeNetworkError
	case errors.Is(err, apperr.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, CodeUnsupportedFormat
	case errors.Is(err, apperr.ErrEmptyContent):
		return http.StatusUnprocessableEntity, CodeEmptyContent
	case errors.Is(err, apperr.ErrParse):
		return http.StatusUnprocessableEntity, CodeParseError
	case errors.Is(err, apperr.ErrNoDocumentBound):
		return http.StatusConflict, CodeNoDocumentBound
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, apperr.ErrInvalidConfiguration):
		return http.StatusBadRequest, CodeInvalidConfiguration
	case errors.Is(err, apperr.ErrSummarizationFailed):
		return http.StatusBadGateway, CodeSummarizationFailed
	case errors.Is(err, apperr.ErrAnswerFailed):
		return http.StatusBadGateway, CodeAnswerFailed
	}
	return http.StatusInternalServerError, CodeInternalServer
}
