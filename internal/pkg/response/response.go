package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
)

// APIResponse is the envelope every endpoint returns
type APIResponse struct {
	Success    bool        `json:"success" example:"true"`
	StatusCode int         `json:"statusCode" example:"200"`
	Message    string      `json:"message,omitempty" example:"ok"`
	Code       string      `json:"code,omitempty" example:"REPORT_NOT_FOUND"`
	Data       interface{} `json:"data,omitempty"`
}

// PageData wraps a page of items with its paging metadata
type PageData struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total" example:"25"`
	Limit int         `json:"limit" example:"10"`
	Page  int         `json:"page" example:"1"`
}

// Success sends a 200 OK response with data
func Success(c *gin.Context, data interface{}, message ...string) {
	c.JSON(http.StatusOK, APIResponse{
		Success:    true,
		StatusCode: http.StatusOK,
		Message:    first(message),
		Data:       data,
	})
}

// Created sends a 201 Created response
func Created(c *gin.Context, data interface{}, message ...string) {
	c.JSON(http.StatusCreated, APIResponse{
		Success:    true,
		StatusCode: http.StatusCreated,
		Message:    first(message),
		Data:       data,
	})
}

// Paginated sends a paginated response
func Paginated(c *gin.Context, items interface{}, total int64, limit int, page ...int) {
	pageNum := 1
	if len(page) > 0 {
		pageNum = page[0]
	}

	c.JSON(http.StatusOK, APIResponse{
		Success:    true,
		StatusCode: http.StatusOK,
		Data: PageData{
			Items: items,
			Total: total,
			Limit: limit,
			Page:  pageNum,
		},
	})
}

// Error sends an error response with custom status code and message
func Error(c *gin.Context, statusCode int, message string, errorCode ...string) {
	c.JSON(statusCode, APIResponse{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
		Code:       first(errorCode),
	})
}

// ErrorWithData sends an error response carrying extra details in data
func ErrorWithData(c *gin.Context, statusCode int, message string, data interface{}, errorCode ...string) {
	c.JSON(statusCode, APIResponse{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
		Code:       first(errorCode),
		Data:       data,
	})
}

// BadRequest sends a 400 Bad Request error
func BadRequest(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusBadRequest, message, errorCode...)
}

// Unauthorized sends a 401 Unauthorized error
func Unauthorized(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusUnauthorized, message, errorCode...)
}

// Forbidden sends a 403 Forbidden error
func Forbidden(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusForbidden, message, errorCode...)
}

// NotFound sends a 404 Not Found error
func NotFound(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusNotFound, message, errorCode...)
}

// Conflict sends a 409 Conflict error
func Conflict(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusConflict, message, errorCode...)
}

// ValidationError sends a 422 Unprocessable Entity error
func ValidationError(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusUnprocessableEntity, message, errorCode...)
}

// TooManyRequests sends a 429 error
func TooManyRequests(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, http.StatusTooManyRequests, message, data, "RATE_LIMITED")
}

// InternalServerError sends a 500 Internal Server Error
func InternalServerError(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusInternalServerError, message, errorCode...)
}

// ServiceUnavailable sends a 503 Service Unavailable error
func ServiceUnavailable(c *gin.Context, message string, errorCode ...string) {
	Error(c, http.StatusServiceUnavailable, message, errorCode...)
}

// BindJSONError handles JSON decode errors in request body
func BindJSONError(c *gin.Context, err error) {
	BadRequest(c, "Invalid request format: "+err.Error(), "INVALID_JSON")
}

// ValidationFailed handles validation errors
func ValidationFailed(c *gin.Context, message string) {
	ValidationError(c, message, "VALIDATION_FAILED")
}

// DatabaseError handles database operation errors
func DatabaseError(c *gin.Context, message string) {
	InternalServerError(c, message, "DATABASE_ERROR")
}

// FromError maps the sentinel errors in pkg/errors onto status codes
func FromError(c *gin.Context, err error, message string) {
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		NotFound(c, message, "NOT_FOUND")
	case apperrors.Is(err, apperrors.ErrForbidden):
		Forbidden(c, message, "FORBIDDEN")
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		Unauthorized(c, message, "UNAUTHORIZED")
	case apperrors.Is(err, apperrors.ErrValidation):
		ValidationFailed(c, err.Error())
	case apperrors.Is(err, apperrors.ErrConflict):
		Conflict(c, err.Error(), "CONFLICT")
	case apperrors.Is(err, apperrors.ErrUnavailable):
		ServiceUnavailable(c, message, "UNAVAILABLE")
	default:
		InternalServerError(c, message, "INTERNAL_ERROR")
	}
}

func first(values []string) string {
	if len(values) > 0 {
		return values[0]
	}
	return ""
}
