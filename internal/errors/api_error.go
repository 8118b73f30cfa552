package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]any) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

func abort(c *gin.Context, status int, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, NewAPIError(message, details))
}

// BadRequest sends a 400 and aborts the request.
func BadRequest(c *gin.Context, message string, details map[string]any) {
	abort(c, http.StatusBadRequest, message, details)
}

// Unauthorized sends a 401 and aborts the request.
func Unauthorized(c *gin.Context, message string, details map[string]any) {
	abort(c, http.StatusUnauthorized, message, details)
}

// NotFound sends a 404 and aborts the request.
func NotFound(c *gin.Context, message string, details map[string]any) {
	abort(c, http.StatusNotFound, message, details)
}

// Internal sends a 500 and aborts the request.
func Internal(c *gin.Context, message string, details map[string]any) {
	abort(c, http.StatusInternalServerError, message, details)
}

// ServiceUnavailable sends a 503 and aborts the request. Used when push
// delivery is not configured on this deployment.
func ServiceUnavailable(c *gin.Context, message string, details map[string]any) {
	abort(c, http.StatusServiceUnavailable, message, details)
}
