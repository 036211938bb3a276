// internal/pkg/response/response.go
package response

import (
	"net/http"

	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort before writing so later handlers never run
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// FromError writes err with the status its kind maps to. Only the
// user-facing message is exposed; causes stay in the logs.
func FromError(c *gin.Context, err error) {
	status := StatusFromError(err)
	Error(c, status, xerrors.UserMessage(err, http.StatusText(status)), nil)
}

// StatusFromError maps an error kind to an HTTP status.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case xerrors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusForbidden
	case xerrors.Is(err, xerrors.ErrBadRequest), xerrors.Is(err, xerrors.ErrInvalidSignature):
		return http.StatusBadRequest
	case xerrors.Is(err, xerrors.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case xerrors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case xerrors.Is(err, xerrors.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// TooManyRequests sends a 429 response.
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, message, nil)
}
