// Package response renders the standard success/error envelopes described
// in spec.md §7, matching the teacher's gin.H-based response helpers.
package response

import (
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "paygate.backend/internal/domain/errors"
)

// requestIDKey mirrors middleware.RequestIDKey. Duplicated rather than
// imported to avoid a response<->middleware import cycle (middleware calls
// into response to render its own error bodies).
const requestIDKey = "request_id"

// Success sends a success response.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error sends the standard error body: { error, message, correlationId,
// timestamp, path }. Arbitrary errors are mapped to an opaque 500 rather
// than leaking their message.
func Error(c *gin.Context, err error) {
	var appErr *domainerrors.AppError
	if !domainerrors.As(err, &appErr) {
		appErr = domainerrors.InternalError(err)
	}

	c.JSON(appErr.Status, gin.H{
		"error":         appErr.Code,
		"message":       appErr.Message,
		"correlationId": correlationID(c),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"path":          c.Request.URL.Path,
	})
}

// ErrorWithError sends an error response with a caller-chosen status and
// code, for handlers that need to report something outside the AppError
// taxonomy (e.g. framework-level binding failures).
func ErrorWithError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"error":         code,
		"message":       message,
		"correlationId": correlationID(c),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"path":          c.Request.URL.Path,
	})
}

func correlationID(c *gin.Context) string {
	if id, ok := c.Get(requestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
