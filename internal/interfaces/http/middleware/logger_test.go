package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"paygate.backend/pkg/logger"
)

func TestLoggerMiddleware_LogsWithoutPanicking(t *testing.T) {
	logger.Init("development")
	c, w := testContext(http.MethodGet, "/v1/payments?foo=bar")

	assert.NotPanics(t, func() {
		LoggerMiddleware()(c)
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
