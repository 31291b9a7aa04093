package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDMiddleware_GeneratesIDWhenHeaderAbsent(t *testing.T) {
	c, _ := testContext(http.MethodGet, "/v1/payments")

	RequestIDMiddleware()(c)

	id, ok := c.Get(RequestIDKey)
	assert.True(t, ok)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, c.Request.Context().Value("request_id"))
}

func TestRequestIDMiddleware_PreservesIncomingHeader(t *testing.T) {
	c, _ := testContext(http.MethodGet, "/v1/payments")
	c.Request.Header.Set("X-Request-ID", "caller-supplied-id")

	RequestIDMiddleware()(c)

	id, ok := c.Get(RequestIDKey)
	assert.True(t, ok)
	assert.Equal(t, "caller-supplied-id", id)
}
