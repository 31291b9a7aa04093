package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "paygate.backend/internal/domain/errors"
	"paygate.backend/internal/interfaces/http/response"
	"paygate.backend/internal/webhook"
)

// WebhookHandler serves POST /v1/webhooks/{provider}.
type WebhookHandler struct {
	ingress   *webhook.Ingress
	processor *webhook.Processor
}

func NewWebhookHandler(ingress *webhook.Ingress, processor *webhook.Processor) *WebhookHandler {
	return &WebhookHandler{ingress: ingress, processor: processor}
}

// Receive handles POST /v1/webhooks/{provider}. A newly accepted event is
// processed in a background goroutine and the handler answers 202 without
// waiting for it, so provider retry timeouts (typically a few seconds) are
// never on the critical path of signature verification and dedup. A
// duplicate delivery is answered 200 and not processed again.
func (h *WebhookHandler) Receive(c *gin.Context) {
	providerName := c.Param("provider")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, domainerrors.Validation("unable to read request body"))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.Request.Header.Get(key)
	}

	event, duplicate, err := h.ingress.Ingest(c.Request.Context(), providerName, body, headers, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	if duplicate {
		response.Success(c, http.StatusOK, gin.H{"isDuplicate": true})
		return
	}

	// Process persists its own retry bookkeeping on failure; there is
	// nothing further for the handler to do with the error.
	go h.processor.Process(context.Background(), event) //nolint:errcheck
	response.Success(c, http.StatusAccepted, gin.H{"accepted": true})
}
