// Package omise implements the C3 adapter for the Omise charge API, used
// for Thai-market card and PromptPay payments.
package omise

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

const defaultBaseURL = "https://api.omise.co"

// Client implements adapter.Adapter against the Omise API.
type Client struct {
	secretKey     string
	webhookSecret string
	allowedIPs    map[string]bool
	baseURL       string
	httpClient    *http.Client
}

// New builds an omise.Client from provider credentials. credentials must
// contain "secret_key" and "webhook_secret"; "allowed_ips" is an optional
// comma-separated allow-list enforced on top of signature verification.
func New(credentials map[string]string, baseURL string) (adapter.Adapter, error) {
	secretKey := credentials["secret_key"]
	webhookSecret := credentials["webhook_secret"]
	if secretKey == "" || webhookSecret == "" {
		return nil, fmt.Errorf("omise: secret_key and webhook_secret are required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(credentials["allowed_ips"], ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return &Client{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		allowedIPs:    allowed,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) Name() string { return "omise" }

type charge struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	AuthorizeURI       string `json:"authorize_uri"`
	FailureCode        string `json:"failure_code"`
	FailureMessage     string `json:"failure_message"`
}

// Authorize creates an Omise charge.
func (c *Client) Authorize(ctx context.Context, req adapter.AuthorizeRequest) (*adapter.AuthorizeResult, error) {
	body := map[string]interface{}{
		"amount":      amountToSatang(req.Amount),
		"currency":    strings.ToLower(req.Currency),
		"description": req.Description,
		"metadata":    map[string]string{"paymentId": req.PaymentID},
	}

	var ch charge
	if err := c.post(ctx, "/charges", body, &ch); err != nil {
		return nil, err
	}

	return &adapter.AuthorizeResult{
		ProviderTransactionID: ch.ID,
		PaymentURL:            ch.AuthorizeURI,
		Status:                mapStatus(ch.Status),
	}, nil
}

// GetStatus fetches the current status of a charge.
func (c *Client) GetStatus(ctx context.Context, providerTransactionID string) (*adapter.StatusResult, error) {
	var ch charge
	if err := c.get(ctx, "/charges/"+providerTransactionID, &ch); err != nil {
		return nil, err
	}
	return &adapter.StatusResult{
		Status:            mapStatus(ch.Status),
		ProviderErrorCode: ch.FailureCode,
		ErrorMessage:      ch.FailureMessage,
	}, nil
}

type refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// Refund issues an Omise refund against a charge.
func (c *Client) Refund(ctx context.Context, req adapter.RefundRequest) (*adapter.RefundResult, error) {
	body := map[string]interface{}{"amount": amountToSatang(req.Amount)}

	var rf refund
	if err := c.post(ctx, "/charges/"+req.ProviderTransactionID+"/refunds", body, &rf); err != nil {
		return nil, err
	}

	return &adapter.RefundResult{ProviderRefundID: rf.ID, Status: entities.RefundStatusCompleted}, nil
}

type webhookPayload struct {
	Key  string `json:"key"`
	Data struct {
		ID           string `json:"id"`
		Object       string `json:"object"`
		Status       string `json:"status"`
		Charge       string `json:"charge"`
	} `json:"data"`
}

// VerifyWebhook enforces the IP allow-list (when configured) before
// checking the HMAC-SHA256 X-Omise-Signature header against the raw body.
func (c *Client) VerifyWebhook(headers map[string]string, body []byte, sourceIP string) (*adapter.WebhookEvent, error) {
	if len(c.allowedIPs) > 0 && !c.allowedIPs[sourceIP] {
		return nil, fmt.Errorf("omise: webhook source %q is not on the allow-list", sourceIP)
	}

	signature := headerLookup(headers, "X-Omise-Signature")
	if signature == "" {
		return nil, fmt.Errorf("omise: missing X-Omise-Signature header")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, fmt.Errorf("omise: signature mismatch")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("omise: malformed webhook payload: %w", err)
	}

	event := &adapter.WebhookEvent{
		ProviderEventID: payload.Key + ":" + payload.Data.ID,
		EventType:       payload.Key,
	}

	switch payload.Data.Object {
	case "refund":
		event.IsRefundEvent = true
		event.ProviderRefundID = payload.Data.ID
		event.ProviderTransactionID = payload.Data.Charge
		event.RefundStatus = entities.RefundStatusCompleted
	default:
		event.ProviderTransactionID = payload.Data.ID
		event.Status = mapStatus(payload.Data.Status)
	}

	return event, nil
}

func mapStatus(omiseStatus string) entities.PaymentStatus {
	switch omiseStatus {
	case "successful":
		return entities.PaymentStatusCompleted
	case "pending":
		return entities.PaymentStatusProcessing
	case "failed", "expired", "reversed":
		return entities.PaymentStatusFailed
	default:
		return entities.PaymentStatusPending
	}
}

// amountToSatang converts THB to satang (1/100 THB), Omise's base unit.
func amountToSatang(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.secretKey, "")

	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(c.secretKey, "")

	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("omise: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("omise: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return domainerrors.ProviderHTTPError(resp.StatusCode, "omise", string(raw))
	}

	return json.Unmarshal(raw, out)
}

func headerLookup(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
