// Package scb implements the C3 adapter for the Siam Commercial Bank
// Payment Gateway API.
package scb

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
	"strconv"
	"strings"
	"time"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

const defaultBaseURL = "https://api.partners.scb/partners/sandbox"

// toleranceWindow bounds how stale an SCB webhook timestamp may be. SCB's
// timestamp header is optional; when absent, verification relies on the
// signature alone.
const toleranceWindow = 5 * time.Minute

// Client implements adapter.Adapter against the SCB Payment Gateway API.
type Client struct {
	apiKey        string
	apiSecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

// New builds an scb.Client from provider credentials. credentials must
// contain "api_key", "api_secret" and "webhook_secret".
func New(credentials map[string]string, baseURL string) (adapter.Adapter, error) {
	apiKey := credentials["api_key"]
	apiSecret := credentials["api_secret"]
	webhookSecret := credentials["webhook_secret"]
	if apiKey == "" || apiSecret == "" || webhookSecret == "" {
		return nil, fmt.Errorf("scb: api_key, api_secret and webhook_secret are required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) Name() string { return "scb" }

type qrRequest struct {
	TransactionID string `json:"transactionId"`
	QrImage       string `json:"qrImage"`
	Status        string `json:"status"`
}

// Authorize creates an SCB QR payment request.
func (c *Client) Authorize(ctx context.Context, req adapter.AuthorizeRequest) (*adapter.AuthorizeResult, error) {
	body := map[string]interface{}{
		"amount":        req.Amount.StringFixed(2),
		"currencyCode":  currencyCode(req.Currency),
		"reference1":    req.PaymentID,
		"merchantNote":  req.Description,
	}

	var qr qrRequest
	if err := c.post(ctx, "/v1/payment/qrcode/create", body, &qr); err != nil {
		return nil, err
	}

	return &adapter.AuthorizeResult{
		ProviderTransactionID: qr.TransactionID,
		PaymentURL:            qr.QrImage,
		Status:                mapStatus(qr.Status),
	}, nil
}

type statusResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode"`
	ErrorDesc string `json:"errorDescription"`
}

// GetStatus polls the status of a previously created QR payment.
func (c *Client) GetStatus(ctx context.Context, providerTransactionID string) (*adapter.StatusResult, error) {
	var status statusResponse
	if err := c.get(ctx, "/v1/payment/qrcode/"+providerTransactionID+"/status", &status); err != nil {
		return nil, err
	}
	return &adapter.StatusResult{
		Status:            mapStatus(status.Status),
		ProviderErrorCode: status.ErrorCode,
		ErrorMessage:      status.ErrorDesc,
	}, nil
}

type refundResponse struct {
	RefundID string `json:"refundTransactionId"`
	Status   string `json:"status"`
}

// Refund issues an SCB refund against a settled transaction.
func (c *Client) Refund(ctx context.Context, req adapter.RefundRequest) (*adapter.RefundResult, error) {
	body := map[string]interface{}{
		"transactionId": req.ProviderTransactionID,
		"amount":        req.Amount.StringFixed(2),
	}

	var rr refundResponse
	if err := c.post(ctx, "/v1/payment/qrcode/refund", body, &rr); err != nil {
		return nil, err
	}

	return &adapter.RefundResult{ProviderRefundID: rr.RefundID, Status: mapRefundStatus(rr.Status)}, nil
}

type webhookPayload struct {
	EventID       string `json:"eventId"`
	EventType     string `json:"eventType"`
	TransactionID string `json:"transactionId"`
	RefundID      string `json:"refundTransactionId"`
	Status        string `json:"status"`
}

// VerifyWebhook checks the X-SCB-Signature (hex HMAC-SHA256 over the raw
// body) and, when present, the X-SCB-Timestamp header against
// toleranceWindow.
func (c *Client) VerifyWebhook(headers map[string]string, body []byte, sourceIP string) (*adapter.WebhookEvent, error) {
	signature := headerLookup(headers, "X-SCB-Signature")
	if signature == "" {
		return nil, fmt.Errorf("scb: missing X-SCB-Signature header")
	}

	if ts := headerLookup(headers, "X-SCB-Timestamp"); ts != "" {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("scb: invalid X-SCB-Timestamp header")
		}
		age := time.Since(time.Unix(unix, 0))
		if age < 0 {
			age = -age
		}
		if age > toleranceWindow {
			return nil, fmt.Errorf("scb: webhook timestamp outside tolerance window")
		}
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nil, fmt.Errorf("scb: signature mismatch")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("scb: malformed webhook payload: %w", err)
	}

	event := &adapter.WebhookEvent{
		ProviderEventID: payload.EventID,
		EventType:       payload.EventType,
	}

	if payload.RefundID != "" {
		event.IsRefundEvent = true
		event.ProviderRefundID = payload.RefundID
		event.ProviderTransactionID = payload.TransactionID
		event.RefundStatus = mapRefundStatus(payload.Status)
	} else {
		event.ProviderTransactionID = payload.TransactionID
		event.Status = mapStatus(payload.Status)
	}

	return event, nil
}

func mapStatus(scbStatus string) entities.PaymentStatus {
	switch strings.ToUpper(scbStatus) {
	case "SUCCESS", "PAID":
		return entities.PaymentStatusCompleted
	case "PENDING", "PROCESSING":
		return entities.PaymentStatusProcessing
	case "FAILED", "EXPIRED", "CANCELLED":
		return entities.PaymentStatusFailed
	default:
		return entities.PaymentStatusPending
	}
}

func mapRefundStatus(s string) entities.RefundStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS", "COMPLETED":
		return entities.RefundStatusCompleted
	case "FAILED":
		return entities.RefundStatusFailed
	default:
		return entities.RefundStatusProcessing
	}
}

func currencyCode(currency string) string {
	switch strings.ToUpper(currency) {
	case "THB":
		return "764"
	case "USD":
		return "840"
	default:
		return "764"
	}
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
	c.setAuthHeaders(httpReq)

	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuthHeaders(httpReq)

	return c.do(httpReq, out)
}

func (c *Client) setAuthHeaders(httpReq *http.Request) {
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(httpReq.Method + httpReq.URL.Path + ts))
	httpReq.Header.Set("authorization", hex.EncodeToString(mac.Sum(nil)))
	httpReq.Header.Set("x-timestamp", ts)
}

func (c *Client) do(httpReq *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("scb: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("scb: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return domainerrors.ProviderHTTPError(resp.StatusCode, "scb", string(raw))
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
