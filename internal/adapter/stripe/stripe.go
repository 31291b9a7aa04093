// Package stripe implements the C3 adapter for the Stripe Payment Intents
// API: authorize, status, refund, and webhook signature verification.
package stripe

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

	"github.com/shopspring/decimal"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

const defaultBaseURL = "https://api.stripe.com/v1"

// toleranceWindow is how far a webhook's t= timestamp may drift from now
// before the signature is rejected as stale, per Stripe's own guidance.
const toleranceWindow = 5 * time.Minute

// Client implements adapter.Adapter against the Stripe API.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

// New builds a stripe.Client from provider credentials. credentials must
// contain "secret_key" and "webhook_secret".
func New(credentials map[string]string, baseURL string) (adapter.Adapter, error) {
	secretKey := credentials["secret_key"]
	webhookSecret := credentials["webhook_secret"]
	if secretKey == "" || webhookSecret == "" {
		return nil, fmt.Errorf("stripe: secret_key and webhook_secret are required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) Name() string { return "stripe" }

type paymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	NextAction struct {
		RedirectToURL struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Authorize creates a Stripe PaymentIntent for the given amount/currency.
func (c *Client) Authorize(ctx context.Context, req adapter.AuthorizeRequest) (*adapter.AuthorizeResult, error) {
	form := map[string]string{
		"amount":             amountToMinorUnits(req.Amount, req.Currency),
		"currency":           strings.ToLower(req.Currency),
		"description":        req.Description,
		"metadata[paymentId]": req.PaymentID,
	}

	var pi paymentIntent
	if err := c.post(ctx, "/payment_intents", form, &pi); err != nil {
		return nil, err
	}

	return &adapter.AuthorizeResult{
		ProviderTransactionID: pi.ID,
		PaymentURL:            pi.NextAction.RedirectToURL.URL,
		Status:                mapStatus(pi.Status),
	}, nil
}

// GetStatus fetches the current status of a PaymentIntent.
func (c *Client) GetStatus(ctx context.Context, providerTransactionID string) (*adapter.StatusResult, error) {
	var pi paymentIntent
	if err := c.get(ctx, "/payment_intents/"+providerTransactionID, &pi); err != nil {
		return nil, err
	}

	result := &adapter.StatusResult{Status: mapStatus(pi.Status)}
	if pi.LastPaymentError != nil {
		result.ProviderErrorCode = pi.LastPaymentError.Code
		result.ErrorMessage = pi.LastPaymentError.Message
	}
	return result, nil
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund issues a Stripe refund against a previously authorized PaymentIntent.
func (c *Client) Refund(ctx context.Context, req adapter.RefundRequest) (*adapter.RefundResult, error) {
	form := map[string]string{
		"payment_intent": req.ProviderTransactionID,
		"amount":         amountToMinorUnits(req.Amount, req.Currency),
		"reason":         mapRefundReason(req.Reason),
	}

	var rr refundResponse
	if err := c.post(ctx, "/refunds", form, &rr); err != nil {
		return nil, err
	}

	status := entities.RefundStatusProcessing
	if rr.Status == "succeeded" {
		status = entities.RefundStatusCompleted
	} else if rr.Status == "failed" {
		status = entities.RefundStatusFailed
	}

	return &adapter.RefundResult{ProviderRefundID: rr.ID, Status: status}, nil
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
			Status string `json:"status"`
			PaymentIntent string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook validates the Stripe-Signature header (t=<unix>,v1=<hex>)
// against the raw body, rejecting signatures older than toleranceWindow,
// then parses the event.
func (c *Client) VerifyWebhook(headers map[string]string, body []byte, sourceIP string) (*adapter.WebhookEvent, error) {
	header := headerLookup(headers, "Stripe-Signature")
	if header == "" {
		return nil, fmt.Errorf("stripe: missing Stripe-Signature header")
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	if err := checkTimestamp(timestamp, toleranceWindow); err != nil {
		return nil, err
	}

	signedPayload := timestamp + "." + string(body)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("stripe: signature mismatch")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("stripe: malformed webhook payload: %w", err)
	}

	event := &adapter.WebhookEvent{
		ProviderEventID: payload.ID,
		EventType:       payload.Type,
	}

	switch payload.Data.Object.Object {
	case "refund":
		event.IsRefundEvent = true
		event.ProviderRefundID = payload.Data.Object.ID
		event.ProviderTransactionID = payload.Data.Object.PaymentIntent
		event.RefundStatus = mapRefundStatus(payload.Data.Object.Status)
	default:
		event.ProviderTransactionID = payload.Data.Object.ID
		event.Status = mapStatus(payload.Data.Object.Status)
	}

	return event, nil
}

// parseSignatureHeader splits "t=1614556800,v1=abc,v1=def" into its
// timestamp and the list of v1 signatures (Stripe sends one per active
// signing secret during a rotation).
func parseSignatureHeader(header string) (timestamp string, signatures []string, err error) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, fmt.Errorf("stripe: malformed Stripe-Signature header")
	}
	return timestamp, signatures, nil
}

func checkTimestamp(timestamp string, window time.Duration) error {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("stripe: invalid timestamp in signature header")
	}
	age := time.Since(time.Unix(unix, 0))
	if age < 0 {
		age = -age
	}
	if age > window {
		return fmt.Errorf("stripe: webhook timestamp outside tolerance window")
	}
	return nil
}

func mapStatus(stripeStatus string) entities.PaymentStatus {
	switch stripeStatus {
	case "succeeded":
		return entities.PaymentStatusCompleted
	case "processing", "requires_action", "requires_confirmation":
		return entities.PaymentStatusProcessing
	case "requires_payment_method", "canceled":
		return entities.PaymentStatusFailed
	default:
		return entities.PaymentStatusPending
	}
}

func mapRefundStatus(s string) entities.RefundStatus {
	switch s {
	case "succeeded":
		return entities.RefundStatusCompleted
	case "failed", "canceled":
		return entities.RefundStatusFailed
	default:
		return entities.RefundStatusProcessing
	}
}

func mapRefundReason(reason string) string {
	switch reason {
	case "duplicate", "fraudulent", "requested_by_customer":
		return reason
	default:
		return "requested_by_customer"
	}
}

// amountToMinorUnits converts a decimal major-unit amount into the smallest
// currency unit Stripe expects (cents for USD, no subdivision for JPY).
func amountToMinorUnits(amount decimal.Decimal, currency string) string {
	if isZeroDecimalCurrency(currency) {
		return amount.StringFixed(0)
	}
	return amount.Mul(decimal.NewFromInt(100)).StringFixed(0)
}

func isZeroDecimalCurrency(currency string) bool {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP":
		return true
	default:
		return false
	}
}

func (c *Client) post(ctx context.Context, path string, form map[string]string, out interface{}) error {
	values := make([]string, 0, len(form))
	for k, v := range form {
		if v == "" {
			continue
		}
		values = append(values, k+"="+v)
	}
	body := strings.Join(values, "&")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
		return fmt.Errorf("stripe: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stripe: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return domainerrors.ProviderHTTPError(resp.StatusCode, "stripe", string(raw))
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
