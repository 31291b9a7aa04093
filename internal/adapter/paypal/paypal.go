// Package paypal implements the C3 adapter for the PayPal Orders/Payments
// API: authorize, status, refund, and webhook signature verification.
package paypal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/domain/entities"
	domainerrors "paygate.backend/internal/domain/errors"
)

const defaultBaseURL = "https://api-m.paypal.com"

// allowedCertHosts restricts which hosts a PAYPAL-CERT-URL header may
// point to; PayPal only ever serves verification certs from these domains.
var allowedCertHosts = map[string]bool{
	"api.paypal.com":         true,
	"api.sandbox.paypal.com": true,
}

// certFetcher abstracts the HTTP GET used to retrieve PayPal's public
// verification certificate, so tests can inject a fixed certificate instead
// of reaching the network.
type certFetcher func(certURL string) ([]byte, error)

// Client implements adapter.Adapter against the PayPal API.
type Client struct {
	clientID     string
	clientSecret string
	webhookID    string
	baseURL      string
	httpClient   *http.Client
	fetchCert    certFetcher
}

// New builds a paypal.Client from provider credentials. credentials must
// contain "client_id", "client_secret" and "webhook_id".
func New(credentials map[string]string, baseURL string) (adapter.Adapter, error) {
	clientID := credentials["client_id"]
	clientSecret := credentials["client_secret"]
	webhookID := credentials["webhook_id"]
	if clientID == "" || clientSecret == "" || webhookID == "" {
		return nil, fmt.Errorf("paypal: client_id, client_secret and webhook_id are required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	c.fetchCert = c.httpFetchCert
	return c, nil
}

func (c *Client) Name() string { return "paypal" }

type order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// Authorize creates a PayPal order in intent=CAPTURE mode.
func (c *Client) Authorize(ctx context.Context, req adapter.AuthorizeRequest) (*adapter.AuthorizeResult, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.PaymentID,
			"description":  req.Description,
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
	}

	var o order
	if err := c.post(ctx, "/v2/checkout/orders", body, &o); err != nil {
		return nil, err
	}

	approveURL := ""
	for _, link := range o.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
		}
	}

	return &adapter.AuthorizeResult{
		ProviderTransactionID: o.ID,
		PaymentURL:            approveURL,
		Status:                mapStatus(o.Status),
	}, nil
}

// GetStatus fetches the current status of a PayPal order.
func (c *Client) GetStatus(ctx context.Context, providerTransactionID string) (*adapter.StatusResult, error) {
	var o order
	if err := c.get(ctx, "/v2/checkout/orders/"+providerTransactionID, &o); err != nil {
		return nil, err
	}
	return &adapter.StatusResult{Status: mapStatus(o.Status)}, nil
}

type refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund issues a PayPal refund against a captured payment.
func (c *Client) Refund(ctx context.Context, req adapter.RefundRequest) (*adapter.RefundResult, error) {
	body := map[string]interface{}{
		"amount": map[string]string{
			"currency_code": strings.ToUpper(req.Currency),
			"value":         req.Amount.StringFixed(2),
		},
		"note_to_payer": req.Reason,
	}

	var rf refund
	if err := c.post(ctx, "/v2/payments/captures/"+req.ProviderTransactionID+"/refund", body, &rf); err != nil {
		return nil, err
	}

	status := entities.RefundStatusProcessing
	if rf.Status == "COMPLETED" {
		status = entities.RefundStatusCompleted
	} else if rf.Status == "FAILED" {
		status = entities.RefundStatusFailed
	}

	return &adapter.RefundResult{ProviderRefundID: rf.ID, Status: status}, nil
}

type webhookPayload struct {
	ID       string `json:"id"`
	EventType string `json:"event_type"`
	Resource struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// VerifyWebhook validates PayPal's RSA-signed webhook headers: the
// transmission signature covers transmissionId|timestamp|webhookId|crc32(body)
// and is checked against the public key served from the cert URL, which
// must resolve to an allowed PayPal host.
func (c *Client) VerifyWebhook(headers map[string]string, body []byte, sourceIP string) (*adapter.WebhookEvent, error) {
	transmissionID := headerLookup(headers, "PAYPAL-TRANSMISSION-ID")
	timestamp := headerLookup(headers, "PAYPAL-TRANSMISSION-TIME")
	signatureB64 := headerLookup(headers, "PAYPAL-TRANSMISSION-SIG")
	certURL := headerLookup(headers, "PAYPAL-CERT-URL")

	if transmissionID == "" || timestamp == "" || signatureB64 == "" || certURL == "" {
		return nil, fmt.Errorf("paypal: missing one or more PAYPAL-TRANSMISSION-* headers")
	}

	if err := validateCertHost(certURL); err != nil {
		return nil, err
	}

	certPEM, err := c.fetchCert(certURL)
	if err != nil {
		return nil, fmt.Errorf("paypal: fetch verification cert: %w", err)
	}

	pub, err := parseRSAPublicKey(certPEM)
	if err != nil {
		return nil, err
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, fmt.Errorf("paypal: invalid transmission signature encoding")
	}

	crc := crc32.ChecksumIEEE(body)
	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, timestamp, c.webhookID, crc)
	digest := sha256.Sum256([]byte(message))

	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return nil, fmt.Errorf("paypal: signature verification failed: %w", err)
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("paypal: malformed webhook payload: %w", err)
	}

	event := &adapter.WebhookEvent{
		ProviderEventID: payload.ID,
		EventType:       payload.EventType,
	}

	if strings.HasPrefix(payload.EventType, "PAYMENT.CAPTURE.REFUNDED") {
		event.IsRefundEvent = true
		event.ProviderRefundID = payload.Resource.ID
		event.ProviderTransactionID = payload.Resource.SupplementaryData.RelatedIDs.OrderID
		event.RefundStatus = entities.RefundStatusCompleted
	} else {
		event.ProviderTransactionID = payload.Resource.ID
		event.Status = mapStatus(payload.Resource.Status)
	}

	return event, nil
}

func validateCertHost(certURL string) error {
	parsed, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("paypal: invalid PAYPAL-CERT-URL")
	}
	if parsed.Scheme != "https" || !allowedCertHosts[parsed.Host] {
		return fmt.Errorf("paypal: PAYPAL-CERT-URL host %q is not an allowed PayPal domain", parsed.Host)
	}
	return nil
}

func parseRSAPublicKey(certPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("paypal: invalid verification certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("paypal: parse verification certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("paypal: verification certificate does not carry an RSA key")
	}
	return pub, nil
}

func (c *Client) httpFetchCert(certURL string) ([]byte, error) {
	resp, err := c.httpClient.Get(certURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func mapStatus(paypalStatus string) entities.PaymentStatus {
	switch paypalStatus {
	case "COMPLETED":
		return entities.PaymentStatusCompleted
	case "APPROVED", "PAYER_ACTION_REQUIRED":
		return entities.PaymentStatusProcessing
	case "VOIDED":
		return entities.PaymentStatusFailed
	default:
		return entities.PaymentStatusPending
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
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.clientID, c.clientSecret)

	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(c.clientID, c.clientSecret)

	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("paypal: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paypal: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return domainerrors.ProviderHTTPError(resp.StatusCode, "paypal", string(raw))
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
