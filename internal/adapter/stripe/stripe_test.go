package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedHeader(secret, body string, ts time.Time) string {
	payload := fmt.Sprintf("%d.%s", ts.Unix(), body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), sig)
}

func TestVerifyWebhook_ValidSignature(t *testing.T) {
	client, err := New(map[string]string{"secret_key": "sk_test", "webhook_secret": "whsec_test"}, "")
	require.NoError(t, err)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded"}}}`)
	header := signedHeader("whsec_test", string(body), time.Now())

	event, err := client.VerifyWebhook(map[string]string{"Stripe-Signature": header}, body, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ProviderEventID)
	assert.Equal(t, "pi_1", event.ProviderTransactionID)
	assert.False(t, event.IsRefundEvent)
}

func TestVerifyWebhook_RejectsBadSignature(t *testing.T) {
	client, err := New(map[string]string{"secret_key": "sk_test", "webhook_secret": "whsec_test"}, "")
	require.NoError(t, err)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	header := signedHeader("wrong-secret", string(body), time.Now())

	_, err = client.VerifyWebhook(map[string]string{"Stripe-Signature": header}, body, "1.2.3.4")
	assert.Error(t, err)
}

func TestVerifyWebhook_RejectsStaleTimestamp(t *testing.T) {
	client, err := New(map[string]string{"secret_key": "sk_test", "webhook_secret": "whsec_test"}, "")
	require.NoError(t, err)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	header := signedHeader("whsec_test", string(body), time.Now().Add(-10*time.Minute))

	_, err = client.VerifyWebhook(map[string]string{"Stripe-Signature": header}, body, "1.2.3.4")
	assert.Error(t, err)
}

func TestVerifyWebhook_ParsesRefundEvent(t *testing.T) {
	client, err := New(map[string]string{"secret_key": "sk_test", "webhook_secret": "whsec_test"}, "")
	require.NoError(t, err)

	body := []byte(`{"id":"evt_2","type":"refund.updated","data":{"object":{"id":"re_1","object":"refund","status":"succeeded","payment_intent":"pi_1"}}}`)
	header := signedHeader("whsec_test", string(body), time.Now())

	event, err := client.VerifyWebhook(map[string]string{"Stripe-Signature": header}, body, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, event.IsRefundEvent)
	assert.Equal(t, "re_1", event.ProviderRefundID)
	assert.Equal(t, "pi_1", event.ProviderTransactionID)
}

func TestAmountToMinorUnits(t *testing.T) {
	assert.Equal(t, "1050", amountToMinorUnits(decimal.NewFromFloat(10.50), "USD"))
	assert.Equal(t, "1000", amountToMinorUnits(decimal.NewFromInt(1000), "JPY"))
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(map[string]string{}, "")
	assert.Error(t, err)
}
