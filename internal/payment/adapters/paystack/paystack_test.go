package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chargeSuccess = `{
  "event": "charge.success",
  "data": {
    "id": 302961,
    "status": "success",
    "reference": "PSK-REF-001",
    "amount": 350000,
    "currency": "NGN",
    "paid_at": "2026-03-02T10:15:00.000Z",
    "channel": "card",
    "metadata": {"encounter_id": "1765432109876543210"}
  }
}`

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := &Adapter{secretKey: "sk_test_123"}
	payload := []byte(chargeSuccess)

	headers := http.Header{}
	headers.Set("X-Paystack-Signature", sign("sk_test_123", payload))
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("X-Paystack-Signature", sign("sk_wrong", payload))
	require.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	require.ErrorIs(t, adapter.Verify(context.Background(), payload, http.Header{}), paymentdomain.ErrInvalidSignature)
}

func TestParseChargeSuccess(t *testing.T) {
	adapter := &Adapter{secretKey: "sk_test_123"}

	event, err := adapter.Parse(context.Background(), []byte(chargeSuccess))
	require.NoError(t, err)
	assert.Equal(t, "charge.success:302961", event.ProviderEventID)
	assert.Equal(t, "PSK-REF-001", event.Reference)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, paymentdomain.MethodPaystack, event.Method)
	assert.Equal(t, int64(350000), event.Amount)
	assert.Equal(t, "NGN", event.Currency)
	assert.Equal(t, "1765432109876543210", event.EncounterID.String())
}

func TestParseRejectsOrIgnores(t *testing.T) {
	adapter := &Adapter{secretKey: "sk_test_123"}

	_, err := adapter.Parse(context.Background(), []byte(`{"event":"transfer.success","data":{}}`))
	require.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse(context.Background(), []byte(`{"event":"charge.success","data":{"id":1,"status":"success","reference":"R","amount":100,"currency":"NGN","metadata":""}}`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidReference)

	_, err = adapter.Parse(context.Background(), []byte(`not json`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestFactoryRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: "paystack", Config: map[string]any{}})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
