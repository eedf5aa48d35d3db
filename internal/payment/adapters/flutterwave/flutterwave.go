package flutterwave

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
)

const signatureHeader = "verif-hash"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "flutterwave"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	hash, _ := cfg.Config["secret_hash"].(string)
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{secretHash: hash}, nil
}

type Adapter struct {
	secretHash string
}

// Verify compares the verif-hash header with the dashboard secret hash.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(a.secretHash)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event flutterwaveEvent
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Event) != "charge.completed" {
		return nil, paymentdomain.ErrEventIgnored
	}

	var eventType string
	switch strings.ToLower(strings.TrimSpace(event.Data.Status)) {
	case "successful":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "failed":
		eventType = paymentdomain.EventTypePaymentFailed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	id := strings.TrimSpace(event.Data.ID.String())
	reference := strings.TrimSpace(event.Data.TxRef)
	if id == "" || reference == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount, err := toMinorUnits(event.Data.Amount)
	if err != nil {
		return nil, err
	}

	encounterID := encounterFromMeta(event.Meta, event.Data.Meta)
	if eventType == paymentdomain.EventTypePaymentSucceeded && encounterID == 0 {
		return nil, paymentdomain.ErrInvalidReference
	}

	return &paymentdomain.PaymentEvent{
		Provider:        "flutterwave",
		ProviderEventID: id,
		Reference:       reference,
		Type:            eventType,
		Method:          paymentdomain.MethodFlutterwave,
		EncounterID:     encounterID,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
		OccurredAt:      createdAt(event.Data.CreatedAt),
		RawPayload:      payload,
	}, nil
}

type flutterwaveEvent struct {
	Event string          `json:"event"`
	Data  flutterwaveData `json:"data"`
	// Older payloads carry meta at the top level as meta_data.
	Meta map[string]any `json:"meta_data"`
}

type flutterwaveData struct {
	ID        json.Number    `json:"id"`
	TxRef     string         `json:"tx_ref"`
	FlwRef    string         `json:"flw_ref"`
	Amount    json.Number    `json:"amount"`
	Currency  string         `json:"currency"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"created_at"`
	Meta      map[string]any `json:"meta"`
}

// toMinorUnits converts a major-unit amount (naira) to kobo.
func toMinorUnits(amount json.Number) (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount.String()))
	if err != nil || value.IsNegative() {
		return 0, paymentdomain.ErrInvalidAmount
	}
	return value.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func encounterFromMeta(metas ...map[string]any) snowflake.ID {
	for _, meta := range metas {
		var value string
		switch v := meta["encounter_id"].(type) {
		case string:
			value = strings.TrimSpace(v)
		case json.Number:
			value = v.String()
		}
		if value == "" {
			continue
		}
		if id, err := snowflake.ParseString(value); err == nil && id != 0 {
			return id
		}
	}
	return 0
}

func createdAt(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}
