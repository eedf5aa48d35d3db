package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
)

const signatureHeader = "x-paystack-signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paystack"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, _ := cfg.Config["secret_key"].(string)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{secretKey: secret}, nil
}

type Adapter struct {
	secretKey string
}

// Verify checks the hex HMAC-SHA512 of the raw body keyed with the secret key.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(a.secretKey))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event paystackEvent
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Event) {
	case "charge.success":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if !strings.EqualFold(strings.TrimSpace(event.Data.Status), "success") {
		return nil, paymentdomain.ErrEventIgnored
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	amount, err := event.Data.Amount.Int64()
	if err != nil || amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	encounterID, err := encounterFromMetadata(event.Data.Metadata)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.PaymentEvent{
		Provider:        "paystack",
		ProviderEventID: eventID(event, payload),
		Reference:       reference,
		Type:            paymentdomain.EventTypePaymentSucceeded,
		Method:          paymentdomain.MethodPaystack,
		EncounterID:     encounterID,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
		OccurredAt:      paidAt(event.Data.PaidAt),
		RawPayload:      payload,
	}, nil
}

type paystackEvent struct {
	Event string       `json:"event"`
	Data  paystackData `json:"data"`
}

type paystackData struct {
	ID        json.Number     `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    json.Number     `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Channel   string          `json:"channel"`
	Metadata  json.RawMessage `json:"metadata"`
}

// eventID derives a stable id; Paystack has no event id, so the transaction
// id stands in, and the payload hash when even that is missing.
func eventID(event paystackEvent, payload []byte) string {
	if id := strings.TrimSpace(event.Data.ID.String()); id != "" && id != "0" {
		return fmt.Sprintf("%s:%s", event.Event, id)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, payload).String()
}

// encounterFromMetadata reads metadata.encounter_id. Paystack sends an empty
// string when the checkout carried no metadata.
func encounterFromMetadata(raw json.RawMessage) (snowflake.ID, error) {
	var metadata map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if len(raw) == 0 || decoder.Decode(&metadata) != nil {
		return 0, paymentdomain.ErrInvalidReference
	}

	var value string
	switch v := metadata["encounter_id"].(type) {
	case string:
		value = strings.TrimSpace(v)
	case json.Number:
		value = v.String()
	}
	if value == "" {
		return 0, paymentdomain.ErrInvalidReference
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id == 0 {
		return 0, paymentdomain.ErrInvalidReference
	}
	return id, nil
}

func paidAt(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}
