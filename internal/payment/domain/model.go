package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCash        Method = "CASH"
	MethodPOS         Method = "POS"
	MethodTransfer    Method = "TRANSFER"
	MethodWallet      Method = "WALLET"
	MethodPaystack    Method = "PAYSTACK"
	MethodFlutterwave Method = "FLUTTERWAVE"
	MethodHMO         Method = "HMO"
	MethodInsurance   Method = "INSURANCE"
)

// Bucket groups payment methods for end-of-day reconciliation.
type Bucket string

const (
	BucketCash    Bucket = "cash"
	BucketWallet  Bucket = "wallet"
	BucketGateway Bucket = "gateway"
	BucketHMO     Bucket = "hmo"
)

// ParseMethod normalizes a method name and reports whether it is known.
func ParseMethod(value string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(value)))
	switch m {
	case MethodCash, MethodPOS, MethodTransfer, MethodWallet,
		MethodPaystack, MethodFlutterwave, MethodHMO, MethodInsurance:
		return m, true
	default:
		return "", false
	}
}

// Bucket returns the reconciliation bucket of the method. INSURANCE is part
// of the HMO bucket.
func (m Method) Bucket() Bucket {
	switch m {
	case MethodCash, MethodPOS, MethodTransfer:
		return BucketCash
	case MethodWallet:
		return BucketWallet
	case MethodPaystack, MethodFlutterwave:
		return BucketGateway
	case MethodHMO, MethodInsurance:
		return BucketHMO
	default:
		return ""
	}
}

const (
	StatusCleared = "CLEARED"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// Record is an append-only payment received for an encounter.
type Record struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	EncounterID snowflake.ID `json:"encounter_id" gorm:"not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	Method      Method       `json:"method" gorm:"type:text;not null"`
	Status      string       `json:"status" gorm:"type:text;not null"`
	Reference   *string      `json:"reference,omitempty" gorm:"type:text"`
	ProcessedBy string       `json:"processed_by" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (Record) TableName() string { return "payment_records" }

// Allocation is the share of a payment applied to one line item.
type Allocation struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	PaymentID  snowflake.ID `json:"payment_id" gorm:"not null"`
	LineItemID snowflake.ID `json:"line_item_id" gorm:"not null"`
	Amount     int64        `json:"amount" gorm:"not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (Allocation) TableName() string { return "payment_allocations" }

// MethodTotal is a per-method sum of cleared payments.
type MethodTotal struct {
	Method Method `gorm:"column:method"`
	Total  int64  `gorm:"column:total"`
	Count  int64  `gorm:"column:count"`
}

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Reference       string         `json:"reference" gorm:"type:text;not null"`
	EncounterID     *snowflake.ID  `json:"encounter_id,omitempty"`
	Amount          int64          `json:"amount" gorm:"not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:text;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// PaymentEvent is the canonical gateway event parsed by adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Reference       string
	Type            string
	Method          Method
	EncounterID     snowflake.ID
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}
