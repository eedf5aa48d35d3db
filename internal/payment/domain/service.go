package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, rec *Record) error
	FindRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Record, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Record, error)
	ListByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]Record, error)
	CountByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error)
	SumClearedByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error)
	SumClearedByMethod(ctx context.Context, db *gorm.DB, from, to time.Time) ([]MethodTotal, error)
	SumClearedBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (MethodTotal, error)

	InsertAllocation(ctx context.Context, db *gorm.DB, alloc *Allocation) error
	ListAllocations(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]Allocation, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Service records payments received for an encounter and allocates them.
type Service interface {
	RecordPayment(ctx context.Context, a actor.Actor, req RecordPaymentRequest) (*RecordPaymentResult, error)
	ProcessEvent(ctx context.Context, event *PaymentEvent, payload []byte) error
	Get(ctx context.Context, id snowflake.ID) (*Record, error)
	ListByEncounter(ctx context.Context, encounterID snowflake.ID) ([]Record, error)
	ListAllocations(ctx context.Context, paymentID snowflake.ID) ([]Allocation, error)
}

// WebhookService verifies and ingests gateway callbacks.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type RecordPaymentRequest struct {
	EncounterID snowflake.ID `json:"encounter_id"`
	Amount      int64        `json:"amount"`
	Method      string       `json:"method"`
	Status      string       `json:"status"`
	Reference   string       `json:"reference"`
}

type RecordPaymentResult struct {
	Payment     Record       `json:"payment"`
	Allocations []Allocation `json:"allocations"`
	Allocated   int64        `json:"allocated"`
	Unallocated int64        `json:"unallocated"`
	// Duplicate is set when the reference was already recorded; nothing was
	// written by this call.
	Duplicate bool `json:"duplicate"`
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidMethod         = errors.New("invalid_method")
	ErrInvalidReference      = errors.New("invalid_reference")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrPaymentNotFound       = errors.New("payment_not_found")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
