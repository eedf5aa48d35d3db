package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *LineItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LineItem, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LineItem, error)
	FindByServiceEncounter(ctx context.Context, db *gorm.DB, serviceID, encounterID snowflake.ID) (*LineItem, error)
	ListByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]LineItem, error)
	LockUnpaidByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]LineItem, error)
	Update(ctx context.Context, db *gorm.DB, item *LineItem) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	HasPaidService(ctx context.Context, db *gorm.DB, encounterID snowflake.ID, serviceCode string) (bool, error)
	SumOutstanding(ctx context.Context, db *gorm.DB, before time.Time) (OutstandingTotals, error)
}

// Service is the line item ledger. Mutations run in one transaction and
// then record audit, record timeline, and dispatch PAYMENT_CONFIRMED, in
// that order.
type Service interface {
	Create(ctx context.Context, a actor.Actor, req CreateRequest) (*LineItem, error)
	ApplyPayment(ctx context.Context, a actor.Actor, lineItemID snowflake.ID, amount int64, method string) (*LineItem, error)
	ApplyPaymentInTx(ctx context.Context, tx *gorm.DB, a actor.Actor, lineItemID snowflake.ID, amount int64, method string) (*LineItem, error)
	Update(ctx context.Context, a actor.Actor, lineItemID snowflake.ID, req UpdateRequest) (*LineItem, error)
	Delete(ctx context.Context, a actor.Actor, lineItemID snowflake.ID) error
	Get(ctx context.Context, lineItemID snowflake.ID) (*LineItem, error)
	ListByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]LineItem, error)
	LockUnpaid(ctx context.Context, tx *gorm.DB, encounterID snowflake.ID) ([]LineItem, error)
	HasPaidService(ctx context.Context, db *gorm.DB, encounterID snowflake.ID, serviceCode string) (bool, error)
	OutstandingBefore(ctx context.Context, db *gorm.DB, before time.Time) (OutstandingTotals, error)
	TierRules() TierRules
}

// CreateRequest names the service by id or by catalog code.
type CreateRequest struct {
	ServiceID      snowflake.ID  `json:"service_id"`
	ServiceCode    string        `json:"service_code"`
	EncounterID    snowflake.ID  `json:"encounter_id"`
	ConsultationID *snowflake.ID `json:"consultation_id"`
}

// UpdateRequest carries the fields to change; nil leaves a field untouched.
type UpdateRequest struct {
	Amount         *int64        `json:"amount"`
	ServiceID      *snowflake.ID `json:"service_id"`
	ConsultationID *snowflake.ID `json:"consultation_id"`
	PaymentMethod  *string       `json:"payment_method"`
}

var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidReference  = errors.New("invalid_reference")
	ErrInvalidMethod     = errors.New("invalid_method")
	ErrDuplicateLineItem = errors.New("duplicate_line_item")
	ErrAlreadyPaid       = errors.New("already_paid")
	ErrOverAllocation    = errors.New("over_allocation")
	ErrImmutableRecord   = errors.New("immutable_record")
	ErrInactiveService   = errors.New("inactive_service")
	ErrClosedEncounter   = errors.New("closed_encounter")
	ErrLineItemNotFound  = errors.New("line_item_not_found")
)
