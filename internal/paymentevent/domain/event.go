package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"gorm.io/gorm"
)

const TypePaymentConfirmed = "PAYMENT_CONFIRMED"

// PaymentConfirmedEvent is raised when a line item transitions to PAID.
type PaymentConfirmedEvent struct {
	LineItemID     snowflake.ID  `json:"line_item_id"`
	EncounterID    snowflake.ID  `json:"encounter_id"`
	ServiceCode    string        `json:"service_code"`
	Amount         int64         `json:"amount"`
	Method         string        `json:"method"`
	ConsultationID *snowflake.ID `json:"consultation_id,omitempty"`
	Actor          actor.Actor   `json:"-"`
}

//go:generate mockgen -source=event.go -destination=../mock/dispatcher_mock.go -package=mock

// Dispatcher delivers PAYMENT_CONFIRMED synchronously inside the writer's
// transaction. Implementations isolate their own writes so a failure never
// rolls back the payment.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx *gorm.DB, event PaymentConfirmedEvent) error
}
