package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
)

// LineItem is the single financial record of one billable clinical action.
// The service snapshot fields are copied from the catalog at creation.
type LineItem struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	ServiceID         snowflake.ID  `json:"service_id" gorm:"not null"`
	ServiceCode       string        `json:"service_code" gorm:"type:text;not null"`
	ServiceName       string        `json:"service_name" gorm:"type:text;not null"`
	Department        string        `json:"department" gorm:"type:text;not null"`
	WorkflowType      string        `json:"workflow_type" gorm:"type:text;not null"`
	EncounterID       snowflake.ID  `json:"encounter_id" gorm:"not null"`
	ConsultationID    *snowflake.ID `json:"consultation_id,omitempty"`
	Amount            int64         `json:"amount" gorm:"not null"`
	AmountPaid        int64         `json:"amount_paid" gorm:"not null"`
	OutstandingAmount int64         `json:"outstanding_amount" gorm:"not null"`
	Status            Status        `json:"status" gorm:"type:text;not null"`
	PaymentMethod     *string       `json:"payment_method,omitempty" gorm:"type:text"`
	CreatedBy         string        `json:"created_by" gorm:"type:text;not null"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"not null"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
}

func (LineItem) TableName() string { return "line_items" }

// StatusFor derives the status from the paid share of the amount.
func StatusFor(amount, amountPaid int64) Status {
	switch {
	case amountPaid <= 0:
		return StatusPending
	case amountPaid < amount:
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// Recompute refreshes the derived outstanding amount and status.
func (li *LineItem) Recompute() {
	li.OutstandingAmount = li.Amount - li.AmountPaid
	li.Status = StatusFor(li.Amount, li.AmountPaid)
}

// CheckInvariants reports whether the money fields are internally consistent.
func (li LineItem) CheckInvariants() error {
	if li.Amount <= 0 {
		return ErrInvalidAmount
	}
	if li.AmountPaid < 0 || li.AmountPaid > li.Amount {
		return ErrInvalidAmount
	}
	if li.OutstandingAmount != li.Amount-li.AmountPaid {
		return ErrInvalidAmount
	}
	if li.Status != StatusFor(li.Amount, li.AmountPaid) {
		return ErrInvalidAmount
	}
	return nil
}

// Settled reports whether the item is paid in full, even when the stored
// status lags behind the amounts.
func (li LineItem) Settled() bool {
	return li.Status == StatusPaid || li.AmountPaid >= li.Amount
}

// OutstandingTotals summarizes unpaid receivables.
type OutstandingTotals struct {
	Total int64 `gorm:"column:total"`
	Count int64 `gorm:"column:count"`
}
