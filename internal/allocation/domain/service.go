package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	"gorm.io/gorm"
)

// Application is the share of a payment applied to one line item.
type Application struct {
	LineItemID   snowflake.ID          `json:"line_item_id"`
	ServiceCode  string                `json:"service_code"`
	Tier         string                `json:"tier"`
	Amount       int64                 `json:"amount"`
	StatusBefore lineitemdomain.Status `json:"status_before"`
	StatusAfter  lineitemdomain.Status `json:"status_after"`
}

// Result reports how a payment was spread. Unallocated is the surplus left
// after every open item is settled.
type Result struct {
	EncounterID  snowflake.ID              `json:"encounter_id"`
	Method       string                    `json:"method"`
	Requested    int64                     `json:"requested"`
	Allocated    int64                     `json:"allocated"`
	Unallocated  int64                     `json:"unallocated"`
	Applications []Application             `json:"applications"`
	Items        []lineitemdomain.LineItem `json:"items"`
}

// Service spreads an encounter-level payment over its open line items in
// priority order.
type Service interface {
	AllocatePayment(ctx context.Context, a actor.Actor, encounterID snowflake.ID, amount int64, method string) (*Result, error)
	AllocateInTx(ctx context.Context, tx *gorm.DB, a actor.Actor, encounterID snowflake.ID, amount int64, method string) (*Result, error)
}

var (
	ErrInvalidAmount    = lineitemdomain.ErrInvalidAmount
	ErrInvalidMethod    = lineitemdomain.ErrInvalidMethod
	ErrInvalidReference = lineitemdomain.ErrInvalidReference
)
