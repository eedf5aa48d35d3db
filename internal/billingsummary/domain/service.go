package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/billingsummary/summary"
	"github.com/smallbiznis/carebill/internal/paymentgate/gate"
	"gorm.io/gorm"
)

// Report is the financial position of an encounter together with the gates
// derived from it.
type Report struct {
	EncounterID snowflake.ID           `json:"encounter_id"`
	Summary     summary.BillingSummary `json:"summary"`
	Gates       gate.Gates             `json:"gates"`
}

// Service is the only place payment status is decided.
type Service interface {
	ComputeSummary(ctx context.Context, encounterID snowflake.ID) (*Report, error)
	ComputeWithDB(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*Report, error)
}

var ErrInvalidReference = errors.New("invalid_reference")
