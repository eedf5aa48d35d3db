package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	UpsertInsurance(ctx context.Context, db *gorm.DB, rec *InsuranceRecord) error
	FindInsurance(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*InsuranceRecord, error)
	UpsertRetainership(ctx context.Context, db *gorm.DB, rec *RetainershipRecord) error
	FindRetainership(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*RetainershipRecord, error)
}

// Service exposes the insurance and retainership facts of an encounter.
// Lookups return nil when the encounter has no such record.
type Service interface {
	SetInsurance(ctx context.Context, req SetInsuranceRequest) (*InsuranceRecord, error)
	Insurance(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*InsuranceRecord, error)
	SetRetainership(ctx context.Context, req SetRetainershipRequest) (*RetainershipRecord, error)
	Retainership(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*RetainershipRecord, error)
}

type SetInsuranceRequest struct {
	EncounterID    snowflake.ID `json:"encounter_id"`
	ProviderName   string       `json:"provider_name"`
	ApprovalStatus string       `json:"approval_status"`
	CoverageType   string       `json:"coverage_type"`
	CoverageBps    int64        `json:"coverage_bps"`
	ApprovedAmount *int64       `json:"approved_amount"`
}

type SetRetainershipRequest struct {
	EncounterID      snowflake.ID `json:"encounter_id"`
	OrganizationName string       `json:"organization_name"`
	DiscountBps      int64        `json:"discount_bps"`
	Active           bool         `json:"active"`
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidCoverage  = errors.New("invalid_coverage")
	ErrInvalidAmount    = errors.New("invalid_amount")
)
