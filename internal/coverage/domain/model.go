package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

const (
	CoverageFull    = "FULL"
	CoveragePartial = "PARTIAL"
)

// FullCoverageBps is 100% expressed in basis points.
const FullCoverageBps = 10000

type InsuranceRecord struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	EncounterID    snowflake.ID `json:"encounter_id" gorm:"not null"`
	ProviderName   string       `json:"provider_name" gorm:"type:text;not null"`
	ApprovalStatus string       `json:"approval_status" gorm:"type:text;not null"`
	CoverageType   string       `json:"coverage_type" gorm:"type:text;not null"`
	CoverageBps    int64        `json:"coverage_bps" gorm:"not null"`
	ApprovedAmount *int64       `json:"approved_amount,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (InsuranceRecord) TableName() string { return "insurance_records" }

// EffectiveBps returns the coverage share, treating FULL as 100%.
func (r InsuranceRecord) EffectiveBps() int64 {
	if r.CoverageType == CoverageFull {
		return FullCoverageBps
	}
	return r.CoverageBps
}

type RetainershipRecord struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	EncounterID      snowflake.ID `json:"encounter_id" gorm:"not null"`
	OrganizationName string       `json:"organization_name" gorm:"type:text;not null"`
	DiscountBps      int64        `json:"discount_bps" gorm:"not null"`
	Active           bool         `json:"active" gorm:"not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (RetainershipRecord) TableName() string { return "retainerships" }
