package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

const (
	ConsultationPending = "PENDING"
	ConsultationActive  = "ACTIVE"
	ConsultationClosed  = "CLOSED"
)

type Encounter struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	PatientRef    string       `json:"patient_ref" gorm:"type:text;not null"`
	Status        string       `json:"status" gorm:"type:text;not null"`
	PaymentStatus string       `json:"payment_status" gorm:"type:text;not null"`
	OpenedAt      time.Time    `json:"opened_at" gorm:"not null"`
	ClosedAt      *time.Time   `json:"closed_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Encounter) TableName() string { return "encounters" }

type Consultation struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	EncounterID snowflake.ID `json:"encounter_id" gorm:"not null"`
	Status      string       `json:"status" gorm:"type:text;not null"`
	CreatedBy   string       `json:"created_by" gorm:"type:text;not null"`
	ClinicianID *string      `json:"clinician_id,omitempty" gorm:"type:text"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Consultation) TableName() string { return "consultations" }

// FlatCharge is a legacy encounter-level charge that predates line items.
type FlatCharge struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	EncounterID snowflake.ID `json:"encounter_id" gorm:"not null"`
	Description string       `json:"description" gorm:"type:text;not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (FlatCharge) TableName() string { return "encounter_flat_charges" }
