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
	InsertEncounter(ctx context.Context, db *gorm.DB, e *Encounter) error
	FindEncounter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Encounter, error)
	LockEncounter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Encounter, error)
	UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, at time.Time) error
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ListOpenBefore(ctx context.Context, db *gorm.DB, before time.Time) ([]Encounter, error)

	InsertConsultation(ctx context.Context, db *gorm.DB, c *Consultation) error
	FindConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Consultation, error)
	LockConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Consultation, error)
	ActivateConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID, clinicianID *string, at time.Time) (bool, error)

	InsertFlatCharge(ctx context.Context, db *gorm.DB, c *FlatCharge) error
	SumFlatCharges(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error)
}

// Service owns encounter and consultation workflow state. Methods taking a
// *gorm.DB run against the caller's transaction; nil uses the service handle.
type Service interface {
	Open(ctx context.Context, req OpenRequest) (*Encounter, error)
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Encounter, error)
	Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Encounter, error)
	Close(ctx context.Context, tx *gorm.DB, a actor.Actor, id snowflake.ID) (bool, error)
	ListOpenBefore(ctx context.Context, db *gorm.DB, before time.Time) ([]Encounter, error)
	UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error

	CreateConsultation(ctx context.Context, req CreateConsultationRequest) (*Consultation, error)
	GetConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Consultation, error)
	ActivateConsultation(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Consultation, bool, error)

	AddFlatCharge(ctx context.Context, req AddFlatChargeRequest) (*FlatCharge, error)
	FlatChargesTotal(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error)
}

type OpenRequest struct {
	PatientRef string     `json:"patient_ref"`
	OpenedAt   *time.Time `json:"opened_at"`
}

type CreateConsultationRequest struct {
	EncounterID snowflake.ID `json:"encounter_id"`
	CreatedBy   string       `json:"created_by"`
}

type AddFlatChargeRequest struct {
	EncounterID snowflake.ID `json:"encounter_id"`
	Description string       `json:"description"`
	Amount      int64        `json:"amount"`
}

var (
	ErrEncounterNotFound    = errors.New("encounter_not_found")
	ErrConsultationNotFound = errors.New("consultation_not_found")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrInvalidAmount        = errors.New("invalid_amount")
)
