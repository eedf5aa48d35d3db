package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ev *Event) (bool, error)
	FindByEntity(ctx context.Context, db *gorm.DB, entityType string, entityID snowflake.ID) (*Event, error)
	ListBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Event, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Event, error)
	Get(ctx context.Context, db *gorm.DB, entityType string, entityID snowflake.ID) (*Event, error)
	ListBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Event, error)
}

type RecordRequest struct {
	EntityType        string       `json:"entity_type"`
	EntityID          snowflake.ID `json:"entity_id"`
	EncounterID       snowflake.ID `json:"encounter_id"`
	ServiceCode       string       `json:"service_code"`
	EmergencyOverride bool         `json:"emergency_override"`
	OccurredAt        *time.Time   `json:"occurred_at"`
}

var (
	ErrInvalidEntityType        = errors.New("invalid_entity_type")
	ErrInvalidReference         = errors.New("invalid_reference")
	ErrFulfillmentEventNotFound = errors.New("fulfillment_event_not_found")
)
