package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	SumCompletedDebits(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Transaction, error)
	CompletedDebits(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error)
}

type RecordRequest struct {
	EncounterID snowflake.ID `json:"encounter_id"`
	Kind        string       `json:"kind"`
	Status      string       `json:"status"`
	Amount      int64        `json:"amount"`
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidStatus    = errors.New("invalid_status")
)
