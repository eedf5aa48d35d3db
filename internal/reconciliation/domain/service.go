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
	Insert(ctx context.Context, db *gorm.DB, rec *DailyReconciliation) (bool, error)
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DailyReconciliation, error)
	FindByDate(ctx context.Context, db *gorm.DB, date string) (*DailyReconciliation, error)
	// Recompute overwrites the figures of a report that is not FINALIZED and
	// puts it back to DRAFT.
	Recompute(ctx context.Context, db *gorm.DB, rec *DailyReconciliation) (bool, error)
	Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, at time.Time) (bool, error)
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, notes string, at time.Time) (bool, error)
	UpdateNotes(ctx context.Context, db *gorm.DB, id snowflake.ID, notes string, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, from, to string) ([]DailyReconciliation, error)
}

type Service interface {
	Create(ctx context.Context, a actor.Actor, req CreateRequest) (*DailyReconciliation, error)
	Finalize(ctx context.Context, a actor.Actor, id snowflake.ID) (*DailyReconciliation, error)
	Cancel(ctx context.Context, a actor.Actor, id snowflake.ID, reason string) (*DailyReconciliation, error)
	UpdateNotes(ctx context.Context, a actor.Actor, id snowflake.ID, notes string) (*DailyReconciliation, error)
	Get(ctx context.Context, id snowflake.ID) (*DailyReconciliation, error)
	GetByDate(ctx context.Context, date string) (*DailyReconciliation, error)
	List(ctx context.Context, from, to string) ([]DailyReconciliation, error)
}

type CreateRequest struct {
	Date                string `json:"date"`
	CloseOpenEncounters bool   `json:"close_open_encounters"`
}

var (
	ErrInvalidDate             = errors.New("invalid_date")
	ErrInvalidReference        = errors.New("invalid_reference")
	ErrAlreadyFinalized        = errors.New("already_finalized")
	ErrReconciliationCancelled = errors.New("reconciliation_cancelled")
	ErrReconciliationNotFound  = errors.New("reconciliation_not_found")
)
