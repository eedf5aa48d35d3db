package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when an open record already exists for the entity.
	Insert(ctx context.Context, db *gorm.DB, rec *LeakRecord) (bool, error)
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LeakRecord, error)
	// FindOpenByEntity returns the unresolved record for the entity, if any.
	FindOpenByEntity(ctx context.Context, db *gorm.DB, entityType string, entityID snowflake.ID) (*LeakRecord, error)
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, resolvedBy string, notes string, at time.Time) (bool, error)
	ListUnresolved(ctx context.Context, db *gorm.DB, limit int) ([]LeakRecord, error)
	// Totals sums open leaks whose fulfillment occurred in [from, to).
	Totals(ctx context.Context, db *gorm.DB, from, to time.Time) (Totals, error)
}

type Service interface {
	Check(ctx context.Context, db *gorm.DB, event fulfillmentdomain.Event) (*LeakRecord, Outcome, error)
	DetectLeak(ctx context.Context, a actor.Actor, entityType string, entityID snowflake.ID) (*LeakRecord, error)
	Sweep(ctx context.Context, a actor.Actor, from, to time.Time) (SweepResult, error)
	// SweepWithDB runs without authorization for callers that already hold it.
	SweepWithDB(ctx context.Context, db *gorm.DB, from, to time.Time) (SweepResult, error)
	Resolve(ctx context.Context, a actor.Actor, id snowflake.ID, notes string) (*LeakRecord, error)
	Get(ctx context.Context, id snowflake.ID) (*LeakRecord, error)
	ListUnresolved(ctx context.Context, limit int) ([]LeakRecord, error)
	Totals(ctx context.Context, db *gorm.DB, from, to time.Time) (Totals, error)
}

var (
	ErrLeakNotFound             = errors.New("leak_not_found")
	ErrLeakAlreadyResolved      = errors.New("leak_already_resolved")
	ErrInvalidDate              = errors.New("invalid_date")
	ErrInvalidReference         = fulfillmentdomain.ErrInvalidReference
	ErrInvalidEntityType        = fulfillmentdomain.ErrInvalidEntityType
	ErrFulfillmentEventNotFound = fulfillmentdomain.ErrFulfillmentEventNotFound
)
