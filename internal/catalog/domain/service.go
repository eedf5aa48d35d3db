package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, svc *Service) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Service, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Service, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
}

// Catalog resolves billable services. Lookups are cached; the WithDB
// variants read through the caller's transaction on a miss.
type Catalog interface {
	Create(ctx context.Context, req CreateRequest) (*Service, error)
	Get(ctx context.Context, id snowflake.ID) (*Service, error)
	Lookup(ctx context.Context, code string) (*Service, error)
	LookupWithDB(ctx context.Context, db *gorm.DB, code string) (*Service, error)
	SetActive(ctx context.Context, id snowflake.ID, active bool) error
}

type CreateRequest struct {
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	Department           string `json:"department"`
	WorkflowType         string `json:"workflow_type"`
	Amount               int64  `json:"amount"`
	RequiresConsultation bool   `json:"requires_consultation"`
	Active               *bool  `json:"active"`
}

var (
	ErrServiceNotFound = errors.New("service_not_found")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidAmount   = errors.New("invalid_amount")
)
