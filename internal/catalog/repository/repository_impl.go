package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, svc *domain.Service) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO services (
			id, code, name, department, workflow_type, amount,
			requires_consultation, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ID,
		svc.Code,
		svc.Name,
		svc.Department,
		svc.WorkflowType,
		svc.Amount,
		svc.RequiresConsultation,
		svc.Active,
		svc.CreatedAt,
		svc.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Service, error) {
	var svc domain.Service
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, department, workflow_type, amount,
		        requires_consultation, active, created_at, updated_at
		 FROM services WHERE id = ?`,
		id,
	).Scan(&svc).Error
	if err != nil {
		return nil, err
	}
	if svc.ID == 0 {
		return nil, nil
	}
	return &svc, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Service, error) {
	var svc domain.Service
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, department, workflow_type, amount,
		        requires_consultation, active, created_at, updated_at
		 FROM services WHERE code = ?`,
		code,
	).Scan(&svc).Error
	if err != nil {
		return nil, err
	}
	if svc.ID == 0 {
		return nil, nil
	}
	return &svc, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE services SET active = ?, updated_at = ? WHERE id = ?`,
		active,
		time.Now().UTC(),
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrServiceNotFound
	}
	return nil
}
