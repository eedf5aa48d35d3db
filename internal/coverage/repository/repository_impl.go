package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/coverage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertInsurance(ctx context.Context, db *gorm.DB, rec *domain.InsuranceRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO insurance_records (
			id, encounter_id, provider_name, approval_status, coverage_type,
			coverage_bps, approved_amount, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (encounter_id) DO UPDATE SET
			provider_name = excluded.provider_name,
			approval_status = excluded.approval_status,
			coverage_type = excluded.coverage_type,
			coverage_bps = excluded.coverage_bps,
			approved_amount = excluded.approved_amount,
			updated_at = excluded.updated_at`,
		rec.ID,
		rec.EncounterID,
		rec.ProviderName,
		rec.ApprovalStatus,
		rec.CoverageType,
		rec.CoverageBps,
		rec.ApprovedAmount,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) FindInsurance(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*domain.InsuranceRecord, error) {
	var rec domain.InsuranceRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, encounter_id, provider_name, approval_status, coverage_type,
		        coverage_bps, approved_amount, created_at, updated_at
		 FROM insurance_records WHERE encounter_id = ?`,
		encounterID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) UpsertRetainership(ctx context.Context, db *gorm.DB, rec *domain.RetainershipRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO retainerships (
			id, encounter_id, organization_name, discount_bps, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (encounter_id) DO UPDATE SET
			organization_name = excluded.organization_name,
			discount_bps = excluded.discount_bps,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		rec.ID,
		rec.EncounterID,
		rec.OrganizationName,
		rec.DiscountBps,
		rec.Active,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) FindRetainership(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*domain.RetainershipRecord, error) {
	var rec domain.RetainershipRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, encounter_id, organization_name, discount_bps, active, created_at, updated_at
		 FROM retainerships WHERE encounter_id = ?`,
		encounterID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}
