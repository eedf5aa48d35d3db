package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/leak/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const leakColumns = `id, entity_type, entity_id, service_code, estimated_amount,
	encounter_id, detected_at, resolved_at, resolved_by, resolution_notes`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.LeakRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO leak_records (
			id, entity_type, entity_id, service_code, estimated_amount,
			encounter_id, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) WHERE resolved_at IS NULL DO NOTHING`,
		rec.ID,
		rec.EntityType,
		rec.EntityID,
		rec.ServiceCode,
		rec.EstimatedAmount,
		rec.EncounterID,
		rec.DetectedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LeakRecord, error) {
	var item domain.LeakRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+leakColumns+`
		 FROM leak_records
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOpenByEntity(ctx context.Context, db *gorm.DB, entityType string, entityID snowflake.ID) (*domain.LeakRecord, error) {
	var item domain.LeakRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+leakColumns+`
		 FROM leak_records
		 WHERE entity_type = ? AND entity_id = ? AND resolved_at IS NULL
		 LIMIT 1`,
		entityType,
		entityID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, resolvedBy string, notes string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE leak_records
		 SET resolved_at = ?, resolved_by = ?, resolution_notes = ?
		 WHERE id = ? AND resolved_at IS NULL`,
		at,
		resolvedBy,
		notes,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListUnresolved(ctx context.Context, db *gorm.DB, limit int) ([]domain.LeakRecord, error) {
	var items []domain.LeakRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+leakColumns+`
		 FROM leak_records
		 WHERE resolved_at IS NULL
		 ORDER BY detected_at ASC, id ASC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB, from, to time.Time) (domain.Totals, error) {
	var totals domain.Totals
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(l.estimated_amount), 0) AS amount, COUNT(l.id) AS count
		 FROM leak_records l
		 JOIN fulfillment_events f
		   ON f.entity_type = l.entity_type AND f.entity_id = l.entity_id
		 WHERE l.resolved_at IS NULL
		   AND f.occurred_at >= ? AND f.occurred_at < ?`,
		from,
		to,
	).Scan(&totals).Error
	return totals, err
}
