package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/fulfillment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ev *domain.Event) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO fulfillment_events (
			id, entity_type, entity_id, encounter_id, service_code,
			emergency_override, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO NOTHING`,
		ev.ID,
		ev.EntityType,
		ev.EntityID,
		ev.EncounterID,
		ev.ServiceCode,
		ev.EmergencyOverride,
		ev.OccurredAt,
		ev.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByEntity(ctx context.Context, db *gorm.DB, entityType string, entityID snowflake.ID) (*domain.Event, error) {
	var ev domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_type, entity_id, encounter_id, service_code,
		        emergency_override, occurred_at, created_at
		 FROM fulfillment_events
		 WHERE entity_type = ? AND entity_id = ?`,
		entityType,
		entityID,
	).Scan(&ev).Error
	if err != nil {
		return nil, err
	}
	if ev.ID == 0 {
		return nil, nil
	}
	return &ev, nil
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_type, entity_id, encounter_id, service_code,
		        emergency_override, occurred_at, created_at
		 FROM fulfillment_events
		 WHERE occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at ASC, id ASC`,
		from,
		to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
