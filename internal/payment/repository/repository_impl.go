package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, rec *domain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (
			id, encounter_id, amount, method, status, reference, processed_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.EncounterID,
		rec.Amount,
		rec.Method,
		rec.Status,
		rec.Reference,
		rec.ProcessedBy,
		rec.CreatedAt,
	).Error
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Record, error) {
	var rec domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, encounter_id, amount, method, status, reference, processed_by, created_at
		 FROM payment_records WHERE id = ?`,
		id,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Record, error) {
	var rec domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, encounter_id, amount, method, status, reference, processed_by, created_at
		 FROM payment_records WHERE reference = ?`,
		reference,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) ListByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]domain.Record, error) {
	var items []domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, encounter_id, amount, method, status, reference, processed_by, created_at
		 FROM payment_records
		 WHERE encounter_id = ?
		 ORDER BY created_at ASC, id ASC`,
		encounterID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payment_records WHERE encounter_id = ?`,
		encounterID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) SumClearedByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payment_records
		 WHERE encounter_id = ? AND status = ?`,
		encounterID,
		domain.StatusCleared,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) SumClearedByMethod(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.MethodTotal, error) {
	var rows []domain.MethodTotal
	err := db.WithContext(ctx).Raw(
		`SELECT method, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM payment_records
		 WHERE status = ? AND created_at >= ? AND created_at < ?
		 GROUP BY method
		 ORDER BY method ASC`,
		domain.StatusCleared,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SumClearedBetween totals cleared payments regardless of method.
func (r *repo) SumClearedBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (domain.MethodTotal, error) {
	var total domain.MethodTotal
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM payment_records
		 WHERE status = ? AND created_at >= ? AND created_at < ?`,
		domain.StatusCleared,
		from,
		to,
	).Scan(&total).Error
	return total, err
}

func (r *repo) InsertAllocation(ctx context.Context, db *gorm.DB, alloc *domain.Allocation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_allocations (id, payment_id, line_item_id, amount, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		alloc.ID,
		alloc.PaymentID,
		alloc.LineItemID,
		alloc.Amount,
		alloc.CreatedAt,
	).Error
}

func (r *repo) ListAllocations(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.Allocation, error) {
	var items []domain.Allocation
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, line_item_id, amount, created_at
		 FROM payment_allocations
		 WHERE payment_id = ?
		 ORDER BY id ASC`,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, reference, encounter_id,
			amount, payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, reference, encounter_id,
			amount, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Reference,
		event.EncounterID,
		event.Amount,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
