package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/encounter/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEncounter(ctx context.Context, db *gorm.DB, e *domain.Encounter) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO encounters (
			id, patient_ref, status, payment_status, opened_at, closed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.PatientRef,
		e.Status,
		e.PaymentStatus,
		e.OpenedAt,
		e.ClosedAt,
		e.CreatedAt,
		e.UpdatedAt,
	).Error
}

func (r *repo) FindEncounter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Encounter, error) {
	var e domain.Encounter
	err := db.WithContext(ctx).Raw(
		`SELECT id, patient_ref, status, payment_status, opened_at, closed_at, created_at, updated_at
		 FROM encounters WHERE id = ?`,
		id,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) LockEncounter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Encounter, error) {
	var e domain.Encounter
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE encounters SET payment_status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	).Error
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE encounters SET status = ?, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusClosed,
		at,
		at,
		id,
		domain.StatusOpen,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListOpenBefore(ctx context.Context, db *gorm.DB, before time.Time) ([]domain.Encounter, error) {
	var items []domain.Encounter
	err := db.WithContext(ctx).Raw(
		`SELECT id, patient_ref, status, payment_status, opened_at, closed_at, created_at, updated_at
		 FROM encounters
		 WHERE status = ? AND opened_at < ?
		 ORDER BY opened_at ASC, id ASC`,
		domain.StatusOpen,
		before,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertConsultation(ctx context.Context, db *gorm.DB, c *domain.Consultation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO consultations (
			id, encounter_id, status, created_by, clinician_id, activated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.EncounterID,
		c.Status,
		c.CreatedBy,
		c.ClinicianID,
		c.ActivatedAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Consultation, error) {
	var c domain.Consultation
	err := db.WithContext(ctx).Raw(
		`SELECT id, encounter_id, status, created_by, clinician_id, activated_at, created_at, updated_at
		 FROM consultations WHERE id = ?`,
		id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) LockConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Consultation, error) {
	var c domain.Consultation
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) ActivateConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID, clinicianID *string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE consultations
		 SET status = ?, clinician_id = COALESCE(?, clinician_id), activated_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.ConsultationActive,
		clinicianID,
		at,
		at,
		id,
		domain.ConsultationPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertFlatCharge(ctx context.Context, db *gorm.DB, c *domain.FlatCharge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO encounter_flat_charges (id, encounter_id, description, amount, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID,
		c.EncounterID,
		c.Description,
		c.Amount,
		c.CreatedAt,
	).Error
}

func (r *repo) SumFlatCharges(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM encounter_flat_charges WHERE encounter_id = ?`,
		encounterID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
