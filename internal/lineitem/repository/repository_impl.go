package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/lineitem/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, service_id, service_code, service_name, department, workflow_type,
	encounter_id, consultation_id, amount, amount_paid, outstanding_amount, status,
	payment_method, created_by, created_at, updated_at, paid_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.LineItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO line_items (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.ServiceID,
		item.ServiceCode,
		item.ServiceName,
		item.Department,
		item.WorkflowType,
		item.EncounterID,
		item.ConsultationID,
		item.Amount,
		item.AmountPaid,
		item.OutstandingAmount,
		item.Status,
		item.PaymentMethod,
		item.CreatedBy,
		item.CreatedAt,
		item.UpdatedAt,
		item.PaidAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LineItem, error) {
	var item domain.LineItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM line_items WHERE id = ?`,
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

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LineItem, error) {
	var item domain.LineItem
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByServiceEncounter(ctx context.Context, db *gorm.DB, serviceID, encounterID snowflake.ID) (*domain.LineItem, error) {
	var item domain.LineItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM line_items WHERE service_id = ? AND encounter_id = ?`,
		serviceID,
		encounterID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM line_items
		 WHERE encounter_id = ?
		 ORDER BY created_at ASC, id ASC`,
		encounterID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LockUnpaidByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("encounter_id = ? AND status <> ?", encounterID, domain.StatusPaid).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, item *domain.LineItem) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE line_items SET
			service_id = ?, service_code = ?, service_name = ?, department = ?, workflow_type = ?,
			consultation_id = ?, amount = ?, amount_paid = ?, outstanding_amount = ?, status = ?,
			payment_method = ?, updated_at = ?, paid_at = ?
		 WHERE id = ?`,
		item.ServiceID,
		item.ServiceCode,
		item.ServiceName,
		item.Department,
		item.WorkflowType,
		item.ConsultationID,
		item.Amount,
		item.AmountPaid,
		item.OutstandingAmount,
		item.Status,
		item.PaymentMethod,
		item.UpdatedAt,
		item.PaidAt,
		item.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrLineItemNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM line_items WHERE id = ? AND amount_paid = 0`,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) HasPaidService(ctx context.Context, db *gorm.DB, encounterID snowflake.ID, serviceCode string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM line_items
		 WHERE encounter_id = ? AND service_code = ? AND status = ?`,
		encounterID,
		serviceCode,
		domain.StatusPaid,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SumOutstanding(ctx context.Context, db *gorm.DB, before time.Time) (domain.OutstandingTotals, error) {
	var totals domain.OutstandingTotals
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(outstanding_amount), 0) AS total, COUNT(*) AS count
		 FROM line_items
		 WHERE status <> ? AND created_at < ?`,
		domain.StatusPaid,
		before,
	).Scan(&totals).Error
	if err != nil {
		return domain.OutstandingTotals{}, err
	}
	return totals, nil
}
