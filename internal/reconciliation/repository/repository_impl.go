package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const reconciliationColumns = `id, date, status, cash_total, wallet_total, gateway_total,
	hmo_total, insurance_total, total_revenue, payment_count, outstanding_total,
	outstanding_count, leak_total, leak_count, encounters_closed, has_mismatches,
	mismatch_details, notes, prepared_by, finalized_by, finalized_at, cancelled_by,
	cancelled_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.DailyReconciliation) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO daily_reconciliations (
			id, date, status, cash_total, wallet_total, gateway_total, hmo_total,
			insurance_total, total_revenue, payment_count, outstanding_total,
			outstanding_count, leak_total, leak_count, encounters_closed,
			has_mismatches, mismatch_details, notes, prepared_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO NOTHING`,
		rec.ID,
		rec.Date,
		rec.Status,
		rec.CashTotal,
		rec.WalletTotal,
		rec.GatewayTotal,
		rec.HMOTotal,
		rec.InsuranceTotal,
		rec.TotalRevenue,
		rec.PaymentCount,
		rec.OutstandingTotal,
		rec.OutstandingCount,
		rec.LeakTotal,
		rec.LeakCount,
		rec.EncountersClosed,
		rec.HasMismatches,
		rec.MismatchDetails,
		rec.Notes,
		rec.PreparedBy,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DailyReconciliation, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByDate(ctx context.Context, db *gorm.DB, date string) (*domain.DailyReconciliation, error) {
	return r.findOne(ctx, db, `date = ?`, date)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.DailyReconciliation, error) {
	var item domain.DailyReconciliation
	err := db.WithContext(ctx).Raw(
		`SELECT `+reconciliationColumns+`
		 FROM daily_reconciliations
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Recompute(ctx context.Context, db *gorm.DB, rec *domain.DailyReconciliation) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_reconciliations
		 SET status = ?, cash_total = ?, wallet_total = ?, gateway_total = ?,
		     hmo_total = ?, insurance_total = ?, total_revenue = ?, payment_count = ?,
		     outstanding_total = ?, outstanding_count = ?, leak_total = ?, leak_count = ?,
		     encounters_closed = ?, has_mismatches = ?, mismatch_details = ?,
		     prepared_by = ?, cancelled_by = NULL, cancelled_at = NULL, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.StatusDraft,
		rec.CashTotal,
		rec.WalletTotal,
		rec.GatewayTotal,
		rec.HMOTotal,
		rec.InsuranceTotal,
		rec.TotalRevenue,
		rec.PaymentCount,
		rec.OutstandingTotal,
		rec.OutstandingCount,
		rec.LeakTotal,
		rec.LeakCount,
		rec.EncountersClosed,
		rec.HasMismatches,
		rec.MismatchDetails,
		rec.PreparedBy,
		rec.UpdatedAt,
		rec.ID,
		domain.StatusFinalized,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_reconciliations
		 SET status = ?, finalized_by = ?, finalized_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFinalized,
		by,
		at,
		at,
		id,
		domain.StatusDraft,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, notes string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_reconciliations
		 SET status = ?, cancelled_by = ?, cancelled_at = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCancelled,
		by,
		at,
		notes,
		at,
		id,
		domain.StatusDraft,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateNotes(ctx context.Context, db *gorm.DB, id snowflake.ID, notes string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_reconciliations
		 SET notes = ?, updated_at = ?
		 WHERE id = ?`,
		notes,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, from, to string) ([]domain.DailyReconciliation, error) {
	var items []domain.DailyReconciliation
	err := db.WithContext(ctx).Raw(
		`SELECT `+reconciliationColumns+`
		 FROM daily_reconciliations
		 WHERE date >= ? AND date <= ?
		 ORDER BY date DESC`,
		from,
		to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
