package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_transactions (id, encounter_id, kind, status, amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.EncounterID,
		tx.Kind,
		tx.Status,
		tx.Amount,
		tx.CreatedAt,
	).Error
}

func (r *repo) SumCompletedDebits(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM wallet_transactions
		 WHERE encounter_id = ? AND kind = ? AND status = ?`,
		encounterID,
		domain.KindDebit,
		domain.StatusCompleted,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
