package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	KindDebit  = "DEBIT"
	KindCredit = "CREDIT"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Transaction is a patient wallet movement attributed to an encounter.
type Transaction struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	EncounterID snowflake.ID `json:"encounter_id" gorm:"not null"`
	Kind        string       `json:"kind" gorm:"type:text;not null"`
	Status      string       `json:"status" gorm:"type:text;not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "wallet_transactions" }
