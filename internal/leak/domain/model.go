package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LeakRecord flags a clinical service delivered without a PAID line item.
type LeakRecord struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	EntityType      string       `json:"entity_type" gorm:"type:text;not null"`
	EntityID        snowflake.ID `json:"entity_id" gorm:"not null"`
	ServiceCode     string       `json:"service_code" gorm:"type:text;not null"`
	EstimatedAmount int64        `json:"estimated_amount" gorm:"not null"`
	EncounterID     snowflake.ID `json:"encounter_id" gorm:"not null"`
	DetectedAt      time.Time    `json:"detected_at" gorm:"not null"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	ResolvedBy      *string      `json:"resolved_by,omitempty" gorm:"type:text"`
	ResolutionNotes *string      `json:"resolution_notes,omitempty" gorm:"type:text"`
}

func (LeakRecord) TableName() string { return "leak_records" }

func (l LeakRecord) Resolved() bool {
	return l.ResolvedAt != nil
}

// Outcome is what a single leak check concluded.
type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeClean          Outcome = "clean"
	OutcomeDetected       Outcome = "detected"
	OutcomeAlreadyFlagged Outcome = "already_flagged"
)

type SweepResult struct {
	Scanned        int `json:"scanned"`
	Detected       int `json:"detected"`
	AlreadyFlagged int `json:"already_flagged"`
	Skipped        int `json:"skipped"`
	Clean          int `json:"clean"`
}

// Add counts one check outcome.
func (r *SweepResult) Add(outcome Outcome) {
	r.Scanned++
	switch outcome {
	case OutcomeDetected:
		r.Detected++
	case OutcomeAlreadyFlagged:
		r.AlreadyFlagged++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeClean:
		r.Clean++
	}
}

// Totals sums open leaks.
type Totals struct {
	Amount int64 `gorm:"column:amount"`
	Count  int64 `gorm:"column:count"`
}
