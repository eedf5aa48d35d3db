package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"gorm.io/datatypes"
)

// AuditLog records who did what to which ledger entity.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    string            `json:"actor_id" gorm:"type:text;not null"`
	ActorRole  string            `json:"actor_role" gorm:"type:text;not null"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   string            `json:"target_id" gorm:"type:text;not null"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// TimelineEntry is a patient-facing encounter event ("registration paid", "consultation unlocked").
type TimelineEntry struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	EncounterID snowflake.ID      `json:"encounter_id" gorm:"not null;index"`
	Kind        string            `json:"kind" gorm:"type:text;not null"`
	Message     string            `json:"message" gorm:"type:text;not null"`
	ActorID     string            `json:"actor_id" gorm:"type:text;not null"`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"type:text"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
}

func (TimelineEntry) TableName() string { return "encounter_timeline" }

const (
	TimelineLineItemCreated    = "line_item_created"
	TimelineLineItemDeleted    = "line_item_deleted"
	TimelinePaymentApplied     = "payment_applied"
	TimelinePaymentRecorded    = "payment_recorded"
	TimelineLineItemPaid       = "line_item_paid"
	TimelineConsultationActive = "consultation_activated"
	TimelineEncounterClosed    = "encounter_closed"
	TimelineLeakDetected       = "leak_detected"
	TimelineLeakResolved       = "leak_resolved"
)

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *pagination.Cursor
	Limit      int
}
