package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	EntityLabResult       = "lab_result"
	EntityRadiologyReport = "radiology_report"
	EntityDispensation    = "dispensation"
	EntityProcedure       = "procedure"
)

// Event records that a clinical service was actually delivered.
type Event struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	EntityType        string       `json:"entity_type" gorm:"type:text;not null"`
	EntityID          snowflake.ID `json:"entity_id" gorm:"not null"`
	EncounterID       snowflake.ID `json:"encounter_id" gorm:"not null"`
	ServiceCode       string       `json:"service_code" gorm:"type:text;not null"`
	EmergencyOverride bool         `json:"emergency_override" gorm:"not null"`
	OccurredAt        time.Time    `json:"occurred_at" gorm:"not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
}

func (Event) TableName() string { return "fulfillment_events" }

// NormalizeEntityType returns the canonical entity type and whether it is known.
func NormalizeEntityType(value string) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case EntityLabResult, EntityRadiologyReport, EntityDispensation, EntityProcedure:
		return value, true
	default:
		return "", false
	}
}
