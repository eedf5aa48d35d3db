package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is a billable catalog entry (a lab test, a consultation, a card fee).
type Service struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	Code                 string       `json:"code" gorm:"type:text;not null"`
	Name                 string       `json:"name" gorm:"type:text;not null"`
	Department           string       `json:"department" gorm:"type:text;not null"`
	WorkflowType         string       `json:"workflow_type" gorm:"type:text;not null"`
	Amount               int64        `json:"amount" gorm:"not null"`
	RequiresConsultation bool         `json:"requires_consultation" gorm:"not null"`
	Active               bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null"`
}

func (Service) TableName() string { return "services" }
