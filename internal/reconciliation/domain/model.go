package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusDraft     = "DRAFT"
	StatusFinalized = "FINALIZED"
	StatusCancelled = "CANCELLED"
)

// DateLayout is the calendar-day key of a reconciliation.
const DateLayout = "2006-01-02"

// DailyReconciliation is the closing report of one business day.
type DailyReconciliation struct {
	ID               snowflake.ID                  `json:"id" gorm:"primaryKey"`
	Date             string                        `json:"date" gorm:"type:text;not null"`
	Status           string                        `json:"status" gorm:"type:text;not null"`
	CashTotal        int64                         `json:"cash_total"`
	WalletTotal      int64                         `json:"wallet_total"`
	GatewayTotal     int64                         `json:"gateway_total"`
	HMOTotal         int64                         `json:"hmo_total" gorm:"column:hmo_total"`
	InsuranceTotal   int64                         `json:"insurance_total"`
	TotalRevenue     int64                         `json:"total_revenue"`
	PaymentCount     int64                         `json:"payment_count"`
	OutstandingTotal int64                         `json:"outstanding_total"`
	OutstandingCount int64                         `json:"outstanding_count"`
	LeakTotal        int64                         `json:"leak_total"`
	LeakCount        int64                         `json:"leak_count"`
	EncountersClosed int64                         `json:"encounters_closed"`
	HasMismatches    bool                          `json:"has_mismatches"`
	MismatchDetails  datatypes.JSONSlice[Mismatch] `json:"mismatch_details" gorm:"type:text"`
	Notes            string                        `json:"notes" gorm:"type:text"`
	PreparedBy       string                        `json:"prepared_by" gorm:"type:text;not null"`
	FinalizedBy      *string                       `json:"finalized_by,omitempty" gorm:"type:text"`
	FinalizedAt      *time.Time                    `json:"finalized_at,omitempty"`
	CancelledBy      *string                       `json:"cancelled_by,omitempty" gorm:"type:text"`
	CancelledAt      *time.Time                    `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time                     `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time                     `json:"updated_at" gorm:"not null"`
}

func (DailyReconciliation) TableName() string { return "daily_reconciliations" }

// Mismatch describes a total that does not agree with its parts. It is
// recorded on the report and never raised as an error.
type Mismatch struct {
	Check    string `json:"check"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	Detail   string `json:"detail,omitempty"`
}

// Figures are the computed columns of a report.
type Figures struct {
	CashTotal        int64
	WalletTotal      int64
	GatewayTotal     int64
	HMOTotal         int64
	InsuranceTotal   int64
	TotalRevenue     int64
	PaymentCount     int64
	OutstandingTotal int64
	OutstandingCount int64
	LeakTotal        int64
	LeakCount        int64
	EncountersClosed int64
	Mismatches       []Mismatch
}

func (f Figures) BucketSum() int64 {
	return f.CashTotal + f.WalletTotal + f.GatewayTotal + f.HMOTotal
}

// Apply copies the figures onto the report.
func (f Figures) Apply(rec *DailyReconciliation) {
	rec.CashTotal = f.CashTotal
	rec.WalletTotal = f.WalletTotal
	rec.GatewayTotal = f.GatewayTotal
	rec.HMOTotal = f.HMOTotal
	rec.InsuranceTotal = f.InsuranceTotal
	rec.TotalRevenue = f.TotalRevenue
	rec.PaymentCount = f.PaymentCount
	rec.OutstandingTotal = f.OutstandingTotal
	rec.OutstandingCount = f.OutstandingCount
	rec.LeakTotal = f.LeakTotal
	rec.LeakCount = f.LeakCount
	rec.EncountersClosed = f.EncountersClosed
	rec.HasMismatches = len(f.Mismatches) > 0
	details := f.Mismatches
	if details == nil {
		details = []Mismatch{}
	}
	rec.MismatchDetails = datatypes.NewJSONSlice(details)
}
