package metricspush

import (
	"context"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Gauges are point-in-time billing figures read from the database before
// every push.
type Gauges struct {
	outstandingAmount prometheus.Gauge
	outstandingItems  prometheus.Gauge
	openLeaks         prometheus.Gauge
	openLeakAmount    prometheus.Gauge
	draftDays         prometheus.Gauge
	memoryBytes       prometheus.Gauge
}

func NewGauges(registerer prometheus.Registerer) *Gauges {
	g := &Gauges{
		outstandingAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebill_outstanding_amount_minor",
			Help: "Sum of outstanding line item amounts in minor units.",
		}),
		outstandingItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebill_outstanding_line_items",
			Help: "Line items not yet fully paid.",
		}),
		openLeaks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebill_unresolved_leaks",
			Help: "Revenue leaks awaiting resolution.",
		}),
		openLeakAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebill_unresolved_leak_amount_minor",
			Help: "Estimated value of unresolved leaks in minor units.",
		}),
		draftDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebill_reconciliation_draft_days",
			Help: "Daily reconciliation reports not yet finalized.",
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebill_process_memory_bytes",
			Help: "Memory obtained from the OS by the process.",
		}),
	}
	registerer.MustRegister(
		g.outstandingAmount,
		g.outstandingItems,
		g.openLeaks,
		g.openLeakAmount,
		g.draftDays,
		g.memoryBytes,
	)
	return g
}

type sumRow struct {
	Total int64
	Count int64
}

// Refresh reloads every gauge. The first failing query is returned; the
// gauges read before it keep their new values.
func (g *Gauges) Refresh(ctx context.Context, db *gorm.DB) error {
	if g == nil {
		return nil
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	g.memoryBytes.Set(float64(m.Sys))

	if db == nil {
		return nil
	}
	db = db.WithContext(ctx)

	var outstanding sumRow
	if err := db.Raw(`SELECT COALESCE(SUM(outstanding_amount), 0) AS total, COUNT(*) AS count
		FROM line_items WHERE status <> 'PAID'`).Scan(&outstanding).Error; err != nil {
		return err
	}
	g.outstandingAmount.Set(float64(outstanding.Total))
	g.outstandingItems.Set(float64(outstanding.Count))

	var leaks sumRow
	if err := db.Raw(`SELECT COALESCE(SUM(estimated_amount), 0) AS total, COUNT(*) AS count
		FROM leak_records WHERE resolved_at IS NULL`).Scan(&leaks).Error; err != nil {
		return err
	}
	g.openLeaks.Set(float64(leaks.Count))
	g.openLeakAmount.Set(float64(leaks.Total))

	var drafts int64
	if err := db.Raw(`SELECT COUNT(*) FROM daily_reconciliations WHERE status = 'DRAFT'`).Scan(&drafts).Error; err != nil {
		return err
	}
	g.draftDays.Set(float64(drafts))
	return nil
}
