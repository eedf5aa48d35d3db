package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	DB     *gorm.DB `optional:"true"`
	Pusher Pusher   `optional:"true"`
}

// Worker refreshes the billing gauges and pushes them together with the
// process-wide default registry.
type Worker struct {
	log      *zap.Logger
	db       *gorm.DB
	pusher   Pusher
	gauges   *Gauges
	gatherer prometheus.Gatherer
	interval time.Duration
}

func NewWorker(p Params) *Worker {
	registry := prometheus.NewRegistry()
	interval := p.Cfg.Metrics.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		log:      p.Log.Named("metricspush"),
		db:       p.DB,
		pusher:   p.Pusher,
		gauges:   NewGauges(registry),
		gatherer: prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		interval: interval,
	}
}

func (w *Worker) Enabled() bool {
	return w != nil && w.pusher != nil
}

// PushOnce is a no-op when no pusher is configured.
func (w *Worker) PushOnce(ctx context.Context) error {
	if !w.Enabled() {
		return nil
	}
	if err := w.gauges.Refresh(ctx, w.db); err != nil {
		w.log.Warn("billing gauges refresh failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return w.pusher.Push(ctx, w.gatherer)
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.PushOnce(ctx); err != nil {
			w.log.Warn("metrics push failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			// final push so a stopping replica does not lose its last counts
			if err := w.PushOnce(context.Background()); err != nil {
				w.log.Warn("final metrics push failed", zap.Error(err))
			}
			return
		case <-ticker.C:
		}
	}
}
