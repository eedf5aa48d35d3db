package main

import (
	"context"
	"flag"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/lock"
	"github.com/smallbiznis/carebill/internal/metricspush"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/scheduler"
	"github.com/smallbiznis/carebill/internal/server"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run every enabled job once and exit")
	flag.Parse()

	if *once {
		runOnce()
		return
	}

	app := fx.New(
		infrastructure(),
		server.Services,
		metricspush.Background,
		// Jobs only, no HTTP surface
		scheduler.Module,
		fx.Decorate(forceScheduler),
	)
	app.Run()
}

func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		lock.Module,
		metricspush.Module,
	)
}

// runOnce is meant for cron-style deployments. The Redis lock keeps it from
// overlapping a long-running scheduler.
func runOnce() {
	var (
		sched  *scheduler.Scheduler
		worker *metricspush.Worker
		logger *zap.Logger
	)
	app := fx.New(
		infrastructure(),
		server.Services,
		fx.Provide(scheduler.ProvideConfig, scheduler.New),
		fx.Populate(&sched, &worker, &logger),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatalf("scheduler: start: %v", err)
	}

	runErr := sched.RunOnce(context.Background())
	if runErr != nil {
		logger.Error("scheduler run failed", zap.Error(runErr))
	}
	if err := worker.PushOnce(context.Background()); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warn("scheduler: stop", zap.Error(err))
	}
	if runErr != nil {
		log.Fatalf("scheduler: %v", runErr)
	}
}

func forceScheduler(cfg config.Config) config.Config {
	cfg.Scheduler.Enabled = true
	return cfg
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
