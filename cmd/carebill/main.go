package main

import (
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/lock"
	"github.com/smallbiznis/carebill/internal/metricspush"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/scheduler"
	"github.com/smallbiznis/carebill/internal/seed"
	"github.com/smallbiznis/carebill/internal/server"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		lock.Module,
		metricspush.Module,
		metricspush.Background,

		// HTTP surface and billing domains
		server.Module,
		seed.Module,

		// In-process jobs, gated by SCHEDULER_ENABLED
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
