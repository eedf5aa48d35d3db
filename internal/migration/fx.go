package migration

import (
	"context"

	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration")
		if cfg.DBType == db.TypeSQLite {
			log.Info("applying embedded schema", zap.String("dialect", cfg.DBType))
			return ApplySQL(context.Background(), conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("running migrations", zap.String("dialect", cfg.DBType))
		return RunMigrations(sqlDB)
	}),
)
