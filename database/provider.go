package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type ModelsOption struct {
	models []any
}

func WithModels(models ...any) *ModelsOption {
	return &ModelsOption{models: models}
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}
}

// Open connects to the configured database. Timestamps are written in UTC and
// driver errors are translated, so unique violations surface as gorm.ErrDuplicatedKey.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY under concurrent requests.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func ProvideDatabase(ctx context.Context, cfg config.Config, modelsOpt *ModelsOption, logger *logging.Service) (*gorm.DB, error) {
	db, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	switch cfg.Database.Migrate {
	case "auto":
		if modelsOpt != nil && len(modelsOpt.models) > 0 {
			if err := db.AutoMigrate(modelsOpt.models...); err != nil {
				return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
			}
		}
	case "goose":
		if err := RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
			return nil, err
		}
	}

	logger.Info("database ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("migrate", cfg.Database.Migrate),
	)

	return db, nil
}
