package database

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/tech-arch1tect/authd/database/migrations"
	"gorm.io/gorm"
)

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "sqlite":
		return "sqlite3", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("no migrations for driver %s", driver)
	}
}

// RunMigrations applies the embedded SQL migrations for the driver's dialect.
func RunMigrations(ctx context.Context, db *gorm.DB, driver string) error {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, dialect); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}
