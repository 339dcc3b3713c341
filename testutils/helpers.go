package testutils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/database"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory sqlite database on a single connection, so
// transactions and plain queries observe the same data.
func SetupTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupMigratedTestDB is SetupTestDB with the schema built from the SQL migrations.
func SetupMigratedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := SetupTestDB(t)
	require.NoError(t, database.RunMigrations(context.Background(), db, "sqlite"))
	return db
}
