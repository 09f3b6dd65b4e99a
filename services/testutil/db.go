package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN returns a shared-cache in-memory SQLite DSN unique to the test and
// name. Connections opened with the same DSN see the same database.
func MemoryDSN(t *testing.T, name string) string {
	t.Helper()
	id := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name() + "_" + name)
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", id)
}

// NewTestDB creates an in-memory SQLite database for testing purposes.
// It auto-migrates the provided models and ensures the underlying connection
// is closed when the test finishes.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	return NewNamedTestDB(t, "directory", models...)
}

// NewNamedTestDB is NewTestDB for tests that need several distinct databases.
func NewNamedTestDB(t *testing.T, name string, models ...any) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(MemoryDSN(t, name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("failed to migrate test database: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB from gorm: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
