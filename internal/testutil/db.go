// Package testutil opens throwaway in-memory databases for tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"traffic-service/internal/model"
)

// OpenDB returns an in-memory database with the service schema applied.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.AutoMigrate(&model.Detector{}, &model.VehiclePass{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	return db
}
