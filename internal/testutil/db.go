// Package testutil provides an in-memory database with the application schema.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/pkg/common"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database and migrates domain.Tables.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(domain.Tables...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedServices creates services by name and returns them keyed by name.
func SeedServices(t testing.TB, db *gorm.DB, names ...string) map[string]*domain.Service {
	t.Helper()

	out := make(map[string]*domain.Service, len(names))
	for _, name := range names {
		svc := &domain.Service{ID: common.UUIDint64(), Name: name}
		if err := db.Create(svc).Error; err != nil {
			t.Fatalf("seed service %s: %v", name, err)
		}
		out[name] = svc
	}
	return out
}
