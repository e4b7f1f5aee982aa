// Package dbtest opens throwaway sqlite databases with the full ledger schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/migrate"
)

// Open returns a fresh in-memory database. The pool is capped at one
// connection, so concurrent transactions queue instead of interleaving.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=0"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.AutoMigrateModels(conn); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedBranch inserts an active branch with one active warehouse.
func SeedBranch(t testing.TB, conn *gorm.DB, name string) (models.Branch, models.Warehouse) {
	t.Helper()
	branch := models.Branch{Name: name, IsActive: true}
	if err := conn.Create(&branch).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	return branch, SeedWarehouse(t, conn, branch.ID, name+" main")
}

// SeedWarehouse inserts an active warehouse for branchID.
func SeedWarehouse(t testing.TB, conn *gorm.DB, branchID uuid.UUID, name string) models.Warehouse {
	t.Helper()
	wh := models.Warehouse{BranchID: branchID, Name: name, IsActive: true}
	if err := conn.Create(&wh).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}
	return wh
}

// SeedProduct inserts an active, stock-tracked product.
func SeedProduct(t testing.TB, conn *gorm.DB, name string) models.Product {
	t.Helper()
	sku := "SKU-" + name
	p := models.Product{Name: name, SKU: &sku, IsActive: true, TrackStock: true}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}
