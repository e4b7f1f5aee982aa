package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
)

// ledgerModels lists every table in creation order (parents first).
func ledgerModels() []any {
	return []any{
		&models.Branch{},
		&models.Warehouse{},
		&models.Product{},
		&models.StockBalance{},
		&models.StockMovement{},
		&models.StockMovementItem{},
		&models.CashRegister{},
		&models.CashMovement{},
		&models.Sale{},
		&models.SaleItem{},
		&models.SalePayment{},
		&models.Refund{},
		&models.RefundPayment{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// sqliteIndexes mirrors the partial indexes the SQL migrations create.
var sqliteIndexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS ux_cash_registers_branch_open ON cash_registers (branch_id) WHERE status = 'OPEN'",
}

// AutoMigrateModels builds the schema from the gorm models. Used for sqlite
// (local dev and tests), where the Postgres-flavoured SQL migrations do not apply.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(ledgerModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range sqliteIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
