package database

import (
	"fmt"

	"crm-backend/models"

	"gorm.io/gorm"
)

// Migrate applies (idempotent) schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - on postgres: money column types, helpful indexes and CHECK constraints
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Customer{},
		&models.Interaction{},
		&models.Proposal{},
		&models.Invoice{},
		&models.Payment{},
		&models.Event{},
		&models.IdempotencyKey{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		alters := []string{
			`ALTER TABLE payments  ALTER COLUMN amount   TYPE numeric(12,2)`,
			`ALTER TABLE invoices  ALTER COLUMN discount TYPE numeric(5,2)`,
			`ALTER TABLE proposals ALTER COLUMN discount TYPE numeric(5,2)`,
		}
		for _, stmt := range alters {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("money type migration failed on: %s - %w", stmt, err)
			}
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_events_user_start ON events (user_id, start_date)`,
			`CREATE INDEX IF NOT EXISTS idx_interactions_customer_date ON interactions (customer_id, date DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_customers_tags ON customers USING gin ((tags::jsonb))`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		checks := map[string]string{
			"chk_payments_amount_pos":      `ALTER TABLE payments ADD CONSTRAINT chk_payments_amount_pos CHECK (amount > 0)`,
			"chk_invoices_discount_range":  `ALTER TABLE invoices ADD CONSTRAINT chk_invoices_discount_range CHECK (discount >= 0 AND discount <= 100)`,
			"chk_proposals_discount_range": `ALTER TABLE proposals ADD CONSTRAINT chk_proposals_discount_range CHECK (discount >= 0 AND discount <= 100)`,
			"chk_customers_value_range":    `ALTER TABLE customers ADD CONSTRAINT chk_customers_value_range CHECK (customer_value BETWEEN 0 AND 5)`,
			"chk_events_date_order":        `ALTER TABLE events ADD CONSTRAINT chk_events_date_order CHECK (end_date >= start_date)`,
			"chk_invoices_state":           `ALTER TABLE invoices ADD CONSTRAINT chk_invoices_state CHECK (state IN ('draft','sent','cancelled'))`,
		}
		for name, stmt := range checks {
			guarded := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
		%s;
	END IF;
END $$;`, name, stmt)
			if err := tx.Exec(guarded).Error; err != nil {
				return fmt.Errorf("check constraint migration failed on %s: %w", name, err)
			}
		}
		return nil
	})
}
