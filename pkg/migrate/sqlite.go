package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local SQLite runs and repository
// tests. Enum columns become TEXT and uuids are stored as their string form.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL,
  retailer_id TEXT NOT NULL,
  wholesaler_id TEXT NOT NULL,
  total_amount INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_key TEXT,
  paid_at DATETIME,
  shipped_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_order_number ON orders (order_number)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_payment_key ON orders (payment_key) WHERE payment_key IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS settlements (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  wholesaler_id TEXT NOT NULL,
  order_amount INTEGER NOT NULL,
  platform_fee_rate TEXT NOT NULL,
  platform_fee INTEGER NOT NULL,
  wholesaler_amount INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  scheduled_payout_at DATETIME NOT NULL,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_settlements_order_id ON settlements (order_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  settlement_id TEXT NOT NULL,
  method TEXT NOT NULL,
  amount INTEGER NOT NULL,
  payment_key TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'paid',
  paid_at DATETIME NOT NULL,
  created_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
}

// ApplySQLite creates the schema on a SQLite connection. It is idempotent.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
