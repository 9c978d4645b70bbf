package pgdelivery

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS last_delivery_orders (
  device_id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  business_order_id TEXT NOT NULL,
  store_name TEXT NOT NULL DEFAULT '',
  store_phone TEXT NULL,
  post_code TEXT NOT NULL DEFAULT '',
  dest_lat DOUBLE PRECISION NULL,
  dest_lng DOUBLE PRECISION NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS driver_positions (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  bearing DOUBLE PRECISION NOT NULL DEFAULT 0,
  source TEXT NOT NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_driver_positions_order_id_recorded_at ON driver_positions(order_id, recorded_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
