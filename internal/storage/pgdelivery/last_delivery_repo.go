package pgdelivery

import (
	"context"
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) SaveLastDeliveryOrder(ctx context.Context, o models.LastDeliveryOrder) error {
	var lat, lng *float64
	if o.Destination != nil {
		lat, lng = &o.Destination.Latitude, &o.Destination.Longitude
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO last_delivery_orders (
  device_id, order_id, business_order_id, store_name, store_phone, post_code, dest_lat, dest_lng, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (device_id) DO UPDATE SET
  order_id = EXCLUDED.order_id,
  business_order_id = EXCLUDED.business_order_id,
  store_name = EXCLUDED.store_name,
  store_phone = EXCLUDED.store_phone,
  post_code = EXCLUDED.post_code,
  dest_lat = EXCLUDED.dest_lat,
  dest_lng = EXCLUDED.dest_lng,
  updated_at = EXCLUDED.updated_at
`, o.DeviceID, o.OrderID, o.BusinessOrderID, o.StoreName, o.StorePhone, o.PostCode, lat, lng, time.Now().UTC())
	return errors.Wrap(err, "upsert last delivery order")
}

// GetLastDeliveryOrder returns the device's last delivery, or false when none is stored.
func (s *Storage) GetLastDeliveryOrder(ctx context.Context, deviceID string) (models.LastDeliveryOrder, bool, error) {
	var o models.LastDeliveryOrder
	var lat, lng *float64
	err := s.db.QueryRow(ctx, `
SELECT device_id, order_id, business_order_id, store_name, store_phone, post_code, dest_lat, dest_lng, updated_at
FROM last_delivery_orders
WHERE device_id = $1
`, deviceID).Scan(
		&o.DeviceID, &o.OrderID, &o.BusinessOrderID, &o.StoreName, &o.StorePhone, &o.PostCode, &lat, &lng, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LastDeliveryOrder{}, false, nil
	}
	if err != nil {
		return models.LastDeliveryOrder{}, false, errors.Wrap(err, "select last delivery order")
	}
	if lat != nil && lng != nil {
		o.Destination = &models.Coordinate{Latitude: *lat, Longitude: *lng}
	}
	return o, true, nil
}

// ClearLastDeliveryOrder forgets the device's last delivery. Idempotent.
func (s *Storage) ClearLastDeliveryOrder(ctx context.Context, deviceID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM last_delivery_orders WHERE device_id = $1`, deviceID)
	return errors.Wrap(err, "clear last delivery order")
}
