package pgdelivery

import (
	"context"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) RecordPosition(ctx context.Context, p models.DriverPosition) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO driver_positions (order_id, lat, lng, bearing, source, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, p.OrderID, p.Latitude, p.Longitude, p.Bearing, p.Source, p.RecordedAt.UTC())
	return errors.Wrap(err, "insert driver position")
}

func (s *Storage) ListDriverPositions(ctx context.Context, orderID string, limit int) ([]*models.DriverPosition, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
SELECT id, order_id, lat, lng, bearing, source, recorded_at
FROM driver_positions
WHERE order_id = $1
ORDER BY recorded_at DESC, id DESC
LIMIT $2
`, orderID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select driver positions")
	}
	defer rows.Close()

	out := []*models.DriverPosition{}
	for rows.Next() {
		var p models.DriverPosition
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Latitude, &p.Longitude, &p.Bearing, &p.Source, &p.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scan driver position")
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
