package orders

import (
	"context"

	"github.com/BearBump/DriverTrack/internal/models"
)

// Client queries the order service for the driver of a business order.
type Client interface {
	GetDriverLocation(ctx context.Context, businessOrderID string) (models.DriverLocation, error)
}

// ToUpdate converts an order service answer into a position snapshot.
// The driver coordinate wins over the delivery coordinate.
func ToUpdate(loc models.DriverLocation) models.PositionUpdate {
	var upd models.PositionUpdate
	switch {
	case loc.Driver != nil:
		upd.Position = &models.Coordinate{Latitude: loc.Driver.Lat, Longitude: loc.Driver.Lng}
	case loc.Delivery != nil && (loc.Delivery.Lat != 0 || loc.Delivery.Lng != 0):
		upd.Position = &models.Coordinate{Latitude: loc.Delivery.Lat, Longitude: loc.Delivery.Lng}
	}
	if loc.Delivery != nil && loc.Delivery.Status != nil {
		st := models.DeliveryStatus(*loc.Delivery.Status)
		upd.Status = &st
	}
	return upd
}
