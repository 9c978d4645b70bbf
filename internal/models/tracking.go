package models

import "time"

// Coordinate is a WGS 84 point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// PositionUpdate is one message from the live feed or the poller.
// Position is the final confirmed coordinate, Movement the intermediate points
// leading to it.
type PositionUpdate struct {
	Position *Coordinate
	Movement []Coordinate
	Status   *DeliveryStatus
}

// Actionable reports whether the update carries a position or a status.
func (u PositionUpdate) Actionable() bool {
	return u.Position != nil || u.Status != nil
}

// DisplayPosition is the rendered driver marker.
type DisplayPosition struct {
	Coordinate
	Bearing float64 `json:"bearing"`
}

// MapRegion is a center plus span in degrees.
type MapRegion struct {
	Center         Coordinate `json:"center"`
	LatitudeDelta  float64    `json:"lat_delta"`
	LongitudeDelta float64    `json:"lng_delta"`
}

// Contains reports whether c lies within the region bounds.
func (r MapRegion) Contains(c Coordinate) bool {
	const eps = 1e-9
	return c.Latitude >= r.Center.Latitude-r.LatitudeDelta/2-eps &&
		c.Latitude <= r.Center.Latitude+r.LatitudeDelta/2+eps &&
		c.Longitude >= r.Center.Longitude-r.LongitudeDelta/2-eps &&
		c.Longitude <= r.Center.Longitude+r.LongitudeDelta/2+eps
}

// SessionInfo identifies one delivery being tracked.
type SessionInfo struct {
	OrderID          string      `json:"order_id"`
	BusinessOrderID  string      `json:"business_order_id"`
	DeviceID         string      `json:"device_id,omitempty"`
	DriverName       *string     `json:"driver_name,omitempty"`
	StorePhone       *string     `json:"store_phone,omitempty"`
	DestinationLabel string      `json:"destination_label"`
	Destination      *Coordinate `json:"destination,omitempty"`
	// FromLastDelivery marks sessions opened from the device's persisted
	// last delivery rather than an explicitly chosen order.
	FromLastDelivery bool `json:"from_last_delivery"`
}

// LastDeliveryOrder is the persisted reference to a device's most recent delivery.
type LastDeliveryOrder struct {
	DeviceID        string
	OrderID         string
	BusinessOrderID string
	StoreName       string
	StorePhone      *string
	PostCode        string
	Destination     *Coordinate
	UpdatedAt       time.Time
}

// DriverLocation is the order service answer for a business order.
type DriverLocation struct {
	Driver   *DriverInfo   `json:"driver,omitempty"`
	Delivery *DeliveryInfo `json:"delivery,omitempty"`
}

type DriverInfo struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type DeliveryInfo struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Status *int    `json:"status,omitempty"`
}

// DriverPosition is one recorded point of the driver's track.
type DriverPosition struct {
	ID         uint64    `json:"id"`
	OrderID    string    `json:"order_id"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	Bearing    float64   `json:"bearing"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

const (
	PositionSourceFeed = "feed"
	PositionSourcePoll = "poll"
)
