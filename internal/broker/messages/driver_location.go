package messages

import (
	"encoding/json"
	"time"
)

// EventDriverLocationUpdate is the event name bound on a driver location channel.
const EventDriverLocationUpdate = "driver_location_update"

// Envelope wraps an event on a pub/sub channel. Data carries the event payload
// as a JSON string, the way hosted pub/sub services deliver it.
type Envelope struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    string `json:"data"`
}

// DriverLocationUpdate is the payload of EventDriverLocationUpdate.
type DriverLocationUpdate struct {
	Lg  *float64        `json:"lg,omitempty"`
	Lt  *float64        `json:"lt,omitempty"`
	Mov []MovementPoint `json:"mov,omitempty"`
	S   *int            `json:"s,omitempty"`
}

type MovementPoint struct {
	Lg float64 `json:"lg"`
	Lt float64 `json:"lt"`
}

// DeliveryCompleted is published when a tracking session reaches a terminal status.
type DeliveryCompleted struct {
	SessionID       string          `json:"session_id"`
	OrderID         string          `json:"order_id"`
	BusinessOrderID string          `json:"business_order_id"`
	DeviceID        string          `json:"device_id,omitempty"`
	Status          int             `json:"status"`
	Outcome         string          `json:"outcome"`
	CompletedAt     time.Time       `json:"completed_at"`
	Notice          json.RawMessage `json:"notice,omitempty"`
}
