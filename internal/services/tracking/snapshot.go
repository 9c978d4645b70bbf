package tracking

import (
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/status"
)

type EventKind string

const (
	// EventPosition is an intermediate animation frame.
	EventPosition EventKind = "position"
	// EventConfirmed is a confirmed driver position: an animation reached a
	// path point or a snapshot position was applied directly.
	EventConfirmed     EventKind = "confirmed"
	EventAnimationDone EventKind = "animation_done"
	EventRegion        EventKind = "region"
	EventStatus        EventKind = "status"
	EventCompleted     EventKind = "completed"
	EventClosed        EventKind = "closed"
)

type Event struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Snapshot is an immutable copy of a session's observable state.
type Snapshot struct {
	SessionID        string                   `json:"session_id"`
	OrderID          string                   `json:"order_id"`
	BusinessOrderID  string                   `json:"business_order_id"`
	DriverName       *string                  `json:"driver_name,omitempty"`
	Driver           *models.DisplayPosition  `json:"driver,omitempty"`
	Destination      *models.Coordinate       `json:"destination,omitempty"`
	DestinationLabel string                   `json:"destination_label"`
	Region           *models.MapRegion        `json:"region,omitempty"`
	Status           string                   `json:"status,omitempty"`
	StatusCode       *int                     `json:"status_code,omitempty"`
	Message          string                   `json:"message,omitempty"`
	Animating        bool                     `json:"animating"`
	Notice           *status.CompletionNotice `json:"notice,omitempty"`
	Closed           bool                     `json:"closed"`
	UpdatedAt        time.Time                `json:"updated_at"`
}
