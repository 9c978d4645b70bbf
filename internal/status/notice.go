package status

import (
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
)

// CompletionNotice is surfaced to the customer when tracking ends.
type CompletionNotice struct {
	OrderID   string    `json:"order_id"`
	Outcome   Outcome   `json:"outcome"`
	Status    string    `json:"status"`
	Code      int       `json:"status_code"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CallStore *string   `json:"call_store,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BuildNotice builds the completion notice for a terminal transition. The
// "call store" action is offered only when a phone number is known and the
// platform can place calls.
func BuildNotice(info models.SessionInfo, code models.DeliveryStatus, canCall bool, now time.Time) CompletionNotice {
	n := CompletionNotice{
		OrderID:   info.OrderID,
		Outcome:   OutcomeOf(code),
		Status:    code.String(),
		Code:      int(code),
		Message:   Message(code),
		CreatedAt: now,
	}
	switch n.Outcome {
	case OutcomeFailure:
		n.Title = "Delivery failed"
	default:
		n.Title = "Delivered"
	}
	if canCall && info.StorePhone != nil && *info.StorePhone != "" {
		phone := *info.StorePhone
		n.CallStore = &phone
	}
	return n
}
