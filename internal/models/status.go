package models

import "fmt"

// DeliveryStatus is the numeric status code reported by the driver feed and
// the order service.
type DeliveryStatus int

const (
	StatusUnassigned          DeliveryStatus = 0
	StatusAssigned            DeliveryStatus = 1
	StatusDelivered           DeliveryStatus = 2
	StatusUndeliverable       DeliveryStatus = 3
	StatusDeclined            DeliveryStatus = 4
	StatusEnRoute             DeliveryStatus = 5
	StatusHandledByThirdParty DeliveryStatus = 6
	StatusThirdPartyPending   DeliveryStatus = 7
	StatusThirdPartyError     DeliveryStatus = 8
	StatusReturningToStore    DeliveryStatus = 9
	StatusDeliveredToStore    DeliveryStatus = 10
)

var statusNames = map[DeliveryStatus]string{
	StatusUnassigned:          "UNASSIGNED",
	StatusAssigned:            "ASSIGNED",
	StatusDelivered:           "DELIVERED",
	StatusUndeliverable:       "UNDELIVERABLE",
	StatusDeclined:            "DECLINED",
	StatusEnRoute:             "EN_ROUTE",
	StatusHandledByThirdParty: "HANDLED_BY_THIRD_PARTY",
	StatusThirdPartyPending:   "THIRD_PARTY_PENDING",
	StatusThirdPartyError:     "THIRD_PARTY_ERROR",
	StatusReturningToStore:    "RETURNING_TO_STORE",
	StatusDeliveredToStore:    "DELIVERED_TO_STORE",
}

func (s DeliveryStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

func (s DeliveryStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether tracking stops at this status.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusUndeliverable, StatusHandledByThirdParty:
		return true
	default:
		return false
	}
}
