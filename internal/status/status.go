package status

import (
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/pkg/errors"
)

var ErrUnknownStatus = errors.New("unknown delivery status")

type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "delivered"
	OutcomeFailure Outcome = "undeliverable"
)

// Transition describes the result of applying a status code.
type Transition struct {
	Previous *models.DeliveryStatus
	Current  models.DeliveryStatus
	Changed  bool
	Terminal bool
	Outcome  Outcome
}

// Machine tracks the delivery status of one session. It starts with no
// status; the first reported code becomes the initial state.
type Machine struct {
	current  *models.DeliveryStatus
	terminal bool
}

func NewMachine() *Machine {
	return &Machine{}
}

// Apply moves the machine to code. Once terminal, further codes are ignored
// and reported as unchanged.
func (m *Machine) Apply(code models.DeliveryStatus) (Transition, error) {
	if !code.Valid() {
		return Transition{}, errors.Wrapf(ErrUnknownStatus, "code %d", int(code))
	}
	if m.terminal {
		return Transition{Previous: m.current, Current: *m.current, Terminal: true}, nil
	}

	prev := m.current
	tr := Transition{
		Previous: prev,
		Current:  code,
		Changed:  prev == nil || *prev != code,
		Terminal: code.Terminal(),
		Outcome:  OutcomeOf(code),
	}
	m.current = &code
	m.terminal = tr.Terminal
	return tr, nil
}

func (m *Machine) Current() (models.DeliveryStatus, bool) {
	if m.current == nil {
		return 0, false
	}
	return *m.current, true
}

func (m *Machine) Terminal() bool { return m.terminal }

// OutcomeOf classifies terminal statuses into success or failure.
func OutcomeOf(code models.DeliveryStatus) Outcome {
	switch code {
	case models.StatusDelivered, models.StatusHandledByThirdParty:
		return OutcomeSuccess
	case models.StatusUndeliverable:
		return OutcomeFailure
	default:
		return OutcomeNone
	}
}

// Message is the user-facing text for a status.
func Message(code models.DeliveryStatus) string {
	switch code {
	case models.StatusUnassigned:
		return "We're finding a driver for your order"
	case models.StatusAssigned:
		return "A driver has been assigned to your order"
	case models.StatusDelivered:
		return "Your order has been delivered"
	case models.StatusUndeliverable:
		return "We couldn't deliver your order"
	case models.StatusDeclined:
		return "We're finding another driver for your order"
	case models.StatusEnRoute:
		return "Your driver is on the way"
	case models.StatusHandledByThirdParty:
		return "Your order is being delivered by our partner"
	case models.StatusThirdPartyPending:
		return "Waiting for our delivery partner"
	case models.StatusThirdPartyError:
		return "Our delivery partner hit a problem, we're on it"
	case models.StatusReturningToStore:
		return "Your driver is returning to the store"
	case models.StatusDeliveredToStore:
		return "Your order has been returned to the store"
	default:
		return ""
	}
}
