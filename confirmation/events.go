package confirmation

import (
	"time"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

// Event is something that happened to a confirmation. The set is closed:
// only the types in this file implement it.
type Event interface {
	occurredAt() time.Time
}

// Started opens the confirmation view
type Started struct{ At time.Time }

// UserPaid is the "I've paid" action on the hosted form
type UserPaid struct{ At time.Time }

// RetryRequested takes a confirming payment back to the form
type RetryRequested struct{ At time.Time }

// Tick only advances the clock; it is how the deadline fires
type Tick struct{ At time.Time }

// StatusPolled carries one answer of the order status endpoint
type StatusPolled struct {
	At     time.Time
	Status models.PaymentStatus
}

// PollFailed is a status request that did not get an answer
type PollFailed struct {
	At     time.Time
	Reason string
}

// ManualConfirmed is a manual confirmation the backend accepted
type ManualConfirmed struct {
	At     time.Time
	Status models.PaymentStatus
}

// ManualConfirmFailed is a manual confirmation that did not settle the payment
type ManualConfirmFailed struct {
	At      time.Time
	Message string
}

// RedirectDue fires when the post-confirmation delay has elapsed
type RedirectDue struct{ At time.Time }

// Teardown closes the view and cancels everything still pending
type Teardown struct{ At time.Time }

func (e Started) occurredAt() time.Time { return e.At }
func (e UserPaid) occurredAt() time.Time { return e.At }
func (e RetryRequested) occurredAt() time.Time { return e.At }
func (e Tick) occurredAt() time.Time { return e.At }
func (e StatusPolled) occurredAt() time.Time { return e.At }
func (e PollFailed) occurredAt() time.Time { return e.At }
func (e ManualConfirmed) occurredAt() time.Time { return e.At }
func (e ManualConfirmFailed) occurredAt() time.Time { return e.At }
func (e RedirectDue) occurredAt() time.Time { return e.At }
func (e Teardown) occurredAt() time.Time { return e.At }

// EffectKind is an instruction for whoever drives the machine
type EffectKind int

const (
	// SchedulePoll asks for one status request after Effect.After
	SchedulePoll EffectKind = iota + 1
	// StopPolling cancels the pending poll timer and any request in flight
	StopPolling
	// ScheduleRedirect arms the single redirect timer
	ScheduleRedirect
	// NavigateOrders leaves the confirmation for the orders view
	NavigateOrders
)

func (k EffectKind) String() string {
	switch k {
	case SchedulePoll:
		return "schedule_poll"
	case StopPolling:
		return "stop_polling"
	case ScheduleRedirect:
		return "schedule_redirect"
	case NavigateOrders:
		return "navigate_orders"
	default:
		return "unknown"
	}
}

type Effect struct {
	Kind  EffectKind
	After time.Duration
}

// Transition is the outcome of applying one event
type Transition struct {
	From    models.ConfirmationState
	To      models.ConfirmationState
	Effects []Effect
}

// Changed reports whether the state moved
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Has reports whether the transition asks for an effect of kind k
func (t Transition) Has(k EffectKind) bool {
	for _, e := range t.Effects {
		if e.Kind == k {
			return true
		}
	}
	return false
}
