package models

import "time"

// Flow selects which confirmation page started the state machine
type Flow string

const (
	// FlowHostedForm is the H2H form: requisites are shown and the user signals the transfer
	FlowHostedForm Flow = "h2h"
	// FlowRedirectResult is the page an external gateway redirects back to
	FlowRedirectResult Flow = "redirect"
)

// ResultHint is the explicit outcome flag an external gateway may put on the result URL
type ResultHint string

const (
	HintNone    ResultHint = ""
	HintSuccess ResultHint = "success"
	HintFailed  ResultHint = "failed"
)

// ConfirmationState is a state of the payment confirmation machine
type ConfirmationState string

const (
	StateAwaitingUserAction ConfirmationState = "awaiting_user_action"
	StateConfirming         ConfirmationState = "confirming"
	StateConfirmed          ConfirmationState = "confirmed"
	StateFailed             ConfirmationState = "failed"
	StateExpired            ConfirmationState = "expired"
	StateSupportRequired    ConfirmationState = "support_required"
)

// IsTerminal reports whether the machine never leaves this state on its own
func (s ConfirmationState) IsTerminal() bool {
	switch s {
	case StateConfirmed, StateFailed, StateExpired, StateSupportRequired:
		return true
	}
	return false
}

// ConfirmationSettings tunes the polling and redirect timers
type ConfirmationSettings struct {
	PollInterval         time.Duration `json:"poll_interval"`
	ErrorPollInterval    time.Duration `json:"error_poll_interval"`
	RedirectDelay        time.Duration `json:"redirect_delay"`
	MaxUnknownPolls      int           `json:"max_unknown_polls"`
	NetworkWarnThreshold int           `json:"network_warn_threshold"`
	// MaxPolls ends polling in support_required whatever the statuses were. Zero means no limit.
	MaxPolls int `json:"max_polls"`
	// PollsPerRun is how many polls one workflow run issues before it continues as new
	PollsPerRun int `json:"polls_per_run"`
}

// DefaultSettings returns the timer settings of a flow
func DefaultSettings(flow Flow) ConfirmationSettings {
	if flow == FlowRedirectResult {
		return ConfirmationSettings{
			PollInterval:         3 * time.Second,
			ErrorPollInterval:    5 * time.Second,
			RedirectDelay:        3 * time.Second,
			MaxUnknownPolls:      120,
			NetworkWarnThreshold: 3,
			MaxPolls:             1200,
			PollsPerRun:          500,
		}
	}
	return ConfirmationSettings{
		PollInterval:         5 * time.Second,
		ErrorPollInterval:    5 * time.Second,
		RedirectDelay:        3 * time.Second,
		NetworkWarnThreshold: 3,
		MaxPolls:             720,
		PollsPerRun:          500,
	}
}

// ConfirmationRequest starts a confirmation workflow
type ConfirmationRequest struct {
	OrderID    string               `json:"order_id"`
	Hash       string               `json:"hash,omitempty"`
	Flow       Flow                 `json:"flow"`
	Hint       ResultHint           `json:"hint,omitempty"`
	ExpiresAt  *time.Time           `json:"expires_at,omitempty"`
	Requisites *PaymentRequisites   `json:"requisites,omitempty"`
	Settings   ConfirmationSettings `json:"settings"`
	// Resume is set when a run continues as new with the state of the previous one
	Resume *ConfirmationResume `json:"resume,omitempty"`
}

// ConfirmationResume is the machine state carried into a continued run
type ConfirmationResume struct {
	State             ConfirmationState `json:"state"`
	LastStatus        PaymentStatus     `json:"last_status,omitempty"`
	Message           string            `json:"message,omitempty"`
	Polls             int               `json:"polls"`
	UnknownPolls      int               `json:"unknown_polls"`
	ConsecutiveErrors int               `json:"consecutive_errors"`
	LastUpdated       time.Time         `json:"last_updated"`
}

// ConfirmationSnapshot is what the confirmation view renders
type ConfirmationSnapshot struct {
	OrderID          string             `json:"order_id"`
	Flow             Flow               `json:"flow"`
	State            ConfirmationState  `json:"state"`
	LastStatus       PaymentStatus      `json:"last_status,omitempty"`
	Message          string             `json:"message,omitempty"`
	NetworkWarning   bool               `json:"network_warning"`
	Polls            int                `json:"polls"`
	SecondsRemaining int                `json:"seconds_remaining"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	Redirected       bool               `json:"redirected"`
	Requisites       *PaymentRequisites `json:"requisites,omitempty"`
	LastUpdated      time.Time          `json:"last_updated"`
}

// Signal names
const (
	SignalPaid     = "confirmation.paid"
	SignalRetry    = "confirmation.retry"
	SignalConfirm  = "confirmation.confirm"
	SignalTeardown = "confirmation.teardown"
)

// QueryState returns the current ConfirmationSnapshot
const QueryState = "confirmation.state"

// ConfirmationWorkflowID is the workflow id used for an order
func ConfirmationWorkflowID(orderID string) string {
	return "confirmation-" + orderID
}
