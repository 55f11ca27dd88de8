// Package confirmation is the payment confirmation state machine. It is pure:
// timers and network calls are left to the caller, who feeds their outcomes
// back in as events and carries out the returned effects.
package confirmation

import (
	"math"
	"time"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

const (
	MessageExpired         = "Time expired, create a new order."
	MessageFailed          = "Payment failed. Try again or contact support."
	MessageSupportRequired = "We could not confirm the payment. Please contact support."
	MessageNotConfirmed    = "Payment is not confirmed yet. Keep waiting or try again."
)

// Machine tracks one order's confirmation. It is not safe for concurrent use.
type Machine struct {
	orderID    string
	flow       models.Flow
	hint       models.ResultHint
	expiresAt  *time.Time
	settings   models.ConfirmationSettings
	requisites *models.PaymentRequisites

	state             models.ConfirmationState
	started           bool
	closed            bool
	lastStatus        models.PaymentStatus
	message           string
	polls             int
	unknownPolls      int
	consecutiveErrors int
	redirectPending   bool
	redirected        bool
	resumed           bool
	lastUpdated       time.Time
}

// New builds a machine for req. Zero settings take the defaults of the flow.
func New(req models.ConfirmationRequest) *Machine {
	settings := req.Settings
	if settings == (models.ConfirmationSettings{}) {
		settings = models.DefaultSettings(req.Flow)
	}
	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.Requisites != nil {
		expiresAt = req.Requisites.ExpiresAt
	}

	m := &Machine{
		orderID:    req.OrderID,
		flow:       req.Flow,
		hint:       req.Hint,
		expiresAt:  expiresAt,
		settings:   settings,
		requisites: req.Requisites,
		state:      models.StateAwaitingUserAction,
	}
	if req.Flow == models.FlowRedirectResult {
		m.state = models.StateConfirming
	}
	if r := req.Resume; r != nil {
		m.resumed = true
		m.state = r.State
		m.lastStatus = r.LastStatus
		m.message = r.Message
		m.polls = r.Polls
		m.unknownPolls = r.UnknownPolls
		m.consecutiveErrors = r.ConsecutiveErrors
		m.lastUpdated = r.LastUpdated
	}
	return m
}

// Checkpoint captures what a continued run needs to pick up where this one stopped
func (m *Machine) Checkpoint() models.ConfirmationResume {
	return models.ConfirmationResume{
		State:             m.state,
		LastStatus:        m.lastStatus,
		Message:           m.message,
		Polls:             m.polls,
		UnknownPolls:      m.unknownPolls,
		ConsecutiveErrors: m.consecutiveErrors,
		LastUpdated:       m.lastUpdated,
	}
}

func (m *Machine) State() models.ConfirmationState {
	return m.state
}

// Closed reports whether Teardown was applied
func (m *Machine) Closed() bool {
	return m.closed
}

// Polling reports whether status requests may be issued
func (m *Machine) Polling() bool {
	return m.started && !m.closed && m.state == models.StateConfirming
}

// Done reports whether the machine will not ask for anything else
func (m *Machine) Done() bool {
	if m.closed {
		return true
	}
	return m.state.IsTerminal() && !m.redirectPending
}

func (m *Machine) ExpiresAt() *time.Time {
	return m.expiresAt
}

func (m *Machine) Settings() models.ConfirmationSettings {
	return m.settings
}

// Apply feeds one event through the machine
func (m *Machine) Apply(ev Event) Transition {
	t := Transition{From: m.state, To: m.state}
	if m.closed {
		return t
	}
	at := ev.occurredAt()

	if _, ok := ev.(Teardown); ok {
		if m.Polling() {
			t.Effects = append(t.Effects, Effect{Kind: StopPolling})
		}
		m.closed = true
		m.redirectPending = false
		m.touch(at)
		return t
	}

	if start, ok := ev.(Started); ok {
		return m.start(start.At)
	}
	if !m.started {
		return t
	}

	// the deadline is checked before the payload, so expiration wins a tie
	if !m.state.IsTerminal() && m.deadlinePassed(at) {
		return m.expire(at)
	}

	switch e := ev.(type) {
	case UserPaid:
		if m.state == models.StateAwaitingUserAction {
			m.state = models.StateConfirming
			m.message = ""
			m.consecutiveErrors = 0
			t.Effects = append(t.Effects, Effect{Kind: SchedulePoll})
		}
	case RetryRequested:
		if m.state == models.StateConfirming {
			m.state = models.StateAwaitingUserAction
			m.message = ""
			m.consecutiveErrors = 0
			t.Effects = append(t.Effects, Effect{Kind: StopPolling})
		}
	case StatusPolled:
		if m.state != models.StateConfirming {
			break
		}
		m.polls++
		m.consecutiveErrors = 0
		m.lastStatus = e.Status
		t.Effects = m.onStatus(e.Status)
	case PollFailed:
		if m.state != models.StateConfirming {
			break
		}
		m.polls++
		m.consecutiveErrors++
		if m.pollsExhausted() {
			t.Effects = m.giveUp()
			break
		}
		t.Effects = append(t.Effects, Effect{Kind: SchedulePoll, After: m.settings.ErrorPollInterval})
	case ManualConfirmed:
		if m.state != models.StateConfirming {
			break
		}
		if e.Status != "" {
			m.lastStatus = e.Status
		}
		t.Effects = m.confirm()
	case ManualConfirmFailed:
		if m.state != models.StateConfirming {
			break
		}
		m.message = e.Message
		if m.message == "" {
			m.message = MessageNotConfirmed
		}
	case RedirectDue:
		if m.state == models.StateConfirmed && m.redirectPending {
			m.redirectPending = false
			m.redirected = true
			t.Effects = append(t.Effects, Effect{Kind: NavigateOrders})
		}
	}

	m.touch(at)
	t.To = m.state
	return t
}

func (m *Machine) start(at time.Time) Transition {
	t := Transition{From: m.state, To: m.state}
	if m.started {
		return t
	}
	m.started = true
	m.touch(at)

	if m.deadlinePassed(at) {
		m.state = models.StateExpired
		m.message = MessageExpired
		t.To = m.state
		return t
	}

	if m.resumed {
		// the hint was consumed by the first run
		if m.state == models.StateConfirming {
			t.Effects = append(t.Effects, Effect{Kind: SchedulePoll, After: m.settings.PollInterval})
		}
		t.To = m.state
		return t
	}

	if m.state == models.StateConfirming {
		switch m.hint {
		case models.HintSuccess:
			t.Effects = m.confirm()
		case models.HintFailed:
			m.state = models.StateFailed
			m.message = MessageFailed
		default:
			t.Effects = append(t.Effects, Effect{Kind: SchedulePoll})
		}
	}
	t.To = m.state
	return t
}

func (m *Machine) onStatus(status models.PaymentStatus) []Effect {
	switch status.Classify() {
	case models.ClassSuccess:
		return m.confirm()
	case models.ClassFailure:
		m.state = models.StateFailed
		m.message = MessageFailed
		return []Effect{{Kind: StopPolling}}
	case models.ClassUnknown:
		m.unknownPolls++
		if m.settings.MaxUnknownPolls > 0 && m.unknownPolls >= m.settings.MaxUnknownPolls {
			return m.giveUp()
		}
	}
	if m.pollsExhausted() {
		return m.giveUp()
	}
	return []Effect{{Kind: SchedulePoll, After: m.settings.PollInterval}}
}

// pollsExhausted applies the overall ceiling that also covers pending answers and failed polls
func (m *Machine) pollsExhausted() bool {
	return m.settings.MaxPolls > 0 && m.polls >= m.settings.MaxPolls
}

func (m *Machine) giveUp() []Effect {
	m.state = models.StateSupportRequired
	m.message = MessageSupportRequired
	return []Effect{{Kind: StopPolling}}
}

func (m *Machine) confirm() []Effect {
	effects := []Effect{{Kind: StopPolling}}
	m.state = models.StateConfirmed
	m.message = ""
	if !m.redirected && !m.redirectPending {
		m.redirectPending = true
		effects = append(effects, Effect{Kind: ScheduleRedirect, After: m.settings.RedirectDelay})
	}
	return effects
}

func (m *Machine) expire(at time.Time) Transition {
	t := Transition{From: m.state, To: models.StateExpired}
	if m.Polling() {
		t.Effects = append(t.Effects, Effect{Kind: StopPolling})
	}
	m.state = models.StateExpired
	m.message = MessageExpired
	m.touch(at)
	return t
}

func (m *Machine) deadlinePassed(at time.Time) bool {
	return m.expiresAt != nil && !at.Before(*m.expiresAt)
}

func (m *Machine) touch(at time.Time) {
	if !at.IsZero() {
		m.lastUpdated = at
	}
}

// NetworkWarning reports whether enough polls in a row failed to tell the user
func (m *Machine) NetworkWarning() bool {
	return m.settings.NetworkWarnThreshold > 0 && m.consecutiveErrors >= m.settings.NetworkWarnThreshold
}

// SecondsRemaining is the countdown shown next to the requisites, rounded up
func (m *Machine) SecondsRemaining(now time.Time) int {
	if m.expiresAt == nil || m.state.IsTerminal() {
		return 0
	}
	left := m.expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Snapshot renders the machine for the confirmation view
func (m *Machine) Snapshot(now time.Time) models.ConfirmationSnapshot {
	return models.ConfirmationSnapshot{
		OrderID:          m.orderID,
		Flow:             m.flow,
		State:            m.state,
		LastStatus:       m.lastStatus,
		Message:          m.message,
		NetworkWarning:   m.NetworkWarning(),
		Polls:            m.polls,
		SecondsRemaining: m.SecondsRemaining(now),
		ExpiresAt:        m.expiresAt,
		Redirected:       m.redirected,
		Requisites:       m.requisites,
		LastUpdated:      m.lastUpdated,
	}
}
