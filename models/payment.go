package models

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the order status string reported by the backend
type PaymentStatus string

// Order statuses
const (
	StatusPending         PaymentStatus = "pending"
	StatusAwaitingPayment PaymentStatus = "awaiting_payment"
	StatusPrepaid         PaymentStatus = "prepaid"
	StatusPaid            PaymentStatus = "paid"
	StatusReady           PaymentStatus = "ready"
	StatusDelivered       PaymentStatus = "delivered"
	StatusFulfilled       PaymentStatus = "fulfilled"
	StatusCompleted       PaymentStatus = "completed"
	StatusFailed          PaymentStatus = "failed"
	StatusCancelled       PaymentStatus = "cancelled"
	StatusExpired         PaymentStatus = "expired"
)

// StatusClass groups statuses by what they mean for settlement
type StatusClass int

const (
	ClassUnknown StatusClass = iota
	ClassPending
	ClassSuccess
	ClassFailure
)

func (c StatusClass) String() string {
	switch c {
	case ClassPending:
		return "pending"
	case ClassSuccess:
		return "success"
	case ClassFailure:
		return "failure"
	default:
		return "unknown"
	}
}

var statusClasses = map[PaymentStatus]StatusClass{
	StatusPending:         ClassPending,
	StatusAwaitingPayment: ClassPending,
	StatusPrepaid:         ClassSuccess,
	StatusPaid:            ClassSuccess,
	StatusReady:           ClassSuccess,
	StatusDelivered:       ClassSuccess,
	StatusFulfilled:       ClassSuccess,
	StatusCompleted:       ClassSuccess,
	StatusFailed:          ClassFailure,
	StatusCancelled:       ClassFailure,
	"canceled":            ClassFailure,
	StatusExpired:         ClassFailure,
}

// Classify maps a raw status onto its settlement class. Matching ignores case and surrounding spaces.
func (s PaymentStatus) Classify() StatusClass {
	normalized := PaymentStatus(strings.ToLower(strings.TrimSpace(string(s))))
	if class, ok := statusClasses[normalized]; ok {
		return class
	}
	return ClassUnknown
}

// IsTerminal reports whether polling can stop on this status
func (s PaymentStatus) IsTerminal() bool {
	class := s.Classify()
	return class == ClassSuccess || class == ClassFailure
}

// PaymentMethod is one entry of GET payment-methods
type PaymentMethod struct {
	SystemGroup string `json:"system_group"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
}

// FallbackPaymentMethods keeps checkout usable when the methods endpoint is down
func FallbackPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{SystemGroup: "card", Name: "Bank card", Icon: "card"},
		{SystemGroup: "sbp", Name: "SBP", Icon: "sbp"},
		{SystemGroup: "sbp_qr", Name: "SBP QR", Icon: "qr"},
		{SystemGroup: "crypto", Name: "Crypto", Icon: "crypto"},
	}
}

// PaymentIntent represents one checkout attempt after the order exists
type PaymentIntent struct {
	OrderID           string          `json:"order_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PaymentMethod     string          `json:"payment_method"`
	GatewayPaymentURL string          `json:"payment_url,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	Status            PaymentStatus   `json:"status"`
}

// PaymentRequisites are the transfer details shown on the hosted payment form
type PaymentRequisites struct {
	CardNumber string     `json:"card,omitempty"`
	BankName   string     `json:"bank,omitempty"`
	Receiver   string     `json:"receiver,omitempty"`
	Amount     string     `json:"amount,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	OrderID    string     `json:"order_id"`
	Hash       string     `json:"hash,omitempty"`
}

var ErrMissingOrderID = errors.New("payment form: order_id is required")

// dateLayouts are the deadline formats seen on payment form links. A date
// without a zone is taken as UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseRequisites reads the hosted payment form query. Only order_id is
// required. An unreadable date leaves ExpiresAt nil and the form usable
// without a countdown.
func ParseRequisites(q url.Values) (*PaymentRequisites, error) {
	req := &PaymentRequisites{
		CardNumber: strings.TrimSpace(q.Get("card")),
		BankName:   q.Get("bank"),
		Receiver:   q.Get("receiver"),
		Amount:     q.Get("amount"),
		OrderID:    strings.TrimSpace(q.Get("order_id")),
		Hash:       q.Get("hash"),
	}
	if req.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	if expiresAt, ok := parseDeadline(q.Get("date")); ok {
		req.ExpiresAt = &expiresAt
	}
	return req, nil
}

func parseDeadline(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// CanOpenBankApp reports whether the "open bank app" shortcut has a card to work with
func (r *PaymentRequisites) CanOpenBankApp() bool {
	return r.CardNumber != ""
}
