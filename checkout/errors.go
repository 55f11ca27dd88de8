package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

var (
	ErrSubmissionInFlight = errors.New("order submission already in flight")
	ErrAlreadySubmitted   = errors.New("order already created for this checkout")
	ErrSessionClosed      = errors.New("checkout session closed")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrNoPaymentMethod    = errors.New("payment method is required")
)

// ErrorKind tells the caller how to present a UserError
type ErrorKind string

const (
	// KindValidation is inline and recoverable by correcting input
	KindValidation ErrorKind = "validation"
	// KindOrder is fatal to the current attempt; the cart stays intact for a retry
	KindOrder ErrorKind = "order"
	// KindNetwork means the backend could not be reached or was overloaded
	KindNetwork ErrorKind = "network"
)

// UserError carries a message that is safe to show as is
type UserError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

const (
	msgGeneric     = "Something went wrong. Please try again."
	msgNetwork     = "Network problem. Check your connection and try again."
	msgBusy        = "The store is busy right now. Please try again in a moment."
	msgRateLimited = "Too many attempts. Please wait a moment and try again."
)

// UserMessage turns any error of this package into readable text
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	switch {
	case errors.As(err, &userErr):
		return userErr.Message
	case errors.Is(err, ErrSubmissionInFlight):
		return "Your order is already being placed."
	case errors.Is(err, ErrAlreadySubmitted):
		return "This order has already been placed."
	case errors.Is(err, ErrSessionClosed):
		return "Checkout was closed. Please start again."
	case errors.Is(err, ErrInvalidQuantity):
		return "Quantity must be at least 1."
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, ErrNoPaymentMethod):
		return "Choose a payment method."
	}
	return msgGeneric
}

// normalize maps backend and transport failures onto a UserError of the given kind
func normalize(err error, kind ErrorKind) *UserError {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr
	}

	var apiErr *storefront.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &UserError{Kind: kind, Message: msgRateLimited, Err: err}
		case apiErr.Temporary():
			return &UserError{Kind: KindNetwork, Message: msgBusy, Err: err}
		case apiErr.Message != "":
			return &UserError{Kind: kind, Message: apiErr.Message, Err: err}
		}
		return &UserError{Kind: kind, Message: msgGeneric, Err: err}
	}

	var transportErr *storefront.TransportError
	if errors.As(err, &transportErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &UserError{Kind: KindNetwork, Message: msgNetwork, Err: err}
	}
	return &UserError{Kind: kind, Message: msgGeneric, Err: err}
}

// definitive reports whether the backend answered, so a new idempotency key is needed for the next attempt
func definitive(err error) bool {
	var apiErr *storefront.APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}
