// Package gateway decides where the user goes once an order exists: straight
// to success, to the in-app hosted payment form, or out to an external gateway.
package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrInvalidPaymentURL = errors.New("invalid payment url")

// Kind is the navigation strategy picked for an order
type Kind string

const (
	KindNoPayment  Kind = "no_payment"
	KindHostedForm Kind = "hosted_form"
	KindExternal   Kind = "external"
)

// Decision is the outcome of routing one order
type Decision struct {
	OrderID string `json:"order_id"`
	Kind    Kind   `json:"kind"`
	Target  string `json:"target,omitempty"`
	// Repeated is set when the order was already routed and nothing was done
	Repeated bool `json:"repeated,omitempty"`
}

// Options configure a Router
type Options struct {
	// AppOrigin is the scheme and host the app is served from
	AppOrigin string
	// FormPath is the path prefix of the hosted payment form
	FormPath   string
	CloseGrace time.Duration
	Logger     *zap.Logger
}

// Router routes each order exactly once
type Router struct {
	bridge    HostBridge
	origin    *url.URL
	formPath  string
	grace     time.Duration
	logger    *zap.Logger
	afterFunc func(time.Duration, func())

	mu     sync.Mutex
	routed map[string]Decision
}

func NewRouter(bridge HostBridge, opts Options) (*Router, error) {
	origin, err := url.Parse(opts.AppOrigin)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("app origin %q: %w", opts.AppOrigin, ErrInvalidPaymentURL)
	}
	if bridge == nil {
		bridge = NoopBridge{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Router{
		bridge:   bridge,
		origin:   origin,
		formPath: "/" + strings.Trim(opts.FormPath, "/"),
		grace:    opts.CloseGrace,
		logger:   opts.Logger,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		routed: make(map[string]Decision),
	}, nil
}

// Route sends the user on after order creation. onSuccess runs only when
// nothing is left to pay. A second call for the same order returns the first
// decision with Repeated set and touches neither the bridge nor onSuccess.
func (r *Router) Route(orderID, paymentURL string, onSuccess func()) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.routed[orderID]; ok {
		prev.Repeated = true
		return prev, nil
	}

	decision, err := r.decide(orderID, strings.TrimSpace(paymentURL))
	if err != nil {
		return Decision{}, err
	}
	r.routed[orderID] = decision
	r.logger.Info("Order routed",
		zap.String("order_id", orderID),
		zap.String("kind", string(decision.Kind)),
		zap.Bool("embedded", r.bridge.Embedded()))

	switch decision.Kind {
	case KindNoPayment:
		r.bridge.Haptic("success")
		if onSuccess != nil {
			onSuccess()
		}
	case KindHostedForm:
		r.bridge.Navigate(decision.Target)
	case KindExternal:
		if r.bridge.Embedded() {
			r.bridge.OpenExternal(decision.Target)
			r.closeLater()
		} else {
			r.bridge.OpenTab(decision.Target)
		}
	}
	return decision, nil
}

func (r *Router) decide(orderID, paymentURL string) (Decision, error) {
	if paymentURL == "" {
		return Decision{OrderID: orderID, Kind: KindNoPayment}, nil
	}

	u, err := url.Parse(paymentURL)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidPaymentURL, err)
	}
	if r.isHostedForm(u) {
		target := u.EscapedPath()
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
		return Decision{OrderID: orderID, Kind: KindHostedForm, Target: target}, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Decision{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPaymentURL, u.Scheme)
	}
	return Decision{OrderID: orderID, Kind: KindExternal, Target: u.String()}, nil
}

func (r *Router) isHostedForm(u *url.URL) bool {
	sameOrigin := u.Host == "" && u.Scheme == "" ||
		strings.EqualFold(u.Host, r.origin.Host) && strings.EqualFold(u.Scheme, r.origin.Scheme)
	if !sameOrigin {
		return false
	}
	return u.Path == r.formPath || strings.HasPrefix(u.Path, r.formPath+"/")
}

func (r *Router) closeLater() {
	if closer, ok := r.bridge.(DelayedCloser); ok {
		closer.CloseAfter(r.grace)
		return
	}
	r.afterFunc(r.grace, r.bridge.Close)
}
