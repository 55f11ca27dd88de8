// Package checkout turns cart or single-product state into an order: it
// resolves promo codes, keeps the price breakdown current and submits the
// order at most once per checkout attempt.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/metrics"
	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/pricing"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

// Backend is the part of the storefront API a checkout needs
type Backend interface {
	GetCart(ctx context.Context) (*models.Cart, error)
	AddItem(ctx context.Context, req models.AddItemRequest) (*models.Cart, error)
	SetItemQuantity(ctx context.Context, itemID string, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, itemID string) (*models.Cart, error)
	ApplyPromo(ctx context.Context, code string) (*models.Cart, error)
	RemovePromo(ctx context.Context) (*models.Cart, error)
	CheckPromo(ctx context.Context, req models.PromoCheckRequest) (*models.PromoResult, error)
	CreateOrder(ctx context.Context, req models.CreateOrderRequest, idempotencyKey string) (*models.OrderResult, error)
}

var _ Backend = (*storefront.Client)(nil)

// Mode tells whether a session prices the whole cart or a single product
type Mode string

const (
	ModeCart    Mode = "cart"
	ModeProduct Mode = "product"
)

// Options are the optional collaborators of a Session
type Options struct {
	Guard   DispatchGuard
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Session is one checkout attempt. All methods are safe for concurrent use;
// results arriving after Close are dropped.
type Session struct {
	id      string
	mode    Mode
	backend Backend
	guard   DispatchGuard
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu             sync.Mutex
	cart           *models.Cart
	product        *models.ProductSelection
	materialized   *models.CartItem
	promo          *models.PromoResult
	promoSeq       uint64
	staleCartPromo bool
	attemptKey     string
	order          *models.OrderResult
	closed         bool
}

// NewCartSession starts a checkout of the whole cart. Call Load before pricing.
func NewCartSession(backend Backend, opts Options) *Session {
	return newSession(ModeCart, backend, opts)
}

// NewProductSession starts a checkout of a single product
func NewProductSession(backend Backend, product models.ProductSelection, opts Options) (*Session, error) {
	if product.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	s := newSession(ModeProduct, backend, opts)
	s.product = &product
	return s, nil
}

func newSession(mode Mode, backend Backend, opts Options) *Session {
	if opts.Guard == nil {
		opts.Guard = NewMemoryGuard()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		mode:       mode,
		backend:    backend,
		guard:      opts.Guard,
		logger:     opts.Logger.With(zap.String("session_id", id), zap.String("mode", string(mode))),
		metrics:    opts.Metrics,
		attemptKey: uuid.NewString(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Mode() Mode {
	return s.mode
}

// Load fetches the cart and picks up a promo already stored on it
func (s *Session) Load(ctx context.Context) error {
	if s.mode != ModeCart {
		return nil
	}
	cart, err := s.backend.GetCart(ctx)
	if err != nil {
		return normalize(err, KindValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.cart = cart
	s.promo = pricing.PromoFromCart(cart)
	return nil
}

// Breakdown prices the current state. It is pure over the session state and cheap to call.
func (s *Session) Breakdown() models.PriceBreakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Calculate(s.sourceLocked(), s.promo)
}

func (s *Session) sourceLocked() pricing.Source {
	if s.mode == ModeProduct {
		return pricing.ProductSource{Product: *s.product}
	}
	return pricing.CartSource{Cart: s.cart}
}

// Promo returns a copy of the active promo result, or nil
func (s *Session) Promo() *models.PromoResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promo == nil {
		return nil
	}
	promo := *s.promo
	return &promo
}

// Cart returns the last cart seen from the backend
func (s *Session) Cart() *models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart
}

// Product returns the product of a single-product session
func (s *Session) Product() *models.ProductSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.product == nil {
		return nil
	}
	product := *s.product
	return &product
}

// Order returns the order created by this session, if any
func (s *Session) Order() *models.OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

// SetQuantity changes the product quantity of a single-product session
func (s *Session) SetQuantity(quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.mode != ModeProduct {
		return errors.New("set quantity: not a single-product checkout")
	}
	s.product.Quantity = quantity
	return nil
}

// SetItemQuantity changes the quantity of a cart line
func (s *Session) SetItemQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	cart, err := s.backend.SetItemQuantity(ctx, itemID, quantity)
	if err != nil {
		return normalize(err, KindValidation)
	}
	return s.storeCart(cart)
}

// RemoveItem deletes a cart line
func (s *Session) RemoveItem(ctx context.Context, itemID string) error {
	cart, err := s.backend.RemoveItem(ctx, itemID)
	if err != nil {
		return normalize(err, KindValidation)
	}
	return s.storeCart(cart)
}

func (s *Session) storeCart(cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.cart = cart
	return nil
}

// ApplyPromo validates code and makes it the only active promo. An invalid
// code still replaces the previous promo, so no stale discount survives.
func (s *Session) ApplyPromo(ctx context.Context, code string) (*models.PromoResult, error) {
	if code == "" {
		return nil, &UserError{Kind: KindValidation, Message: "Enter a promo code."}
	}
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	seq := s.nextPromoSeq()

	var (
		result *models.PromoResult
		cart   *models.Cart
		err    error
	)
	start := time.Now()
	if s.mode == ModeCart {
		cart, err = s.backend.ApplyPromo(ctx, code)
		if err == nil {
			result = pricing.PromoFromCart(cart)
			if result == nil {
				result = &models.PromoResult{Code: code, Error: "promo code was not accepted"}
			}
		}
	} else {
		product := s.Product()
		result, err = s.backend.CheckPromo(ctx, models.PromoCheckRequest{
			Code:      code,
			ProductID: product.ProductID,
			Quantity:  product.Quantity,
		})
		if err == nil {
			result.Code = code
			result = pricing.NormalizePromo(result)
		}
	}
	s.metrics.ObserveBackend("apply_promo", float64(time.Since(start).Milliseconds()))

	if err != nil {
		if !definitive(err) {
			s.metrics.PromoChecked(string(s.mode), "error")
			return nil, normalize(err, KindNetwork)
		}
		result = &models.PromoResult{Code: code, Error: normalize(err, KindValidation).Message}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if seq != s.promoSeq {
		// a newer apply or remove superseded this response
		return result, nil
	}
	if cart != nil {
		s.cart = cart
	}
	s.promo = result
	// a rejected code leaves the previous one on the server cart
	s.staleCartPromo = !result.Valid && s.mode == ModeCart && s.cart != nil && s.cart.PromoCode != ""

	if !result.Valid {
		s.metrics.PromoChecked(string(s.mode), "invalid")
		s.logger.Info("Promo rejected", zap.String("code", code), zap.String("reason", result.Error))
		msg := result.Error
		if msg == "" {
			msg = "Promo code is not valid."
		}
		return result, &UserError{Kind: KindValidation, Message: msg, Err: err}
	}
	s.metrics.PromoChecked(string(s.mode), "valid")
	s.logger.Info("Promo applied", zap.String("code", code))
	return result, nil
}

// RemovePromo drops the active promo. It is idempotent and also works when no
// promo was ever applied. The local breakdown is reset even if the backend call fails.
func (s *Session) RemovePromo(ctx context.Context) error {
	seq := s.nextPromoSeq()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.promo = nil
	if s.cart != nil {
		cart := *s.cart
		cart.PromoCode = ""
		cart.PromoDiscountPercent = nil
		s.cart = &cart
	}
	s.mu.Unlock()

	if s.mode != ModeCart {
		return nil
	}

	cart, err := s.backend.RemovePromo(ctx)
	if err != nil && !storefront.IsNotFound(err) {
		s.mu.Lock()
		s.staleCartPromo = true
		s.mu.Unlock()
		s.logger.Warn("Promo removal not confirmed by backend", zap.Error(err))
		return normalize(err, KindNetwork)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.staleCartPromo = false
	if cart != nil && seq == s.promoSeq {
		s.cart = cart
	}
	return nil
}

func (s *Session) nextPromoSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoSeq++
	return s.promoSeq
}

// CreateOrder submits the checkout. A second call while one is in flight
// returns ErrSubmissionInFlight without reaching the backend. On failure the
// cart is left as it was and the caller may retry.
func (s *Session) CreateOrder(ctx context.Context, paymentMethod string) (*models.OrderResult, error) {
	if paymentMethod == "" {
		return nil, ErrNoPaymentMethod
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.order != nil {
		s.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	if s.mode == ModeCart && (s.cart == nil || s.cart.IsEmpty()) {
		s.mu.Unlock()
		return nil, ErrEmptyCart
	}
	key := s.attemptKey
	var promo *models.PromoResult
	if s.promo != nil && s.promo.Valid && s.promo.Code != "" {
		p := *s.promo
		promo = &p
	}
	staleCartPromo := s.staleCartPromo
	var product *models.ProductSelection
	if s.product != nil {
		p := *s.product
		product = &p
	}
	s.mu.Unlock()

	acquired, err := s.guard.Acquire(ctx, s.id)
	if err != nil {
		return nil, normalize(err, KindNetwork)
	}
	if !acquired {
		s.metrics.DuplicateSubmission()
		s.logger.Warn("Duplicate order submission suppressed")
		return nil, ErrSubmissionInFlight
	}

	result, err := s.submit(ctx, paymentMethod, key, product, promo, staleCartPromo)
	if err != nil {
		if releaseErr := s.guard.Release(context.WithoutCancel(ctx), s.id); releaseErr != nil {
			s.logger.Error("Failed to release dispatch guard", zap.Error(releaseErr))
		}
		s.metrics.OrderSubmitted(paymentMethod, "failed")
		if definitive(err) {
			s.mu.Lock()
			s.attemptKey = uuid.NewString()
			s.mu.Unlock()
		}
		s.logger.Warn("Order creation failed", zap.String("payment_method", paymentMethod), zap.Error(err))
		return nil, normalize(err, KindOrder)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("Order created after checkout was closed", zap.String("order_id", result.OrderID))
		return nil, ErrSessionClosed
	}
	s.order = result
	s.metrics.OrderSubmitted(paymentMethod, "created")
	s.logger.Info("Order created",
		zap.String("order_id", result.OrderID),
		zap.String("payment_method", paymentMethod),
		zap.Bool("payment_required", result.PaymentURL != ""))
	return result, nil
}

func (s *Session) submit(
	ctx context.Context,
	paymentMethod, key string,
	product *models.ProductSelection,
	promo *models.PromoResult,
	staleCartPromo bool,
) (*models.OrderResult, error) {
	if product != nil {
		if err := s.materialize(ctx, *product); err != nil {
			return nil, err
		}
	}

	if staleCartPromo && promo == nil {
		if _, err := s.backend.RemovePromo(ctx); err != nil && !storefront.IsNotFound(err) {
			return nil, err
		}
	}

	req := models.CreateOrderRequest{PaymentMethod: paymentMethod}
	if promo != nil {
		if _, err := s.backend.ApplyPromo(ctx, promo.Code); err != nil {
			if definitive(err) {
				s.dropPromo(promo.Code)
			}
			return nil, err
		}
		req.PromoCode = promo.Code
	}

	start := time.Now()
	result, err := s.backend.CreateOrder(ctx, req, key)
	s.metrics.ObserveBackend("create_order", float64(time.Since(start).Milliseconds()))
	return result, err
}

// materialize puts the product on the backend cart exactly once per session.
// A retry only corrects the quantity of the line added before.
func (s *Session) materialize(ctx context.Context, product models.ProductSelection) error {
	s.mu.Lock()
	var line *models.CartItem
	if s.materialized != nil {
		item := *s.materialized
		line = &item
	}
	s.mu.Unlock()

	if line == nil {
		cart, err := s.backend.AddItem(ctx, models.AddItemRequest{ProductID: product.ProductID, Quantity: product.Quantity})
		if err != nil {
			return err
		}
		added := models.CartItem{ProductID: product.ProductID, Quantity: product.Quantity}
		if cart != nil {
			if item, ok := cart.FindItem(product.ProductID); ok {
				added.ID = item.ID
			}
		}
		s.setMaterialized(added)
		return nil
	}

	if line.Quantity == product.Quantity {
		return nil
	}
	if line.ID == "" {
		cart, err := s.backend.GetCart(ctx)
		if err != nil {
			return err
		}
		item, ok := cart.FindItem(product.ProductID)
		if !ok {
			return fmt.Errorf("product %s is no longer in the cart", product.ProductID)
		}
		line.ID = item.ID
	}
	if _, err := s.backend.SetItemQuantity(ctx, line.ID, product.Quantity); err != nil {
		return err
	}
	line.Quantity = product.Quantity
	s.setMaterialized(*line)
	return nil
}

func (s *Session) setMaterialized(item models.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materialized = &item
}

// dropPromo forgets a promo the backend refused at submit time
func (s *Session) dropPromo(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promo != nil && s.promo.Code == code {
		s.promo = &models.PromoResult{Code: code, Error: "promo code is no longer valid"}
	}
}

// Close ends the session and frees its dispatch guard. Backend answers that
// arrive afterwards do not change any state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.guard.Release(context.Background(), s.id); err != nil {
		s.logger.Warn("Failed to release dispatch guard on close", zap.Error(err))
	}
	s.logger.Debug("Checkout session closed")
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
