package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/gateway"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

type CreateSessionRequest struct {
	Mode      checkout.Mode   `json:"mode"`
	ProductID string          `json:"product_id,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency,omitempty"`
}

type SetQuantityRequest struct {
	// ItemID selects the cart line; empty for a single-product checkout
	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity"`
}

type PromoRequest struct {
	Code string `json:"code"`
}

type CreateOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// SessionResponse is the checkout view
type SessionResponse struct {
	ID        string                   `json:"id"`
	Mode      checkout.Mode            `json:"mode"`
	Breakdown models.PriceBreakdown    `json:"breakdown"`
	Promo     *models.PromoResult      `json:"promo,omitempty"`
	Cart      *models.Cart             `json:"cart,omitempty"`
	Product   *models.ProductSelection `json:"product,omitempty"`
	Order     *models.OrderResult      `json:"order,omitempty"`
}

// OrderResponse tells the front end where to go next
type OrderResponse struct {
	Order      models.OrderResult  `json:"order"`
	Decision   gateway.Decision    `json:"decision"`
	Directives []gateway.Directive `json:"directives"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := bearerToken(r)
	backend := s.deps.BackendFor(token)
	opts := checkout.Options{
		Guard:   s.deps.Guard,
		Logger:  s.logger,
		Metrics: s.deps.Metrics,
	}

	var (
		session *checkout.Session
		err     error
	)
	switch req.Mode {
	case checkout.ModeCart, "":
		session = checkout.NewCartSession(backend, opts)
		err = session.Load(r.Context())
	case checkout.ModeProduct:
		if req.ProductID == "" {
			respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
			return
		}
		if req.UnitPrice.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid_price", "unit_price must not be negative")
			return
		}
		session, err = checkout.NewProductSession(backend, models.ProductSelection{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: req.UnitPrice,
			Currency:  req.Currency,
		}, opts)
	default:
		respondError(w, http.StatusBadRequest, "invalid_mode", "mode must be cart or product")
		return
	}
	if err != nil {
		s.respondCheckoutError(w, err)
		return
	}

	bridge := gateway.NewRecordingBridge(s.deps.Embedded)
	routerOpts := s.deps.Router
	routerOpts.Logger = s.logger
	router, err := gateway.NewRouter(bridge, routerOpts)
	if err != nil {
		s.logger.Error("Invalid gateway configuration", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	s.sessions.put(&entry{session: session, bridge: bridge, router: router, owner: token})
	respondJSON(w, http.StatusCreated, sessionView(session))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sessionView(e.session))
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !s.sessions.remove(e.session.ID()) {
		respondError(w, http.StatusNotFound, "not_found", "checkout session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setQuantity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var err error
	if e.session.Mode() == checkout.ModeProduct {
		err = e.session.SetQuantity(req.Quantity)
	} else {
		if req.ItemID == "" {
			respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required for a cart checkout")
			return
		}
		err = e.session.SetItemQuantity(r.Context(), req.ItemID, req.Quantity)
	}
	if err != nil {
		s.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionView(e.session))
}

func (s *Server) applyPromo(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req PromoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := e.session.ApplyPromo(r.Context(), req.Code); err != nil {
		s.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionView(e.session))
}

func (s *Server) removePromo(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := e.session.RemovePromo(r.Context()); err != nil {
		// the discount is gone locally, the backend is retried at submit
		var userErr *checkout.UserError
		if !errors.As(err, &userErr) || userErr.Kind != checkout.KindNetwork {
			s.respondCheckoutError(w, err)
			return
		}
		s.logger.Warn("Promo removal deferred", zap.String("session_id", e.session.ID()), zap.Error(err))
	}
	respondJSON(w, http.StatusOK, sessionView(e.session))
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := e.session.CreateOrder(r.Context(), req.PaymentMethod)
	if err != nil {
		s.respondCheckoutError(w, err)
		return
	}

	decision, err := e.router.Route(order.OrderID, order.PaymentURL, func() {
		s.logger.Info("Order settled without payment", zap.String("order_id", order.OrderID))
	})
	if err != nil {
		s.logger.Error("Order created but payment url is unusable",
			zap.String("order_id", order.OrderID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "invalid_payment_url", "The payment page could not be opened. Please contact support.")
		return
	}

	respondJSON(w, http.StatusCreated, OrderResponse{
		Order:      *order,
		Decision:   decision,
		Directives: e.bridge.Directives(),
	})
}

func (s *Server) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, fallback := s.deps.Methods.List(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"methods":  methods,
		"fallback": fallback,
	})
}

// lookup finds a session of the caller. Sessions of other users look missing.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	e, ok := s.sessions.get(chi.URLParam(r, "session_id"))
	if !ok || !e.ownedBy(bearerToken(r)) {
		respondError(w, http.StatusNotFound, "not_found", "checkout session not found")
		return nil, false
	}
	return e, true
}

func sessionView(session *checkout.Session) SessionResponse {
	return SessionResponse{
		ID:        session.ID(),
		Mode:      session.Mode(),
		Breakdown: session.Breakdown(),
		Promo:     session.Promo(),
		Cart:      session.Cart(),
		Product:   session.Product(),
		Order:     session.Order(),
	}
}

// respondCheckoutError maps checkout failures onto HTTP with a readable message
func (s *Server) respondCheckoutError(w http.ResponseWriter, err error) {
	msg := checkout.UserMessage(err)

	var userErr *checkout.UserError
	switch {
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		respondError(w, http.StatusConflict, "submission_in_flight", msg)
	case errors.Is(err, checkout.ErrAlreadySubmitted):
		respondError(w, http.StatusConflict, "already_submitted", msg)
	case errors.Is(err, checkout.ErrSessionClosed):
		respondError(w, http.StatusGone, "session_closed", msg)
	case errors.Is(err, checkout.ErrInvalidQuantity), errors.Is(err, checkout.ErrNoPaymentMethod):
		respondError(w, http.StatusBadRequest, "invalid_request", msg)
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", msg)
	case errors.As(err, &userErr):
		switch userErr.Kind {
		case checkout.KindValidation:
			respondError(w, http.StatusUnprocessableEntity, "validation_failed", msg)
		case checkout.KindNetwork:
			respondError(w, http.StatusServiceUnavailable, "backend_unavailable", msg)
		default:
			respondError(w, http.StatusBadGateway, "order_failed", msg)
		}
	default:
		s.logger.Error("Unexpected checkout error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", msg)
	}
}
