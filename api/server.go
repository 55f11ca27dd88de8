// Package api is the HTTP surface the storefront front end talks to.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/gateway"
	"github.com/aswathylr-builds/storefront-checkout/metrics"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

// MethodLister serves the payment methods, usually *checkout.MethodCatalog
type MethodLister interface {
	List(ctx context.Context) ([]models.PaymentMethod, bool)
}

// Deps are the collaborators of the API
type Deps struct {
	// BackendFor returns the storefront client acting for the bearer token of a request
	BackendFor    func(token string) checkout.Backend
	Methods       MethodLister
	Guard         checkout.DispatchGuard
	Confirmations Confirmations
	Router        gateway.Options
	Embedded      bool
	Settings      func(flow models.Flow) models.ConfirmationSettings
	Timeout       time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Server holds the handlers and the live checkout sessions
type Server struct {
	deps     Deps
	sessions *sessionStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Guard == nil {
		deps.Guard = checkout.NewMemoryGuard()
	}
	if deps.Timeout == 0 {
		deps.Timeout = 30 * time.Second
	}
	if deps.Settings == nil {
		deps.Settings = models.DefaultSettings
	}
	return &Server{
		deps:     deps,
		sessions: newSessionStore(),
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.deps.Timeout))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/payment-methods", s.listPaymentMethods)

		r.Route("/sessions", func(r chi.Router) {
			r.Use(requireBearer)
			r.Post("/", s.createSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.closeSession)
				r.Put("/quantity", s.setQuantity)
				r.Post("/promo", s.applyPromo)
				r.Delete("/promo", s.removePromo)
				r.Post("/orders", s.createOrder)
			})
		})

		r.Route("/confirmations", func(r chi.Router) {
			r.Post("/hosted", s.startHosted)
			r.Post("/result", s.startResult)
			r.Get("/{order_id}", s.getConfirmation)
			r.Post("/{order_id}/{action}", s.signalConfirmation)
		})
	})
	return r
}

// SweepSessions closes checkouts nobody touched for idle, until ctx is done
func (s *Server) SweepSessions(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(idle); n > 0 {
				s.logger.Info("Closed idle checkout sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// requireBearer rejects requests that carry no user token. Checkouts always
// act for the user; the service token is reserved for the worker.
func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, http.StatusUnauthorized, "unauthorized", "sign in to check out")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
