package api

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

// HostedStartRequest carries the hosted form URL, or just its query string
type HostedStartRequest struct {
	FormURL string `json:"form_url,omitempty"`
	Query   string `json:"query,omitempty"`
}

// ResultStartRequest is sent by the page an external gateway redirects back to
type ResultStartRequest struct {
	OrderID string `json:"order_id"`
	Hash    string `json:"hash,omitempty"`
	// Status is the optional explicit outcome flag of the result URL
	Status string `json:"status,omitempty"`
}

// StartResponse is returned when a confirmation starts or was already running
type StartResponse struct {
	OrderID        string                    `json:"order_id"`
	Flow           models.Flow               `json:"flow"`
	AlreadyRunning bool                      `json:"already_running,omitempty"`
	Requisites     *models.PaymentRequisites `json:"requisites,omitempty"`
	CanOpenBankApp bool                      `json:"can_open_bank_app"`
}

var signalActions = map[string]string{
	"paid":     models.SignalPaid,
	"retry":    models.SignalRetry,
	"confirm":  models.SignalConfirm,
	"teardown": models.SignalTeardown,
}

func (s *Server) startHosted(w http.ResponseWriter, r *http.Request) {
	var req HostedStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	raw := req.Query
	if req.FormURL != "" {
		u, err := url.Parse(req.FormURL)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_form_url", "form_url is not a valid URL")
			return
		}
		raw = u.RawQuery
	}
	query, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form_url", "payment form query is malformed")
		return
	}
	requisites, err := models.ParseRequisites(query)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_requisites", err.Error())
		return
	}

	s.start(w, r, models.ConfirmationRequest{
		OrderID:    requisites.OrderID,
		Hash:       requisites.Hash,
		Flow:       models.FlowHostedForm,
		ExpiresAt:  requisites.ExpiresAt,
		Requisites: requisites,
		Settings:   s.deps.Settings(models.FlowHostedForm),
	})
}

func (s *Server) startResult(w http.ResponseWriter, r *http.Request) {
	var req ResultStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id is required")
		return
	}

	s.start(w, r, models.ConfirmationRequest{
		OrderID:  strings.TrimSpace(req.OrderID),
		Hash:     req.Hash,
		Flow:     models.FlowRedirectResult,
		Hint:     parseHint(req.Status),
		Settings: s.deps.Settings(models.FlowRedirectResult),
	})
}

// start treats a confirmation that is already running as success, so reloading the page is harmless
func (s *Server) start(w http.ResponseWriter, r *http.Request, req models.ConfirmationRequest) {
	resp := StartResponse{
		OrderID:        req.OrderID,
		Flow:           req.Flow,
		Requisites:     req.Requisites,
		CanOpenBankApp: req.Requisites != nil && req.Requisites.CanOpenBankApp(),
	}

	err := s.deps.Confirmations.Start(r.Context(), req)
	switch {
	case errors.Is(err, ErrConfirmationRunning):
		resp.AlreadyRunning = true
		respondJSON(w, http.StatusOK, resp)
	case err != nil:
		s.logger.Error("Failed to start confirmation", zap.String("order_id", req.OrderID), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "confirmation_unavailable", "Payment confirmation is unavailable. Please try again.")
	default:
		s.logger.Info("Confirmation started",
			zap.String("order_id", req.OrderID),
			zap.String("flow", string(req.Flow)),
			zap.String("hint", string(req.Hint)))
		respondJSON(w, http.StatusAccepted, resp)
	}
}

func (s *Server) getConfirmation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	snapshot, err := s.deps.Confirmations.State(r.Context(), orderID)
	if err != nil {
		s.respondConfirmationError(w, orderID, err)
		return
	}
	snapshot.SecondsRemaining = secondsRemaining(snapshot, s.now())
	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) signalConfirmation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	signal, ok := signalActions[chi.URLParam(r, "action")]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_action", "action must be paid, retry, confirm or teardown")
		return
	}

	if err := s.deps.Confirmations.Signal(r.Context(), orderID, signal); err != nil {
		s.respondConfirmationError(w, orderID, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) respondConfirmationError(w http.ResponseWriter, orderID string, err error) {
	if errors.Is(err, ErrConfirmationNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no payment confirmation for this order")
		return
	}
	s.logger.Error("Confirmation request failed", zap.String("order_id", orderID), zap.Error(err))
	respondError(w, http.StatusServiceUnavailable, "confirmation_unavailable", "Payment confirmation is unavailable. Please try again.")
}

// parseHint reads the outcome flag of a gateway result URL. Anything unrecognised means no hint.
func parseHint(status string) models.ResultHint {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "succeeded", "ok":
		return models.HintSuccess
	case "failed", "fail", "failure", "error":
		return models.HintFailed
	}
	return models.HintNone
}

// secondsRemaining recomputes the countdown with the wall clock; the workflow
// answers queries with the time of its last event
func secondsRemaining(snapshot *models.ConfirmationSnapshot, now time.Time) int {
	if snapshot.ExpiresAt == nil || snapshot.State.IsTerminal() {
		return 0
	}
	left := snapshot.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
