package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/gateway"
	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

type testAPI struct {
	server        *Server
	handler       http.Handler
	backend       *stubBackend
	confirmations *fakeConfirmations
}

func newTestAPI(t *testing.T, embedded bool) *testAPI {
	t.Helper()
	backend := newStubBackend()
	confirmations := newFakeConfirmations()
	s := NewServer(Deps{
		BackendFor: func(token string) checkout.Backend {
			backend.mu.Lock()
			backend.tokens = append(backend.tokens, token)
			backend.mu.Unlock()
			return backend
		},
		Methods:       stubMethods{},
		Confirmations: confirmations,
		Router: gateway.Options{
			AppOrigin:  "https://shop.example.com",
			FormPath:   "/payment/form",
			CloseGrace: time.Second,
		},
		Embedded: embedded,
		Logger:   zaptest.NewLogger(t),
	})
	s.now = func() time.Time { return testNow }
	return &testAPI{server: s, handler: s.Routes(), backend: backend, confirmations: confirmations}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.doAs(t, "user-token", method, path, body)
}

// doAs sends the request with the given bearer token, or none when token is empty
func (a *testAPI) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) newCartSession(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{Mode: checkout.ModeCart})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionResponse](t, rec).ID
}

func TestCreateSession_Cart(t *testing.T) {
	a := newTestAPI(t, false)

	rec := a.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{Mode: checkout.ModeCart})
	require.Equal(t, http.StatusCreated, rec.Code)

	view := decode[SessionResponse](t, rec)
	assert.NotEmpty(t, view.ID)
	assert.True(t, view.Breakdown.Total.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, []string{"user-token"}, a.backend.tokens)
}

func TestSessions_RequireBearerToken(t *testing.T) {
	a := newTestAPI(t, false)

	rec := a.doAs(t, "", http.MethodPost, "/v1/sessions", CreateSessionRequest{Mode: checkout.ModeCart})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Empty(t, a.backend.tokens, "no backend client is built for anonymous requests")

	id := a.newCartSession(t)
	rec = a.doAs(t, "", http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, a.backend.orderCalls)

	// payment methods are public and served with the service token
	assert.Equal(t, http.StatusOK, a.doAs(t, "", http.MethodGet, "/v1/payment-methods", nil).Code)
}

func TestSessions_HiddenFromOtherUsers(t *testing.T) {
	a := newTestAPI(t, false)
	id := a.newCartSession(t)

	assert.Equal(t, http.StatusNotFound, a.doAs(t, "someone-else", http.MethodGet, "/v1/sessions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.doAs(t, "someone-else", http.MethodDelete, "/v1/sessions/"+id, nil).Code)
	rec := a.doAs(t, "someone-else", http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, a.backend.orderCalls)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/v1/sessions/"+id, nil).Code)
}

func TestCreateSession_ProductValidation(t *testing.T) {
	a := newTestAPI(t, false)

	rec := a.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{Mode: checkout.ModeProduct, Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{Mode: checkout.ModeProduct, ProductID: "sku-9"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Quantity must be at least 1.")

	rec = a.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{Mode: "bundle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductSession_QuantityAndPromo(t *testing.T) {
	a := newTestAPI(t, false)

	rec := a.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{
		Mode:      checkout.ModeProduct,
		ProductID: "sku-9",
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(450),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).ID

	rec = a.do(t, http.MethodPut, "/v1/sessions/"+id+"/quantity", SetQuantityRequest{Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SessionResponse](t, rec).Breakdown.Total.Equal(decimal.NewFromInt(900)))

	rec = a.do(t, http.MethodPost, "/v1/sessions/"+id+"/promo", PromoRequest{Code: "HALF"})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[SessionResponse](t, rec)
	assert.True(t, view.Breakdown.Total.Equal(decimal.NewFromInt(450)))
	require.NotNil(t, view.Promo)
	assert.Equal(t, "HALF", view.Promo.Code)
}

func TestCartPromo_ApplyRejectRemove(t *testing.T) {
	a := newTestAPI(t, false)
	id := a.newCartSession(t)

	rec := a.do(t, http.MethodPost, "/v1/sessions/"+id+"/promo", PromoRequest{Code: "SAVE20"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SessionResponse](t, rec).Breakdown.Total.Equal(decimal.NewFromInt(800)))

	rec = a.do(t, http.MethodPost, "/v1/sessions/"+id+"/promo", PromoRequest{Code: "BOGUS"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Promo code BOGUS is not valid", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SessionResponse](t, rec).Breakdown.Total.Equal(decimal.NewFromInt(1000)),
		"a rejected code must not leave the old discount behind")

	for i := 0; i < 2; i++ {
		rec = a.do(t, http.MethodDelete, "/v1/sessions/"+id+"/promo", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[SessionResponse](t, rec).Breakdown.Total.Equal(decimal.NewFromInt(1000)))
	}
}

func TestCreateOrder_HostedFormEmbedded(t *testing.T) {
	a := newTestAPI(t, true)
	a.backend.order = models.OrderResult{
		OrderID:    "ord-7",
		PaymentURL: "https://shop.example.com/payment/form?order_id=ord-7&card=2200",
	}
	id := a.newCartSession(t)

	rec := a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "sbp"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[OrderResponse](t, rec)
	assert.Equal(t, "ord-7", resp.Order.OrderID)
	assert.Equal(t, gateway.KindHostedForm, resp.Decision.Kind)
	assert.Equal(t, []gateway.Directive{
		{Action: gateway.ActionNavigate, Target: "/payment/form?order_id=ord-7&card=2200"},
	}, resp.Directives)

	rec = a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "sbp"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_submitted", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, 1, a.backend.orderCalls)
}

func TestCreateOrder_ExternalGateway(t *testing.T) {
	a := newTestAPI(t, true)
	a.backend.order = models.OrderResult{OrderID: "ord-8", PaymentURL: "https://pay.gateway.example/session/1"}
	id := a.newCartSession(t)

	rec := a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[OrderResponse](t, rec)
	assert.Equal(t, gateway.KindExternal, resp.Decision.Kind)
	assert.Equal(t, []gateway.Directive{
		{Action: gateway.ActionOpenExternal, Target: "https://pay.gateway.example/session/1"},
		{Action: gateway.ActionClose, DelayMilli: 1000},
	}, resp.Directives)
}

func TestCreateOrder_NoPaymentRequired(t *testing.T) {
	a := newTestAPI(t, false)
	id := a.newCartSession(t)

	rec := a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[OrderResponse](t, rec)
	assert.Equal(t, gateway.KindNoPayment, resp.Decision.Kind)
	assert.Equal(t, []gateway.Directive{{Action: gateway.ActionHaptic, Target: "success"}}, resp.Directives)
}

func TestCreateOrder_FailureKeepsSessionUsable(t *testing.T) {
	a := newTestAPI(t, false)
	a.backend.createErr = &storefront.APIError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}
	id := a.newCartSession(t)

	rec := a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a.backend.createErr = nil
	rec = a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateOrder_MissingPaymentMethod(t *testing.T) {
	a := newTestAPI(t, false)
	id := a.newCartSession(t)

	rec := a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Choose a payment method.", decode[ErrorResponse](t, rec).Error)
}

func TestCloseSession(t *testing.T) {
	a := newTestAPI(t, false)
	id := a.newCartSession(t)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/v1/sessions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/sessions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, "/v1/sessions/"+id, nil).Code)
}

func TestSweepClosesIdleSessions(t *testing.T) {
	a := newTestAPI(t, false)
	now := testNow
	a.server.sessions.now = func() time.Time { return now }
	a.newCartSession(t)
	require.Equal(t, 1, a.server.sessions.count())

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 0, a.server.sessions.sweep(time.Hour))
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, a.server.sessions.sweep(time.Hour))
	assert.Equal(t, 0, a.server.sessions.count())
}

func TestSweepReleasesDispatchGuard(t *testing.T) {
	a := newTestAPI(t, false)
	now := testNow
	a.server.sessions.now = func() time.Time { return now }
	id := a.newCartSession(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/sessions/"+id+"/orders", CreateOrderRequest{PaymentMethod: "card"}).Code)

	guard := a.server.deps.Guard
	held, err := guard.Acquire(context.Background(), id)
	require.NoError(t, err)
	require.False(t, held)

	now = now.Add(2 * time.Hour)
	require.Equal(t, 1, a.server.sessions.sweep(time.Hour))

	held, err = guard.Acquire(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, held, "sweeping a session frees its guard key")
}

func TestListPaymentMethods(t *testing.T) {
	a := newTestAPI(t, false)
	rec := a.do(t, http.MethodGet, "/v1/payment-methods", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Methods  []models.PaymentMethod `json:"methods"`
		Fallback bool                   `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Fallback)
	assert.Len(t, body.Methods, 1)
}

func TestStartHosted(t *testing.T) {
	a := newTestAPI(t, false)

	rec := a.do(t, http.MethodPost, "/v1/confirmations/hosted", HostedStartRequest{
		FormURL: "https://shop.example.com/payment/form?order_id=ord-1&hash=h1&bank=Bank&date=2026-03-01T12:15:00Z",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[StartResponse](t, rec)
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.False(t, resp.CanOpenBankApp)

	require.Len(t, a.confirmations.started, 1)
	req := a.confirmations.started[0]
	assert.Equal(t, models.FlowHostedForm, req.Flow)
	assert.Equal(t, "h1", req.Hash)
	require.NotNil(t, req.ExpiresAt)
	assert.Equal(t, testNow.Add(15*time.Minute), req.ExpiresAt.UTC())
	assert.Equal(t, models.DefaultSettings(models.FlowHostedForm), req.Settings)

	rec = a.do(t, http.MethodPost, "/v1/confirmations/hosted", HostedStartRequest{Query: "order_id=ord-1&card=2200"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[StartResponse](t, rec).AlreadyRunning)
}

func TestStartHosted_MissingOrderID(t *testing.T) {
	a := newTestAPI(t, false)
	rec := a.do(t, http.MethodPost, "/v1/confirmations/hosted", HostedStartRequest{Query: "card=2200"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, a.confirmations.started)
}

func TestStartResult_Hints(t *testing.T) {
	a := newTestAPI(t, false)

	for orderID, status := range map[string]string{"ord-a": "success", "ord-b": "FAILED", "ord-c": ""} {
		rec := a.do(t, http.MethodPost, "/v1/confirmations/result", ResultStartRequest{OrderID: orderID, Status: status})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	hints := map[string]models.ResultHint{}
	for _, req := range a.confirmations.started {
		assert.Equal(t, models.FlowRedirectResult, req.Flow)
		hints[req.OrderID] = req.Hint
	}
	assert.Equal(t, map[string]models.ResultHint{
		"ord-a": models.HintSuccess,
		"ord-b": models.HintFailed,
		"ord-c": models.HintNone,
	}, hints)

	rec := a.do(t, http.MethodPost, "/v1/confirmations/result", ResultStartRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStart_BackendUnavailable(t *testing.T) {
	a := newTestAPI(t, false)
	a.confirmations.startErr = errors.New("temporal down")

	rec := a.do(t, http.MethodPost, "/v1/confirmations/result", ResultStartRequest{OrderID: "ord-1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSignalConfirmation(t *testing.T) {
	a := newTestAPI(t, false)
	rec := a.do(t, http.MethodPost, "/v1/confirmations/result", ResultStartRequest{OrderID: "ord-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	for _, action := range []string{"paid", "confirm", "retry", "teardown"} {
		assert.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/v1/confirmations/ord-1/"+action, nil).Code)
	}
	assert.Equal(t, []string{models.SignalPaid, models.SignalConfirm, models.SignalRetry, models.SignalTeardown}, a.confirmations.signals)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/v1/confirmations/ord-1/refund", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/v1/confirmations/ord-404/paid", nil).Code)
}

func TestGetConfirmation_RecomputesCountdown(t *testing.T) {
	a := newTestAPI(t, false)
	rec := a.do(t, http.MethodPost, "/v1/confirmations/result", ResultStartRequest{OrderID: "ord-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	expiresAt := testNow.Add(90*time.Second + 200*time.Millisecond)
	a.confirmations.snapshot = &models.ConfirmationSnapshot{
		OrderID:          "ord-1",
		State:            models.StateConfirming,
		SecondsRemaining: 600,
		ExpiresAt:        &expiresAt,
	}

	rec = a.do(t, http.MethodGet, "/v1/confirmations/ord-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decode[models.ConfirmationSnapshot](t, rec)
	assert.Equal(t, 91, snapshot.SecondsRemaining)
	assert.Equal(t, models.StateConfirming, snapshot.State)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/confirmations/ord-2", nil).Code)
}

func TestSecondsRemaining(t *testing.T) {
	past := testNow.Add(-time.Second)
	assert.Equal(t, 0, secondsRemaining(&models.ConfirmationSnapshot{State: models.StateConfirming}, testNow))
	assert.Equal(t, 0, secondsRemaining(&models.ConfirmationSnapshot{State: models.StateConfirming, ExpiresAt: &past}, testNow))

	future := testNow.Add(time.Minute)
	assert.Equal(t, 60, secondsRemaining(&models.ConfirmationSnapshot{State: models.StateAwaitingUserAction, ExpiresAt: &future}, testNow))
	assert.Equal(t, 0, secondsRemaining(&models.ConfirmationSnapshot{State: models.StateConfirmed, ExpiresAt: &future}, testNow))
}
