package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/aswathylr-builds/storefront-checkout/metrics"
	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

// ErrTypeOrderNotFound is the application error type of a status poll for an unknown order
const ErrTypeOrderNotFound = "OrderNotFound"

// OrderBackend is the part of the storefront API the confirmation needs
type OrderBackend interface {
	OrderStatus(ctx context.Context, orderID string) (*models.OrderStatusResponse, error)
	ConfirmPayment(ctx context.Context, req models.ManualConfirmRequest) (*models.ManualConfirmResponse, error)
}

// ConfirmationActivities contains the network calls of payment confirmation
type ConfirmationActivities struct {
	Backend OrderBackend
	Metrics *metrics.Metrics
}

// NewConfirmationActivities creates a new instance of ConfirmationActivities
func NewConfirmationActivities(backend OrderBackend, m *metrics.Metrics) *ConfirmationActivities {
	return &ConfirmationActivities{
		Backend: backend,
		Metrics: m,
	}
}

// FetchOrderStatus reads the order status once. The workflow schedules it
// without retries; a failure is a missed poll.
func (a *ConfirmationActivities) FetchOrderStatus(ctx context.Context, orderID string) (models.PaymentStatus, error) {
	start := time.Now()
	resp, err := a.Backend.OrderStatus(ctx, orderID)
	a.Metrics.ObserveBackend("order_status", float64(time.Since(start).Milliseconds()))
	if err != nil {
		a.Metrics.StatusPolled("error")
		if activity.IsActivity(ctx) {
			activity.GetLogger(ctx).Warn("Order status poll failed", "order_id", orderID, "error", err)
		}
		if storefront.IsNotFound(err) {
			return "", temporal.NewNonRetryableApplicationError("order not found", ErrTypeOrderNotFound, err)
		}
		return "", fmt.Errorf("failed to fetch order status: %w", err)
	}

	status := resp.Status
	a.Metrics.StatusPolled(status.Classify().String())
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Debug("Order status polled", "order_id", orderID, "status", status)
	}
	return status, nil
}

// ConfirmPayment is the one-shot manual confirmation. A rejection by the
// backend is returned as an unconfirmed response, not as an error, so its
// message reaches the user.
func (a *ConfirmationActivities) ConfirmPayment(ctx context.Context, req models.ManualConfirmRequest) (*models.ManualConfirmResponse, error) {
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info("Confirming payment manually", "order_id", req.OrderID)
	}

	start := time.Now()
	resp, err := a.Backend.ConfirmPayment(ctx, req)
	a.Metrics.ObserveBackend("confirm_payment", float64(time.Since(start).Milliseconds()))
	if err != nil {
		var apiErr *storefront.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			a.Metrics.ManualConfirmation("rejected")
			message := apiErr.Message
			if message == "" {
				message = "Payment could not be confirmed."
			}
			return &models.ManualConfirmResponse{Success: false, Message: message}, nil
		}
		a.Metrics.ManualConfirmation("error")
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}

	if resp.Confirmed() {
		a.Metrics.ManualConfirmation("confirmed")
	} else {
		a.Metrics.ManualConfirmation("pending")
	}
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info("Manual confirmation answered", "order_id", req.OrderID, "confirmed", resp.Confirmed(), "status", resp.Status)
	}
	return resp, nil
}

// NotifyConfirmationFinished records the outcome of a finished confirmation
func (a *ConfirmationActivities) NotifyConfirmationFinished(ctx context.Context, snapshot models.ConfirmationSnapshot) error {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Confirmation finished",
			"order_id", snapshot.OrderID,
			"flow", snapshot.Flow,
			"state", snapshot.State,
			"polls", snapshot.Polls,
			"last_status", snapshot.LastStatus)
	}
	a.Metrics.ConfirmationFinished(string(snapshot.Flow), string(snapshot.State))
	return nil
}
