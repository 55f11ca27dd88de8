package api

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/workflows"
)

var (
	ErrConfirmationRunning  = errors.New("confirmation already started for this order")
	ErrConfirmationNotFound = errors.New("confirmation not found")
)

// Confirmations starts and drives confirmation workflows
type Confirmations interface {
	Start(ctx context.Context, req models.ConfirmationRequest) error
	Signal(ctx context.Context, orderID, signal string) error
	State(ctx context.Context, orderID string) (*models.ConfirmationSnapshot, error)
}

// TemporalConfirmations runs one workflow per order on Temporal
type TemporalConfirmations struct {
	client    client.Client
	taskQueue string
}

func NewTemporalConfirmations(c client.Client, taskQueue string) *TemporalConfirmations {
	return &TemporalConfirmations{client: c, taskQueue: taskQueue}
}

// Start returns ErrConfirmationRunning when the order already has a workflow
func (t *TemporalConfirmations) Start(ctx context.Context, req models.ConfirmationRequest) error {
	options := client.StartWorkflowOptions{
		ID:                                       models.ConfirmationWorkflowID(req.OrderID),
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	_, err := t.client.ExecuteWorkflow(ctx, options, workflows.ConfirmationWorkflowName, req)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return ErrConfirmationRunning
		}
		return fmt.Errorf("failed to start confirmation: %w", err)
	}
	return nil
}

func (t *TemporalConfirmations) Signal(ctx context.Context, orderID, signal string) error {
	err := t.client.SignalWorkflow(ctx, models.ConfirmationWorkflowID(orderID), "", signal, nil)
	if err != nil {
		if isNotFound(err) {
			return ErrConfirmationNotFound
		}
		return fmt.Errorf("failed to signal confirmation: %w", err)
	}
	return nil
}

func (t *TemporalConfirmations) State(ctx context.Context, orderID string) (*models.ConfirmationSnapshot, error) {
	resp, err := t.client.QueryWorkflow(ctx, models.ConfirmationWorkflowID(orderID), "", models.QueryState)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrConfirmationNotFound
		}
		return nil, fmt.Errorf("failed to query confirmation: %w", err)
	}

	var snapshot models.ConfirmationSnapshot
	if err := resp.Get(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode confirmation state: %w", err)
	}
	return &snapshot, nil
}

func isNotFound(err error) bool {
	var notFound *serviceerror.NotFound
	return errors.As(err, &notFound)
}
