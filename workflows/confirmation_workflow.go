package workflows

import (
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aswathylr-builds/storefront-checkout/confirmation"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

// RetryPolicy configuration
type RetryPolicy = temporal.RetryPolicy

const (
	ConfirmationWorkflowName = "ConfirmationWorkflow"

	FetchOrderStatusActivity           = "FetchOrderStatus"
	ConfirmPaymentActivity             = "ConfirmPayment"
	NotifyConfirmationFinishedActivity = "NotifyConfirmationFinished"
)

const msgManualConfirmUnavailable = "Could not reach the store to confirm the payment. Try again in a moment."

// ConfirmationWorkflow drives the confirmation state machine of one order.
// Polls, the expiry deadline and the post-confirmation redirect are durable
// timers; user actions arrive as signals. Every pending timer and activity
// belongs to one cancellation scope that is cancelled when the machine is done.
// A long wait continues as new every PollsPerRun polls with the machine state
// carried in req.Resume.
func ConfirmationWorkflow(ctx workflow.Context, req models.ConfirmationRequest) (*models.ConfirmationSnapshot, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Confirmation workflow started", "order_id", req.OrderID, "flow", req.Flow)

	machine := confirmation.New(req)

	err := workflow.SetQueryHandler(ctx, models.QueryState, func() (models.ConfirmationSnapshot, error) {
		return machine.Snapshot(workflow.Now(ctx)), nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
		return nil, err
	}

	// one network call per activity; a failed poll is retried by the next tick
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout:    10 * time.Second,
		ScheduleToStartTimeout: 5 * time.Second,
		RetryPolicy: &RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	scope, cancelAll := workflow.WithCancel(workflow.WithActivityOptions(ctx, activityOptions))

	d := &driver{
		ctx:     scope,
		machine: machine,
		req:     req,
		logger:  logger,
	}

	paidCh := workflow.GetSignalChannel(ctx, models.SignalPaid)
	retryCh := workflow.GetSignalChannel(ctx, models.SignalRetry)
	confirmCh := workflow.GetSignalChannel(ctx, models.SignalConfirm)
	teardownCh := workflow.GetSignalChannel(ctx, models.SignalTeardown)

	d.apply(confirmation.Started{At: workflow.Now(ctx)})

	var deadline workflow.Future
	if expiresAt := machine.ExpiresAt(); expiresAt != nil && !machine.Done() {
		deadline = workflow.NewTimer(scope, expiresAt.Sub(workflow.Now(ctx)))
	}

	for !machine.Done() {
		selector := workflow.NewSelector(ctx)

		selector.AddReceive(paidCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			logger.Info("Paid signal received", "order_id", req.OrderID)
			d.apply(confirmation.UserPaid{At: workflow.Now(ctx)})
		})
		selector.AddReceive(retryCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			logger.Info("Retry signal received", "order_id", req.OrderID)
			d.apply(confirmation.RetryRequested{At: workflow.Now(ctx)})
		})
		selector.AddReceive(confirmCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			logger.Info("Manual confirmation requested", "order_id", req.OrderID)
			d.startManualConfirm()
		})
		selector.AddReceive(teardownCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			logger.Info("Teardown signal received", "order_id", req.OrderID)
			d.apply(confirmation.Teardown{At: workflow.Now(ctx)})
		})

		if deadline != nil {
			selector.AddFuture(deadline, func(f workflow.Future) {
				deadline = nil
				d.apply(confirmation.Tick{At: workflow.Now(ctx)})
			})
		}
		if d.pollTimer != nil {
			selector.AddFuture(d.pollTimer, func(f workflow.Future) {
				d.pollTimer = nil
				if err := f.Get(ctx, nil); err != nil {
					return
				}
				d.poll()
			})
		}
		if d.pollResult != nil {
			selector.AddFuture(d.pollResult, func(f workflow.Future) {
				d.pollResult = nil
				var status models.PaymentStatus
				if err := f.Get(ctx, &status); err != nil {
					logger.Warn("Order status poll failed", "order_id", req.OrderID, "error", err)
					d.apply(confirmation.PollFailed{At: workflow.Now(ctx), Reason: err.Error()})
					return
				}
				d.apply(confirmation.StatusPolled{At: workflow.Now(ctx), Status: status})
			})
		}
		if d.confirmResult != nil {
			selector.AddFuture(d.confirmResult, func(f workflow.Future) {
				d.confirmResult = nil
				d.finishManualConfirm(f)
			})
		}
		if d.redirectTimer != nil {
			selector.AddFuture(d.redirectTimer, func(f workflow.Future) {
				d.redirectTimer = nil
				d.apply(confirmation.RedirectDue{At: workflow.Now(ctx)})
			})
		}

		selector.Select(ctx)

		if !machine.Done() && d.canContinueAsNew(ctx) && signalsDrained(paidCh, retryCh, confirmCh, teardownCh) {
			cancelAll()
			next := req
			resume := machine.Checkpoint()
			next.Resume = &resume
			logger.Info("Confirmation continuing as new", "order_id", req.OrderID, "state", resume.State, "polls", resume.Polls)
			return nil, workflow.NewContinueAsNewError(ctx, ConfirmationWorkflowName, next)
		}
	}
	cancelAll()

	snapshot := machine.Snapshot(workflow.Now(ctx))
	logger.Info("Confirmation workflow finished", "order_id", req.OrderID, "state", snapshot.State, "polls", snapshot.Polls)

	// the outcome is already decided; a failed notification does not change it
	notifyCtx, _ := workflow.NewDisconnectedContext(ctx)
	notifyCtx = workflow.WithActivityOptions(notifyCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
	if err := workflow.ExecuteActivity(notifyCtx, NotifyConfirmationFinishedActivity, snapshot).Get(notifyCtx, nil); err != nil {
		logger.Warn("Confirmation notification failed", "order_id", req.OrderID, "error", err)
	}

	return &snapshot, nil
}

// driver carries out machine effects with workflow primitives
type driver struct {
	ctx     workflow.Context
	machine *confirmation.Machine
	req     models.ConfirmationRequest
	logger  log.Logger

	pollCtx       workflow.Context
	stopPolls     workflow.CancelFunc
	pollTimer     workflow.Future
	pollResult    workflow.Future
	confirmResult workflow.Future
	redirectTimer workflow.Future

	// polls issued by this run
	runPolls int
}

// canContinueAsNew reports whether this run has done its share of polls and
// nothing is in flight that the next run could not redo
func (d *driver) canContinueAsNew(ctx workflow.Context) bool {
	if d.pollResult != nil || d.confirmResult != nil || d.redirectTimer != nil {
		return false
	}
	perRun := d.machine.Settings().PollsPerRun
	if perRun > 0 && d.runPolls >= perRun {
		return true
	}
	return workflow.GetInfo(ctx).GetContinueAsNewSuggested()
}

func signalsDrained(channels ...workflow.ReceiveChannel) bool {
	for _, ch := range channels {
		if ch.Len() > 0 {
			return false
		}
	}
	return true
}

func (d *driver) apply(ev confirmation.Event) {
	tr := d.machine.Apply(ev)
	if tr.Changed() {
		d.logger.Info("Confirmation state changed", "order_id", d.req.OrderID, "from", tr.From, "to", tr.To)
	}
	for _, effect := range tr.Effects {
		switch effect.Kind {
		case confirmation.SchedulePoll:
			d.schedulePoll(effect.After)
		case confirmation.StopPolling:
			d.stopPolling()
		case confirmation.ScheduleRedirect:
			d.redirectTimer = workflow.NewTimer(d.ctx, effect.After)
		case confirmation.NavigateOrders:
			d.logger.Info("Redirecting to orders", "order_id", d.req.OrderID)
		}
	}
}

func (d *driver) schedulePoll(after time.Duration) {
	if d.pollCtx == nil {
		d.pollCtx, d.stopPolls = workflow.WithCancel(d.ctx)
	}
	if after <= 0 {
		d.poll()
		return
	}
	d.pollTimer = workflow.NewTimer(d.pollCtx, after)
}

func (d *driver) poll() {
	if !d.machine.Polling() || d.pollCtx == nil {
		return
	}
	d.runPolls++
	d.pollResult = workflow.ExecuteActivity(d.pollCtx, FetchOrderStatusActivity, d.req.OrderID)
}

func (d *driver) stopPolling() {
	if d.stopPolls != nil {
		d.stopPolls()
	}
	d.pollCtx, d.stopPolls = nil, nil
	d.pollTimer, d.pollResult = nil, nil
}

func (d *driver) startManualConfirm() {
	if d.confirmResult != nil {
		d.logger.Info("Manual confirmation already in flight", "order_id", d.req.OrderID)
		return
	}
	if d.machine.State() != models.StateConfirming || d.machine.Closed() {
		d.logger.Info("Manual confirmation ignored", "order_id", d.req.OrderID, "state", d.machine.State())
		return
	}
	d.confirmResult = workflow.ExecuteActivity(d.ctx, ConfirmPaymentActivity, models.ManualConfirmRequest{
		OrderID: d.req.OrderID,
		Hash:    d.req.Hash,
	})
}

func (d *driver) finishManualConfirm(f workflow.Future) {
	now := workflow.Now(d.ctx)
	var resp models.ManualConfirmResponse
	if err := f.Get(d.ctx, &resp); err != nil {
		d.logger.Warn("Manual confirmation failed", "order_id", d.req.OrderID, "error", err)
		d.apply(confirmation.ManualConfirmFailed{At: now, Message: msgManualConfirmUnavailable})
		return
	}
	if resp.Confirmed() {
		d.apply(confirmation.ManualConfirmed{At: now, Status: resp.Status})
		return
	}
	d.apply(confirmation.ManualConfirmFailed{At: now, Message: resp.Message})
}
