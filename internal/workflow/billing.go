package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/metering/internal/activity"
	"github.com/edvin/metering/internal/core"
)

// AggregateUsageWorkflow is a cron workflow that folds pending events into
// daily aggregates.
func AggregateUsageWorkflow(ctx workflow.Context, params activity.AggregateUsageParams) (core.DrainResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res core.DrainResult
	err := workflow.ExecuteActivity(ctx, "AggregateUsageBatch", params).Get(ctx, &res)
	return res, err
}

// InvoiceRunSummary counts the outcome of one invoicing run.
type InvoiceRunSummary struct {
	Customers int
	Invoiced  int
	Skipped   int
	Failed    int
}

// GenerateInvoicesWorkflow is the monthly cron workflow. It bills every
// customer of an active tenant that has unbilled usage, one child workflow
// per customer. A failing customer does not stop the others.
func GenerateInvoicesWorkflow(ctx workflow.Context) (InvoiceRunSummary, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var summary InvoiceRunSummary
	var customers []core.BillableCustomer
	if err := workflow.ExecuteActivity(ctx, "ListBillableCustomers").Get(ctx, &customers); err != nil {
		return summary, err
	}
	summary.Customers = len(customers)
	logger.Info("found billable customers", "count", len(customers))

	// Child ids carry the run's start date and run id, so a same-day rerun
	// starts fresh children instead of colliding with this run's.
	period := workflow.Now(ctx).UTC().Format("2006-01-02")
	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	futures := make([]workflow.ChildWorkflowFuture, len(customers))
	for i, c := range customers {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("invoice-%s-%s-%s-%s", c.TenantID, c.CustomerID, period, runID),
		})
		futures[i] = workflow.ExecuteChildWorkflow(childCtx, GenerateCustomerInvoiceWorkflow, activity.GenerateInvoiceParams{
			TenantID:   c.TenantID,
			CustomerID: c.CustomerID,
		})
	}

	for i, f := range futures {
		var res activity.GenerateInvoiceResult
		if err := f.Get(ctx, &res); err != nil {
			summary.Failed++
			logger.Error("failed to invoice customer",
				"tenantID", customers[i].TenantID, "customerID", customers[i].CustomerID, "error", err)
			continue
		}
		if res.Skipped {
			summary.Skipped++
		} else {
			summary.Invoiced++
		}
	}

	logger.Info("invoicing run finished",
		"invoiced", summary.Invoiced, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// GenerateCustomerInvoiceWorkflow bills one customer as a child of the
// monthly run.
func GenerateCustomerInvoiceWorkflow(ctx workflow.Context, params activity.GenerateInvoiceParams) (activity.GenerateInvoiceResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res activity.GenerateInvoiceResult
	err := workflow.ExecuteActivity(ctx, "GenerateInvoice", params).Get(ctx, &res)
	return res, err
}
