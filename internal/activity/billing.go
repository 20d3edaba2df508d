package activity

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

// Aggregator drains pending usage events into aggregates.
type Aggregator interface {
	Drain(ctx context.Context, limit, maxBatches int) (core.DrainResult, error)
}

// Invoicer generates invoices from unbilled aggregates.
type Invoicer interface {
	Generate(ctx context.Context, tenantID, customerID string) (*model.Invoice, error)
	ListBillable(ctx context.Context) ([]core.BillableCustomer, error)
}

// Billing contains the metering pipeline activities.
type Billing struct {
	aggregator Aggregator
	invoicer   Invoicer
}

// NewBilling creates a new Billing activity struct.
func NewBilling(aggregator Aggregator, invoicer Invoicer) *Billing {
	return &Billing{aggregator: aggregator, invoicer: invoicer}
}

// AggregateUsageParams bounds one aggregation run.
type AggregateUsageParams struct {
	BatchSize  int
	MaxBatches int
}

// AggregateUsageBatch claims and folds pending events. Each batch commits
// on its own, so a retry after partial progress only sees what is left.
func (a *Billing) AggregateUsageBatch(ctx context.Context, params AggregateUsageParams) (core.DrainResult, error) {
	res, err := a.aggregator.Drain(ctx, params.BatchSize, params.MaxBatches)
	if err != nil {
		return res, err
	}
	activity.GetLogger(ctx).Info("usage aggregated",
		"batches", res.Batches, "claimed", res.Claimed, "counted", res.Counted, "unmatched", res.Unmatched)
	return res, nil
}

// ListBillableCustomers returns the customers of active tenants that have
// unbilled usage.
func (a *Billing) ListBillableCustomers(ctx context.Context) ([]core.BillableCustomer, error) {
	return a.invoicer.ListBillable(ctx)
}

// GenerateInvoiceParams identifies the customer to bill.
type GenerateInvoiceParams struct {
	TenantID   string
	CustomerID string
}

// GenerateInvoiceResult reports the invoice created, or Skipped when there
// was nothing to bill.
type GenerateInvoiceResult struct {
	InvoiceID  string
	TotalCents int64
	Currency   string
	Skipped    bool
}

// GenerateInvoice bills one customer. Missing customers and invalid data
// are not retried.
func (a *Billing) GenerateInvoice(ctx context.Context, params GenerateInvoiceParams) (*GenerateInvoiceResult, error) {
	inv, err := a.invoicer.Generate(ctx, params.TenantID, params.CustomerID)
	switch {
	case err == nil:
		return &GenerateInvoiceResult{InvoiceID: inv.ID, TotalCents: inv.TotalCents, Currency: inv.Currency}, nil
	case errors.Is(err, core.ErrNoContent):
		return &GenerateInvoiceResult{Skipped: true}, nil
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrBadRequest), errors.Is(err, core.ErrAmountOverflow):
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInvoiceInput", err)
	default:
		return nil, err
	}
}
