package billingctl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

// Invoicer generates invoices for billable customers.
type Invoicer interface {
	Generate(ctx context.Context, tenantID, customerID string) (*model.Invoice, error)
	ListBillable(ctx context.Context) ([]core.BillableCustomer, error)
}

// InvoiceAllResult counts the outcome of an invoice-all run.
type InvoiceAllResult struct {
	Customers int
	Invoiced  int
	Skipped   int
	Failed    int
}

// InvoiceAll generates invoices for every billable customer, running up to
// concurrency generations at once. A failing customer is logged and counted
// but does not stop the run.
func InvoiceAll(ctx context.Context, gen Invoicer, concurrency int, logger zerolog.Logger) (InvoiceAllResult, error) {
	customers, err := gen.ListBillable(ctx)
	if err != nil {
		return InvoiceAllResult{}, fmt.Errorf("list billable customers: %w", err)
	}

	res := InvoiceAllResult{Customers: len(customers)}
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range customers {
		g.Go(func() error {
			inv, err := gen.Generate(gctx, c.TenantID, c.CustomerID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Invoiced++
				logger.Info().
					Str("tenant_id", c.TenantID).
					Str("customer_id", c.CustomerID).
					Str("invoice_id", inv.ID).
					Int64("total_cents", inv.TotalCents).
					Msg("invoice generated")
			case errors.Is(err, core.ErrNoContent):
				res.Skipped++
			default:
				res.Failed++
				logger.Error().Err(err).
					Str("tenant_id", c.TenantID).
					Str("customer_id", c.CustomerID).
					Msg("invoice generation failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}
