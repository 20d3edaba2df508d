package core

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/edvin/metering/internal/model"
)

// UnknownItem describes lines whose product no longer resolves.
const UnknownItem = "Unknown item"

// ErrAmountOverflow is returned when a quantity or amount exceeds int64.
var ErrAmountOverflow = errors.New("invoice amount overflows int64")

// ProductPricing is what invoicing needs to know about a product. A nil
// UnitAmountCents means the product has no price.
type ProductPricing struct {
	Name            string
	UnitAmountCents *int64
}

// Anomaly is a billing irregularity surfaced while computing an invoice.
type Anomaly struct {
	ProductID string
	Reason    string
}

// ComputedInvoice holds the line items and total derived from aggregates.
type ComputedInvoice struct {
	Lines      []model.InvoiceLineItem
	TotalCents int64
	Anomalies  []Anomaly
}

// BuildInvoice consolidates unbilled aggregates into one line per product.
// Daily aggregates of a product are merged rather than billed as separate
// lines; a line's period start and end span the days it covers.
// Quantities are summed, line totals are quantity times unit price and the
// total is their exact sum, all in integer minor units. Products missing from
// catalog bill as UnknownItem at zero; products without a price bill at zero.
func BuildInvoice(aggs []model.UsageAggregate, catalog map[string]ProductPricing) (ComputedInvoice, error) {
	lines := make(map[string]*model.InvoiceLineItem)
	var order []string
	for _, a := range aggs {
		if a.UsageCount < 0 {
			return ComputedInvoice{}, fmt.Errorf("aggregate %s has negative count %d", a.ID, a.UsageCount)
		}
		l, ok := lines[a.ProductID]
		if !ok {
			l = &model.InvoiceLineItem{
				ProductID:   a.ProductID,
				PeriodStart: a.UsageDate,
				PeriodEnd:   a.UsageDate,
			}
			lines[a.ProductID] = l
			order = append(order, a.ProductID)
		}
		q, ok := addInt64(l.Quantity, a.UsageCount)
		if !ok {
			return ComputedInvoice{}, fmt.Errorf("%w: quantity for product %s", ErrAmountOverflow, a.ProductID)
		}
		l.Quantity = q
		if a.UsageDate.Before(l.PeriodStart) {
			l.PeriodStart = a.UsageDate
		}
		if a.UsageDate.After(l.PeriodEnd) {
			l.PeriodEnd = a.UsageDate
		}
	}

	var out ComputedInvoice
	for _, productID := range order {
		l := lines[productID]
		p, known := catalog[productID]
		switch {
		case !known:
			l.Description = UnknownItem
			out.Anomalies = append(out.Anomalies, Anomaly{ProductID: productID, Reason: "product not found"})
		case p.UnitAmountCents == nil:
			l.Description = p.Name
			out.Anomalies = append(out.Anomalies, Anomaly{ProductID: productID, Reason: "product has no price"})
		default:
			l.Description = p.Name
			l.UnitAmountCents = *p.UnitAmountCents
		}

		total, ok := mulInt64(l.Quantity, l.UnitAmountCents)
		if !ok {
			return ComputedInvoice{}, fmt.Errorf("%w: line total for product %s", ErrAmountOverflow, productID)
		}
		l.LineTotalCents = total
		if out.TotalCents, ok = addInt64(out.TotalCents, total); !ok {
			return ComputedInvoice{}, fmt.Errorf("%w: invoice total", ErrAmountOverflow)
		}
		out.Lines = append(out.Lines, *l)
	}

	slices.SortFunc(out.Lines, func(a, b model.InvoiceLineItem) int {
		return cmp.Or(cmp.Compare(a.Description, b.Description), cmp.Compare(a.ProductID, b.ProductID))
	})
	slices.SortFunc(out.Anomalies, func(a, b Anomaly) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}

// InvoicePath is the blob key of an invoice document generated at t.
func InvoicePath(tenantID, customerID string, t time.Time) string {
	return fmt.Sprintf("%s/%s_%d.pdf", tenantID, customerID, t.UnixMilli())
}

func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// mulInt64 multiplies non-negative operands.
func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 || a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}
