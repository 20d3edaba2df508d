package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edvin/metering/internal/blob"
	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
	"github.com/edvin/metering/internal/render"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// BillableCustomer identifies a customer with unbilled usage.
type BillableCustomer struct {
	TenantID   string `json:"tenant_id"`
	CustomerID string `json:"customer_id"`
}

// InvoiceGenerator turns a customer's unbilled aggregates into an invoice.
type InvoiceGenerator struct {
	db       DB
	blobs    blob.Store
	renderer render.Renderer
	currency string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewInvoiceGenerator creates a new InvoiceGenerator. Invoices are issued in
// currency.
func NewInvoiceGenerator(db DB, blobs blob.Store, renderer render.Renderer, currency string, logger zerolog.Logger) *InvoiceGenerator {
	return &InvoiceGenerator{
		db:       db,
		blobs:    blobs,
		renderer: renderer,
		currency: currency,
		logger:   logger.With().Str("component", "invoice-generator").Logger(),
		now:      time.Now,
	}
}

// Generate bills every unbilled aggregate of the customer on a new invoice.
//
// Generation for one (tenant, customer) is serialized by an advisory lock and
// the aggregate rows are locked, so concurrent calls cannot bill the same
// usage twice. The document is uploaded before any record is written; if the
// upload or any later step fails the transaction rolls back and the
// aggregates stay unbilled. ErrNoContent means there was nothing to bill.
func (g *InvoiceGenerator) Generate(ctx context.Context, tenantID, customerID string) (*model.Invoice, error) {
	log := g.logger.With().Str("tenant_id", tenantID).Str("customer_id", customerID).Logger()

	var inv *model.Invoice
	err := pgx.BeginFunc(ctx, g.db, func(tx pgx.Tx) error {
		var tenantName, customerName string
		err := tx.QueryRow(ctx,
			`SELECT t.name, c.name FROM customers c JOIN tenants t ON t.id = c.tenant_id
			 WHERE c.tenant_id = $1 AND c.id = $2`,
			tenantID, customerID,
		).Scan(&tenantName, &customerName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
			}
			return fmt.Errorf("get customer %s: %w", customerID, err)
		}

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"invoice:"+tenantID+":"+customerID); err != nil {
			return fmt.Errorf("lock customer invoicing: %w", err)
		}

		aggs, err := lockUnbilledAggregates(ctx, tx, tenantID, customerID)
		if err != nil {
			return err
		}
		if len(aggs) == 0 {
			return fmt.Errorf("%w: no unbilled usage for customer %s", ErrNoContent, customerID)
		}

		catalog, err := loadProductPricing(ctx, tx, tenantID, aggs)
		if err != nil {
			return err
		}
		computed, err := BuildInvoice(aggs, catalog)
		if err != nil {
			return err
		}
		for _, a := range computed.Anomalies {
			log.Warn().Str("product_id", a.ProductID).Str("anomaly", a.Reason).Msg("billing at zero")
		}

		issuedAt := g.now().UTC()
		inv = &model.Invoice{
			ID:         platform.NewID(),
			TenantID:   tenantID,
			CustomerID: customerID,
			TotalCents: computed.TotalCents,
			Currency:   g.currency,
			Status:     model.InvoiceOpen,
			FilePath:   InvoicePath(tenantID, customerID, issuedAt),
			CreatedAt:  issuedAt,
			LineItems:  computed.Lines,
		}

		pdf, err := g.renderer.Render(ctx, documentFor(inv, tenantName, customerName))
		if err != nil {
			return fmt.Errorf("render invoice: %w", err)
		}
		if _, err := g.blobs.Put(ctx, inv.FilePath, bytes.NewReader(pdf), blob.PutOptions{
			ContentType: render.ContentTypePDF,
			Metadata: map[string]string{
				"invoice-id":  inv.ID,
				"tenant-id":   tenantID,
				"customer-id": customerID,
			},
		}); err != nil {
			return fmt.Errorf("upload invoice document: %w", err)
		}

		return insertInvoice(ctx, tx, inv, aggs)
	})
	if err != nil {
		if errors.Is(err, ErrNoContent) {
			metrics.InvoicesGenerated.WithLabelValues("empty").Inc()
		} else if !errors.Is(err, ErrNotFound) {
			metrics.InvoicesGenerated.WithLabelValues("failed").Inc()
			if inv != nil {
				log.Error().Err(err).Str("file_path", inv.FilePath).Msg("invoice generation failed, aggregates left unbilled")
			}
		}
		return nil, err
	}

	metrics.InvoicesGenerated.WithLabelValues("created").Inc()
	metrics.InvoicedCents.WithLabelValues(inv.Currency).Add(float64(inv.TotalCents))
	log.Info().
		Str("invoice_id", inv.ID).
		Int64("total_cents", inv.TotalCents).
		Int("lines", len(inv.LineItems)).
		Msg("invoice generated")
	return inv, nil
}

// ListBillable returns customers of active tenants that have unbilled usage.
func (g *InvoiceGenerator) ListBillable(ctx context.Context) ([]BillableCustomer, error) {
	rows, err := g.db.Query(ctx,
		`SELECT DISTINCT ua.tenant_id, ua.customer_id
		 FROM usage_aggregates ua JOIN tenants t ON t.id = ua.tenant_id
		 WHERE NOT ua.billed AND t.subscription_status = $1
		 ORDER BY ua.tenant_id, ua.customer_id`,
		model.SubscriptionActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list billable customers: %w", err)
	}
	defer rows.Close()

	var out []BillableCustomer
	for rows.Next() {
		var b BillableCustomer
		if err := rows.Scan(&b.TenantID, &b.CustomerID); err != nil {
			return nil, fmt.Errorf("scan billable customer: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billable customers: %w", err)
	}
	return out, nil
}

func lockUnbilledAggregates(ctx context.Context, tx querier, tenantID, customerID string) ([]model.UsageAggregate, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, tenant_id, customer_id, product_id, usage_date, usage_count, billed, invoice_id, created_at, updated_at
		 FROM usage_aggregates
		 WHERE tenant_id = $1 AND customer_id = $2 AND NOT billed
		 ORDER BY usage_date, product_id
		 FOR UPDATE`,
		tenantID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select unbilled aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []model.UsageAggregate
	for rows.Next() {
		var a model.UsageAggregate
		if err := rows.Scan(&a.ID, &a.TenantID, &a.CustomerID, &a.ProductID, &a.UsageDate, &a.UsageCount,
			&a.Billed, &a.InvoiceID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan usage aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage aggregates: %w", err)
	}
	return aggs, nil
}

func loadProductPricing(ctx context.Context, tx querier, tenantID string, aggs []model.UsageAggregate) (map[string]ProductPricing, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range aggs {
		if !seen[a.ProductID] {
			seen[a.ProductID] = true
			ids = append(ids, a.ProductID)
		}
	}

	rows, err := tx.Query(ctx,
		`SELECT p.id, p.name, pr.unit_amount_cents
		 FROM products p LEFT JOIN prices pr ON pr.product_id = p.id
		 WHERE p.tenant_id = $1 AND p.id = ANY($2)`,
		tenantID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("load product pricing: %w", err)
	}
	defer rows.Close()

	catalog := make(map[string]ProductPricing, len(ids))
	for rows.Next() {
		var (
			id string
			p  ProductPricing
		)
		if err := rows.Scan(&id, &p.Name, &p.UnitAmountCents); err != nil {
			return nil, fmt.Errorf("scan product pricing: %w", err)
		}
		catalog[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product pricing: %w", err)
	}
	return catalog, nil
}

func insertInvoice(ctx context.Context, tx querier, inv *model.Invoice, aggs []model.UsageAggregate) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO invoices (id, tenant_id, customer_id, total_cents, currency, status, file_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.TenantID, inv.CustomerID, inv.TotalCents, inv.Currency, inv.Status, inv.FilePath, inv.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	for i, l := range inv.LineItems {
		if _, err := tx.Exec(ctx,
			`INSERT INTO invoice_line_items (id, invoice_id, position, product_id, description, quantity,
				unit_amount_cents, line_total_cents, period_start, period_end)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			platform.NewID(), inv.ID, i, l.ProductID, l.Description, l.Quantity,
			l.UnitAmountCents, l.LineTotalCents, l.PeriodStart, l.PeriodEnd,
		); err != nil {
			return fmt.Errorf("insert invoice line item: %w", err)
		}
	}

	ids := make([]string, len(aggs))
	for i, a := range aggs {
		ids[i] = a.ID
	}
	tag, err := tx.Exec(ctx,
		`UPDATE usage_aggregates SET billed = true, invoice_id = $1, updated_at = now()
		 WHERE id = ANY($2) AND NOT billed`,
		inv.ID, ids,
	)
	if err != nil {
		return fmt.Errorf("mark aggregates billed: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("mark aggregates billed: updated %d of %d rows", tag.RowsAffected(), len(ids))
	}
	return nil
}

func documentFor(inv *model.Invoice, tenantName, customerName string) render.Document {
	lines := make([]render.Line, len(inv.LineItems))
	for i, l := range inv.LineItems {
		lines[i] = render.Line{
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitAmountCents: l.UnitAmountCents,
			LineTotalCents:  l.LineTotalCents,
			PeriodStart:     l.PeriodStart,
			PeriodEnd:       l.PeriodEnd,
		}
	}
	return render.Document{
		InvoiceID:    inv.ID,
		IssuedAt:     inv.CreatedAt,
		TenantName:   tenantName,
		CustomerID:   inv.CustomerID,
		CustomerName: customerName,
		Currency:     inv.Currency,
		Lines:        lines,
		TotalCents:   inv.TotalCents,
	}
}
