package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/blob"
	"github.com/edvin/metering/internal/model"
	"github.com/jackc/pgx/v5"
)

// InvoiceService reads issued invoices and their documents.
type InvoiceService struct {
	db    DB
	blobs blob.Store
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(db DB, blobs blob.Store) *InvoiceService {
	return &InvoiceService{db: db, blobs: blobs}
}

const invoiceColumns = `id, tenant_id, customer_id, total_cents, currency, status, file_path, created_at`

func scanInvoice(row pgx.Row, inv *model.Invoice) error {
	return row.Scan(&inv.ID, &inv.TenantID, &inv.CustomerID, &inv.TotalCents, &inv.Currency,
		&inv.Status, &inv.FilePath, &inv.CreatedAt)
}

// Get returns an invoice with its line items in print order.
func (s *InvoiceService) Get(ctx context.Context, tenantID, id string) (*model.Invoice, error) {
	var inv model.Invoice
	err := scanInvoice(s.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT product_id, description, quantity, unit_amount_cents, line_total_cents, period_start, period_end
		 FROM invoice_line_items WHERE invoice_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list invoice line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.InvoiceLineItem
		if err := rows.Scan(&l.ProductID, &l.Description, &l.Quantity, &l.UnitAmountCents,
			&l.LineTotalCents, &l.PeriodStart, &l.PeriodEnd); err != nil {
			return nil, fmt.Errorf("scan invoice line item: %w", err)
		}
		inv.LineItems = append(inv.LineItems, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice line items: %w", err)
	}
	return &inv, nil
}

// List returns the tenant's invoices, newest first, without line items.
func (s *InvoiceService) List(ctx context.Context, tenantID string, params request.ListParams) ([]model.Invoice, bool, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tenant_id = $1`
	args := []any{tenantID}
	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if params.CustomerID != "" {
		args = append(args, params.CustomerID)
		query += fmt.Sprintf(` AND customer_id = $%d`, len(args))
	}
	query, args = pageCursor(query, args, "invoices", params.Cursor)
	query, args = pageLimit(query, args, params.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, false, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate invoices: %w", err)
	}

	invoices, hasMore := trimPage(invoices, params.Limit)
	return invoices, hasMore, nil
}

// OpenDocument streams the stored document of an invoice. The caller closes
// the reader.
func (s *InvoiceService) OpenDocument(ctx context.Context, tenantID, id string) (io.ReadCloser, blob.ObjectInfo, error) {
	var path string
	err := s.db.QueryRow(ctx, `SELECT file_path FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(&path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blob.ObjectInfo{}, fmt.Errorf("%w: invoice %s", ErrNotFound, id)
		}
		return nil, blob.ObjectInfo{}, fmt.Errorf("get invoice %s: %w", id, err)
	}

	rc, info, err := s.blobs.Get(ctx, path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, blob.ObjectInfo{}, fmt.Errorf("%w: document for invoice %s", ErrNotFound, id)
		}
		return nil, blob.ObjectInfo{}, fmt.Errorf("open invoice document %s: %w", path, err)
	}
	return rc, info, nil
}

// MarkPaid moves an open invoice to paid. Amounts and lines never change.
func (s *InvoiceService) MarkPaid(ctx context.Context, tenantID, id string) (*model.Invoice, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE invoices SET status = $3 WHERE tenant_id = $1 AND id = $2 AND status = $4`,
		tenantID, id, model.InvoicePaid, model.InvoiceOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("mark invoice %s paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		inv, err := s.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invoice %s is %s", ErrConflict, id, inv.Status)
	}
	return s.Get(ctx, tenantID, id)
}
