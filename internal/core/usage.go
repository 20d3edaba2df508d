package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/metering/internal/model"
)

// UsageFilter narrows a customer's aggregates. Zero dates are unbounded.
type UsageFilter struct {
	From         time.Time
	To           time.Time
	UnbilledOnly bool
}

// UsageService reports aggregated usage.
type UsageService struct {
	db DB
}

// NewUsageService creates a new UsageService.
func NewUsageService(db DB) *UsageService {
	return &UsageService{db: db}
}

// ListAggregates returns a customer's daily aggregates ordered by date and
// product. From and To are inclusive UTC dates.
func (s *UsageService) ListAggregates(ctx context.Context, tenantID, customerID string, f UsageFilter) ([]model.UsageAggregate, error) {
	query := `SELECT id, tenant_id, customer_id, product_id, usage_date, usage_count, billed, invoice_id, created_at, updated_at
		FROM usage_aggregates WHERE tenant_id = $1 AND customer_id = $2`
	args := []any{tenantID, customerID}
	if !f.From.IsZero() {
		args = append(args, UsageDate(f.From))
		query += fmt.Sprintf(` AND usage_date >= $%d`, len(args))
	}
	if !f.To.IsZero() {
		args = append(args, UsageDate(f.To))
		query += fmt.Sprintf(` AND usage_date <= $%d`, len(args))
	}
	if f.UnbilledOnly {
		query += ` AND NOT billed`
	}
	query += ` ORDER BY usage_date, product_id, created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage aggregates: %w", err)
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
