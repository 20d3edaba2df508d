package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
	"github.com/jackc/pgx/v5"
)

// ProductInput creates a product with its per-unit price.
type ProductInput struct {
	Name            string
	EventNameMatch  string
	UnitAmountCents int64
	Currency        string
}

// CatalogService manages products and their prices.
type CatalogService struct {
	db              DB
	defaultCurrency string
}

// NewCatalogService creates a new CatalogService. Prices created without an
// explicit currency use defaultCurrency.
func NewCatalogService(db DB, defaultCurrency string) *CatalogService {
	return &CatalogService{db: db, defaultCurrency: defaultCurrency}
}

// CreateProduct stores a product and its price in one transaction. A second
// product matching the same event name for the tenant is a conflict.
func (s *CatalogService) CreateProduct(ctx context.Context, tenantID string, in ProductInput) (*model.Product, error) {
	name := strings.TrimSpace(in.Name)
	match := strings.TrimSpace(in.EventNameMatch)
	if name == "" || match == "" {
		return nil, fmt.Errorf("%w: name and event_name_match are required", ErrBadRequest)
	}
	if in.UnitAmountCents < 0 {
		return nil, fmt.Errorf("%w: unit_amount_cents must not be negative", ErrBadRequest)
	}
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	p := &model.Product{
		ID:             platform.NewID(),
		TenantID:       tenantID,
		Name:           name,
		EventNameMatch: match,
	}
	price := &model.Price{
		ID:              platform.NewID(),
		ProductID:       p.ID,
		TenantID:        tenantID,
		PricingType:     model.PricingPerUnit,
		UnitAmountCents: in.UnitAmountCents,
		Currency:        currency,
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// Serializes concurrent creates for the same match so the existence
		// check below cannot race.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"product:"+tenantID+":"+match); err != nil {
			return fmt.Errorf("lock product match: %w", err)
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE tenant_id = $1 AND event_name_match = $2)`,
			tenantID, match,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check product match: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: a product already matches event %q", ErrConflict, match)
		}

		if err := tx.QueryRow(ctx,
			`INSERT INTO products (id, tenant_id, name, event_name_match, created_at)
			 VALUES ($1, $2, $3, $4, now()) RETURNING created_at`,
			p.ID, p.TenantID, p.Name, p.EventNameMatch,
		).Scan(&p.CreatedAt); err != nil {
			if isPgError(err, pgForeignKeyViolation) {
				return fmt.Errorf("%w: tenant %s not found", ErrNotFound, tenantID)
			}
			return fmt.Errorf("insert product: %w", err)
		}

		if err := tx.QueryRow(ctx,
			`INSERT INTO prices (id, product_id, tenant_id, pricing_type, unit_amount_cents, currency, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now()) RETURNING created_at`,
			price.ID, price.ProductID, price.TenantID, price.PricingType, price.UnitAmountCents, price.Currency,
		).Scan(&price.CreatedAt); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.Price = price
	return p, nil
}

const productSelect = `SELECT p.id, p.tenant_id, p.name, p.event_name_match, p.created_at,
	pr.id, pr.pricing_type, pr.unit_amount_cents, pr.currency, pr.created_at
	FROM products p LEFT JOIN prices pr ON pr.product_id = p.id`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p            model.Product
		priceID      *string
		pricingType  *string
		unitAmount   *int64
		currency     *string
		priceCreated *time.Time
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.EventNameMatch, &p.CreatedAt,
		&priceID, &pricingType, &unitAmount, &currency, &priceCreated); err != nil {
		return nil, err
	}
	if priceID != nil {
		p.Price = &model.Price{
			ID:              *priceID,
			ProductID:       p.ID,
			TenantID:        p.TenantID,
			PricingType:     *pricingType,
			UnitAmountCents: *unitAmount,
			Currency:        *currency,
		}
		if priceCreated != nil {
			p.Price.CreatedAt = *priceCreated
		}
	}
	return &p, nil
}

// GetProduct returns a product with its price.
func (s *CatalogService) GetProduct(ctx context.Context, tenantID, id string) (*model.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, productSelect+` WHERE p.tenant_id = $1 AND p.id = $2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// ListProducts returns all of the tenant's products ordered by name.
func (s *CatalogService) ListProducts(ctx context.Context, tenantID string) ([]model.Product, error) {
	rows, err := s.db.Query(ctx, productSelect+` WHERE p.tenant_id = $1 ORDER BY p.name, p.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// SetPrice replaces the unit amount of a product's price. Invoices already
// issued keep the amount they were generated with.
func (s *CatalogService) SetPrice(ctx context.Context, tenantID, productID string, unitAmountCents int64, currency string) (*model.Price, error) {
	if unitAmountCents < 0 {
		return nil, fmt.Errorf("%w: unit_amount_cents must not be negative", ErrBadRequest)
	}
	if currency == "" {
		currency = s.defaultCurrency
	}

	var owner string
	err := s.db.QueryRow(ctx, `SELECT tenant_id FROM products WHERE id = $1 AND tenant_id = $2`, productID, tenantID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}

	price := &model.Price{
		ProductID:       productID,
		TenantID:        tenantID,
		PricingType:     model.PricingPerUnit,
		UnitAmountCents: unitAmountCents,
		Currency:        currency,
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO prices (id, product_id, tenant_id, pricing_type, unit_amount_cents, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (product_id) DO UPDATE SET unit_amount_cents = EXCLUDED.unit_amount_cents, currency = EXCLUDED.currency
		 RETURNING id, created_at`,
		platform.NewID(), productID, tenantID, model.PricingPerUnit, unitAmountCents, currency,
	).Scan(&price.ID, &price.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("set price for product %s: %w", productID, err)
	}
	return price, nil
}

// LoadMatchRules returns the match rules of every product, for all tenants.
func (s *CatalogService) LoadMatchRules(ctx context.Context) ([]model.MatchRule, error) {
	return loadMatchRules(ctx, s.db)
}

func loadMatchRules(ctx context.Context, q querier) ([]model.MatchRule, error) {
	rows, err := q.Query(ctx, `SELECT id, tenant_id, event_name_match FROM products ORDER BY tenant_id, event_name_match, id`)
	if err != nil {
		return nil, fmt.Errorf("load match rules: %w", err)
	}
	defer rows.Close()

	var rules []model.MatchRule
	for rows.Next() {
		var r model.MatchRule
		if err := rows.Scan(&r.ProductID, &r.TenantID, &r.EventNameMatch); err != nil {
			return nil, fmt.Errorf("scan match rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match rules: %w", err)
	}
	return rules, nil
}
