package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
	"github.com/jackc/pgx/v5"
)

// CustomerInput registers an end-customer. An empty ID gets a generated one.
type CustomerInput struct {
	ID    string
	Name  string
	Email string
}

// CustomerService manages a tenant's end-customers.
type CustomerService struct {
	db DB
}

// NewCustomerService creates a new CustomerService.
func NewCustomerService(db DB) *CustomerService {
	return &CustomerService{db: db}
}

func (s *CustomerService) Create(ctx context.Context, tenantID string, in CustomerInput) (*model.Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	c := &model.Customer{
		ID:       strings.TrimSpace(in.ID),
		TenantID: tenantID,
		Name:     name,
	}
	if c.ID == "" {
		c.ID = platform.NewID()
	}
	if in.Email != "" {
		email := in.Email
		c.Email = &email
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO customers (id, tenant_id, name, email, created_at)
		 VALUES ($1, $2, $3, $4, now()) RETURNING created_at`,
		c.ID, c.TenantID, c.Name, c.Email,
	).Scan(&c.CreatedAt)
	if err != nil {
		switch {
		case isPgError(err, pgUniqueViolation):
			return nil, fmt.Errorf("%w: customer %s already exists", ErrConflict, c.ID)
		case isPgError(err, pgForeignKeyViolation):
			return nil, fmt.Errorf("%w: tenant %s not found", ErrNotFound, tenantID)
		}
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (s *CustomerService) Get(ctx context.Context, tenantID, id string) (*model.Customer, error) {
	var c model.Customer
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, email, created_at FROM customers WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &c, nil
}

func (s *CustomerService) List(ctx context.Context, tenantID string, params request.ListParams) ([]model.Customer, bool, error) {
	query := `SELECT id, tenant_id, name, email, created_at FROM customers WHERE tenant_id = $1`
	args := []any{tenantID}
	if params.Cursor != "" {
		// Customer ids are only unique per tenant.
		args = append(args, params.Cursor)
		query += fmt.Sprintf(` AND (created_at, id) < (SELECT created_at, id FROM customers WHERE tenant_id = $1 AND id = $%d)`, len(args))
	}
	query, args = pageLimit(query, args, params.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate customers: %w", err)
	}

	customers, hasMore := trimPage(customers, params.Limit)
	return customers, hasMore, nil
}
