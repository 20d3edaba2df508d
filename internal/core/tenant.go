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

// SubscriptionUpdate is a tenant's billing state as reported by the payment
// provider. Nil fields leave the stored value unchanged.
type SubscriptionUpdate struct {
	Status           string
	PlanName         *string
	PaymentToken     *string
	BillingPeriodEnd *time.Time
}

// TenantService manages tenants and their subscription state.
type TenantService struct {
	db DB
}

// NewTenantService creates a new TenantService.
func NewTenantService(db DB) *TenantService {
	return &TenantService{db: db}
}

// Create registers a tenant. An empty id gets a generated one.
func (s *TenantService) Create(ctx context.Context, id, name string) (*model.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	if id == "" {
		id = platform.NewID()
	}
	t := &model.Tenant{ID: id, Name: name, SubscriptionStatus: model.SubscriptionInactive}
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants (id, name, subscription_status, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now()) RETURNING created_at, updated_at`,
		t.ID, t.Name, t.SubscriptionStatus,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return nil, fmt.Errorf("%w: tenant %s already exists", ErrConflict, id)
		}
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

func (s *TenantService) Get(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, subscription_status, plan_name, billing_period_end, payment_token, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.SubscriptionStatus, &t.PlanName, &t.BillingPeriodEnd, &t.PaymentToken,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return &t, nil
}

// Subscription reports whether the tenant's billing is active.
func (s *TenantService) Subscription(ctx context.Context, id string) (*model.Subscription, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.Subscription{
		TenantID:         t.ID,
		Status:           t.SubscriptionStatus,
		Active:           t.BillingActive(),
		PlanName:         t.PlanName,
		BillingPeriodEnd: t.BillingPeriodEnd,
	}, nil
}

// ApplyPayment records a subscription state change for the tenant.
func (s *TenantService) ApplyPayment(ctx context.Context, tenantID string, u SubscriptionUpdate) error {
	switch u.Status {
	case model.SubscriptionActive, model.SubscriptionCanceled, model.SubscriptionInactive:
	default:
		return fmt.Errorf("%w: unknown subscription status %q", ErrBadRequest, u.Status)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET subscription_status = $2,
			plan_name = COALESCE($3, plan_name),
			payment_token = COALESCE($4, payment_token),
			billing_period_end = COALESCE($5, billing_period_end),
			updated_at = now()
		 WHERE id = $1`,
		tenantID, u.Status, u.PlanName, u.PaymentToken, u.BillingPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("update tenant %s subscription: %w", tenantID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	return nil
}
