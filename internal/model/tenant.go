package model

import "time"

// Tenant is a billing account: the SaaS operator that bills its own customers.
type Tenant struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	SubscriptionStatus string     `json:"subscription_status"`
	PlanName           *string    `json:"plan_name,omitempty"`
	BillingPeriodEnd   *time.Time `json:"billing_period_end,omitempty"`
	PaymentToken       *string    `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BillingActive reports whether the tenant's subscription is paid up.
func (t *Tenant) BillingActive() bool {
	return t.SubscriptionStatus == SubscriptionActive
}

// Subscription is the read-only billing signal exposed to the dashboard.
type Subscription struct {
	TenantID         string     `json:"tenant_id"`
	Status           string     `json:"status"`
	Active           bool       `json:"active"`
	PlanName         *string    `json:"plan_name,omitempty"`
	BillingPeriodEnd *time.Time `json:"billing_period_end,omitempty"`
}
