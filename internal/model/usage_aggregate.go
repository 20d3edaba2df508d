package model

import "time"

// UsageAggregate is the per-day count of matched events for a
// (tenant, customer, product). Billed rows are frozen and linked to the
// invoice that charged them.
type UsageAggregate struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	UsageDate  time.Time `json:"usage_date"`
	UsageCount int64     `json:"usage_count"`
	Billed     bool      `json:"billed"`
	InvoiceID  *string   `json:"invoice_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
