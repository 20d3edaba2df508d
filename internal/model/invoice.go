package model

import "time"

// Invoice is an immutable billing document for one customer.
type Invoice struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	CustomerID string            `json:"customer_id"`
	TotalCents int64             `json:"total_cents"`
	Currency   string            `json:"currency"`
	Status     string            `json:"status"`
	FilePath   string            `json:"file_path"`
	CreatedAt  time.Time         `json:"created_at"`
	LineItems  []InvoiceLineItem `json:"line_items,omitempty"`
}

// InvoiceLineItem is one product's charge on an invoice.
type InvoiceLineItem struct {
	ProductID       string    `json:"product_id"`
	Description     string    `json:"description"`
	Quantity        int64     `json:"quantity"`
	UnitAmountCents int64     `json:"unit_amount_cents"`
	LineTotalCents  int64     `json:"line_total_cents"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
}
