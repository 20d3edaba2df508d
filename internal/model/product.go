package model

import "time"

// Product is a billable unit. Events whose name equals EventNameMatch count
// toward it.
type Product struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	EventNameMatch string    `json:"event_name_match"`
	CreatedAt      time.Time `json:"created_at"`
	Price          *Price    `json:"price,omitempty"`
}

// Price is the per-unit price attached to a product, in minor currency units.
type Price struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	TenantID        string    `json:"tenant_id"`
	PricingType     string    `json:"pricing_type"`
	UnitAmountCents int64     `json:"unit_amount_cents"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
}

// MatchRule is the slice of a product the aggregator needs in memory.
type MatchRule struct {
	ProductID      string
	TenantID       string
	EventNameMatch string
}
