package model

// Tenant subscription status values.
const (
	SubscriptionInactive = "inactive"
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Event processing states. Pending events are claimed by the aggregator and
// end up either counted toward a product or unmatched (terminal, never billed).
const (
	EventPending   = "pending"
	EventCounted   = "counted"
	EventUnmatched = "unmatched"
)

// Invoice status values.
const (
	InvoiceOpen = "open"
	InvoicePaid = "paid"
)

// PricingPerUnit is the only pricing type supported.
const PricingPerUnit = "per_unit"
