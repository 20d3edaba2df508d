package model

import "time"

// Event is a raw usage record. It is immutable apart from the processing
// bookkeeping written by the aggregator.
type Event struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	CustomerID     string         `json:"customer_id"`
	EventName      string         `json:"event_name"`
	Properties     map[string]any `json:"properties"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	Status         string         `json:"status"`
	ProductID      *string        `json:"product_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}
