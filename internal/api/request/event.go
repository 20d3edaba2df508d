package request

// IngestEvent is the body of POST /v1/events. Whitespace-only ids are
// rejected by the ingestor after trimming.
type IngestEvent struct {
	CustomerID     string         `json:"customer_id" validate:"required,max=128"`
	EventName      string         `json:"event_name" validate:"required,max=255"`
	Properties     map[string]any `json:"properties"`
	IdempotencyKey string         `json:"idempotency_key" validate:"max=255"`
}
